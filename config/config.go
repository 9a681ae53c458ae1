// Package config loads engine settings from a YAML file, a .env file and the
// environment, in that order of increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults for every knob of the engine.
const (
	DefaultHistoryLimit        = 10
	DefaultMaxFiles            = 5
	DefaultFileConcurrency     = 2
	DefaultFileTimeout         = 15 * time.Second
	DefaultFileMaxChars        = 20000
	DefaultTopK                = 8
	DefaultMinScore            = 0.2
	DefaultMaxHits             = 5
	DefaultRouterThreshold     = 0.6
	DefaultMaxRounds           = 5
	DefaultConfidenceThreshold = 0.85
	DefaultReasoningTimeout    = 2 * time.Minute
	DefaultToolCap             = 3
	DefaultToolTimeout         = 10 * time.Second
	DefaultMaxToolRounds       = 3
	DefaultEvidencePreview     = 280
	DefaultPersistTimeout      = 5 * time.Second
	DefaultServerAddr          = ":8080"
	DefaultFallbackResponse    = "I'm sorry, I couldn't generate an answer right now. Please try again in a moment."
	DefaultSynthesisFallback   = "I wasn't able to complete the analysis for this question. Here is what I could determine so far."
)

// Config is the complete engine configuration.
type Config struct {
	LogLevel     string            `yaml:"log_level"`
	History      History           `yaml:"history"`
	Files        Files             `yaml:"files"`
	Retrieval    Retrieval         `yaml:"retrieval"`
	Router       Router            `yaml:"router"`
	Deep         Deep              `yaml:"deep"`
	Answer       Answer            `yaml:"answer"`
	Instructions map[string]string `yaml:"instructions"`
	Provider     Provider          `yaml:"provider"`
	NATS         NATS              `yaml:"nats"`
	Temporal     Temporal          `yaml:"temporal"`
	Server       Server            `yaml:"server"`
}

type History struct {
	Limit          int           `yaml:"limit"`
	PersistTimeout time.Duration `yaml:"persist_timeout"`
}

type Files struct {
	MaxFiles    int           `yaml:"max_files"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxChars    int           `yaml:"max_chars"`
}

type Retrieval struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
	MaxHits  int     `yaml:"max_hits"`
}

type Router struct {
	Threshold float64 `yaml:"threshold"`
}

type Deep struct {
	MaxRounds           int           `yaml:"max_rounds"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	ReasoningTimeout    time.Duration `yaml:"reasoning_timeout"`
	ToolCap             int           `yaml:"tool_cap"`
	ToolTimeout         time.Duration `yaml:"tool_timeout"`
	MaxToolRounds       int           `yaml:"max_tool_rounds"`
	EvidencePreview     int           `yaml:"evidence_preview"`
}

type Answer struct {
	FallbackResponse  string `yaml:"fallback_response"`
	SynthesisFallback string `yaml:"synthesis_fallback"`
}

type Provider struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Enabled bool   `yaml:"enabled"`
}

type Temporal struct {
	Address   string `yaml:"address"`
	TaskQueue string `yaml:"task_queue"`
	Enabled   bool   `yaml:"enabled"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		LogLevel: "info",
		History:  History{Limit: DefaultHistoryLimit, PersistTimeout: DefaultPersistTimeout},
		Files: Files{
			MaxFiles:    DefaultMaxFiles,
			Concurrency: DefaultFileConcurrency,
			Timeout:     DefaultFileTimeout,
			MaxChars:    DefaultFileMaxChars,
		},
		Retrieval: Retrieval{TopK: DefaultTopK, MinScore: DefaultMinScore, MaxHits: DefaultMaxHits},
		Router:    Router{Threshold: DefaultRouterThreshold},
		Deep: Deep{
			MaxRounds:           DefaultMaxRounds,
			ConfidenceThreshold: DefaultConfidenceThreshold,
			ReasoningTimeout:    DefaultReasoningTimeout,
			ToolCap:             DefaultToolCap,
			ToolTimeout:         DefaultToolTimeout,
			MaxToolRounds:       DefaultMaxToolRounds,
			EvidencePreview:     DefaultEvidencePreview,
		},
		Answer: Answer{
			FallbackResponse:  DefaultFallbackResponse,
			SynthesisFallback: DefaultSynthesisFallback,
		},
		Server: Server{Addr: DefaultServerAddr},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (when
// path is not empty), then a .env file in the working directory, then the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from environment variables looked up with lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("STRIX_LOG_LEVEL", &c.LogLevel)
	integer("STRIX_HISTORY_LIMIT", &c.History.Limit)
	integer("STRIX_MAX_FILES", &c.Files.MaxFiles)
	duration("STRIX_FILE_TIMEOUT", &c.Files.Timeout)
	integer("STRIX_RETRIEVAL_TOP_K", &c.Retrieval.TopK)
	float("STRIX_RETRIEVAL_MIN_SCORE", &c.Retrieval.MinScore)
	float("STRIX_ROUTER_THRESHOLD", &c.Router.Threshold)
	integer("STRIX_MAX_ROUNDS", &c.Deep.MaxRounds)
	float("STRIX_CONFIDENCE_THRESHOLD", &c.Deep.ConfidenceThreshold)
	duration("STRIX_REASONING_TIMEOUT", &c.Deep.ReasoningTimeout)
	integer("STRIX_TOOL_CAP", &c.Deep.ToolCap)
	duration("STRIX_TOOL_TIMEOUT", &c.Deep.ToolTimeout)
	str("STRIX_SERVER_ADDR", &c.Server.Addr)
	str("STRIX_TEMPORAL_TASK_QUEUE", &c.Temporal.TaskQueue)
	boolean("STRIX_TEMPORAL_ENABLED", &c.Temporal.Enabled)
	boolean("STRIX_NATS_ENABLED", &c.NATS.Enabled)
	str("NATS_URL", &c.NATS.URL)
	str("TEMPORAL_ADDRESS", &c.Temporal.Address)
	str("OPENAI_DEFAULT_MODEL", &c.Provider.Model)
	str("OPENAI_BASE_URL", &c.Provider.BaseURL)

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	nonNegative := func(name string, v int) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", name, v))
		}
	}
	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %g", name, v))
		}
	}
	positiveDuration := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	nonNegative("history.limit", c.History.Limit)
	positiveDuration("history.persist_timeout", c.History.PersistTimeout)
	nonNegative("files.max_files", c.Files.MaxFiles)
	positive("files.concurrency", c.Files.Concurrency)
	positiveDuration("files.timeout", c.Files.Timeout)
	positive("files.max_chars", c.Files.MaxChars)
	positive("retrieval.top_k", c.Retrieval.TopK)
	unit("retrieval.min_score", c.Retrieval.MinScore)
	positive("retrieval.max_hits", c.Retrieval.MaxHits)
	unit("router.threshold", c.Router.Threshold)
	positive("deep.max_rounds", c.Deep.MaxRounds)
	unit("deep.confidence_threshold", c.Deep.ConfidenceThreshold)
	positiveDuration("deep.reasoning_timeout", c.Deep.ReasoningTimeout)
	nonNegative("deep.tool_cap", c.Deep.ToolCap)
	positiveDuration("deep.tool_timeout", c.Deep.ToolTimeout)
	nonNegative("deep.max_tool_rounds", c.Deep.MaxToolRounds)
	positive("deep.evidence_preview", c.Deep.EvidencePreview)
	if c.Answer.FallbackResponse == "" {
		errs = append(errs, errors.New("answer.fallback_response must not be empty"))
	}
	if c.Answer.SynthesisFallback == "" {
		errs = append(errs, errors.New("answer.synthesis_fallback must not be empty"))
	}
	return errors.Join(errs...)
}
