package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/strix/config"
	"github.com/casualjim/strix/extract"
	"github.com/casualjim/strix/history"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/provider"
	"github.com/casualjim/strix/retrieval"
	"github.com/casualjim/strix/router"
	"github.com/casualjim/strix/telemetry"
	"github.com/casualjim/strix/tool"
	"github.com/casualjim/strix/verify"
)

// Settings are the tunables of the pipelines.
type Settings struct {
	HistoryLimit   int
	PersistTimeout time.Duration

	MaxFiles        int
	FileConcurrency int
	FileTimeout     time.Duration
	FileMaxChars    int

	TopK     int
	MinScore float64
	MaxHits  int

	RouterThreshold float64

	MaxRounds           int
	ConfidenceThreshold float64
	ReasoningTimeout    time.Duration
	ToolCap             int
	ToolTimeout         time.Duration
	MaxToolRounds       int
	EvidencePreview     int

	FallbackResponse  string
	SynthesisFallback string
}

// DefaultSettings returns the settings of the default configuration.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.Default())
}

// SettingsFromConfig maps the configuration onto pipeline settings.
func SettingsFromConfig(c config.Config) Settings {
	return Settings{
		HistoryLimit:        c.History.Limit,
		PersistTimeout:      c.History.PersistTimeout,
		MaxFiles:            c.Files.MaxFiles,
		FileConcurrency:     c.Files.Concurrency,
		FileTimeout:         c.Files.Timeout,
		FileMaxChars:        c.Files.MaxChars,
		TopK:                c.Retrieval.TopK,
		MinScore:            c.Retrieval.MinScore,
		MaxHits:             c.Retrieval.MaxHits,
		RouterThreshold:     c.Router.Threshold,
		MaxRounds:           c.Deep.MaxRounds,
		ConfidenceThreshold: c.Deep.ConfidenceThreshold,
		ReasoningTimeout:    c.Deep.ReasoningTimeout,
		ToolCap:             c.Deep.ToolCap,
		ToolTimeout:         c.Deep.ToolTimeout,
		MaxToolRounds:       c.Deep.MaxToolRounds,
		EvidencePreview:     c.Deep.EvidencePreview,
		FallbackResponse:    c.Answer.FallbackResponse,
		SynthesisFallback:   c.Answer.SynthesisFallback,
	}
}

func (s Settings) validate() error {
	var errs []error
	if s.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("max rounds must be at least 1, got %d", s.MaxRounds))
	}
	if s.ToolCap < 0 || s.MaxToolRounds < 0 {
		errs = append(errs, errors.New("tool cap and max tool rounds must not be negative"))
	}
	if s.ReasoningTimeout <= 0 || s.ToolTimeout <= 0 || s.PersistTimeout <= 0 {
		errs = append(errs, errors.New("reasoning, tool and persist timeouts must be positive"))
	}
	return errors.Join(errs...)
}

// Deps are the collaborators of the executor. Only Provider is required.
type Deps struct {
	Provider     provider.Provider
	Instructions *provider.Instructions
	History      history.Store
	Searcher     retrieval.Searcher
	Extractor    *extract.Extractor
	Tools        tool.Invoker
	Intents      tool.IntentDeriver
	Verifier     verify.Verifier
	Router       router.Router
	Telemetry    telemetry.Publisher
	// Metrics may stay nil.
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

func (d Deps) withDefaults(s Settings) (Deps, error) {
	if d.Provider == nil {
		return d, errors.New("executor: provider is required")
	}
	if d.Instructions == nil {
		d.Instructions = provider.NewInstructions(nil)
	}
	if d.History == nil {
		d.History = history.NewMemory(0)
	}
	if d.Searcher == nil {
		d.Searcher = retrieval.NewMemory()
	}
	if d.Extractor == nil {
		ex, err := extract.New(extract.NewHTTPFetcher(),
			extract.WithMaxFiles(s.MaxFiles),
			extract.WithConcurrency(s.FileConcurrency),
			extract.WithTimeout(s.FileTimeout),
			extract.WithMaxChars(s.FileMaxChars),
		)
		if err != nil {
			return d, fmt.Errorf("executor: %w", err)
		}
		d.Extractor = ex
	}
	if d.Tools == nil {
		reg := tool.NewRegistry()
		if err := reg.Register(tool.Builtins(tool.NewMemoryStore())...); err != nil {
			return d, fmt.Errorf("executor: %w", err)
		}
		d.Tools = reg
	}
	if d.Intents == nil {
		d.Intents = tool.DefaultIntents()
	}
	if d.Verifier == nil {
		d.Verifier = verify.NewHeuristic()
	}
	if d.Router == nil {
		d.Router = router.New(s.RouterThreshold)
	}
	if d.Telemetry == nil {
		d.Telemetry = telemetry.Discard
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger = d.Logger.With(slogx.LoggerName("strix.executor"))
	return d, nil
}
