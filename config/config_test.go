package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.History.Limit)
	assert.Equal(t, 5, cfg.Files.MaxFiles)
	assert.Equal(t, 2, cfg.Files.Concurrency)
	assert.InDelta(t, 0.6, cfg.Router.Threshold, 0)
	assert.Equal(t, 5, cfg.Deep.MaxRounds)
	assert.InDelta(t, 0.85, cfg.Deep.ConfidenceThreshold, 0)
	assert.Equal(t, 3, cfg.Deep.ToolCap)
	assert.Equal(t, 280, cfg.Deep.EvidencePreview)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
log_level: debug
files:
  timeout: 3s
deep:
  max_rounds: 2
  reasoning_timeout: 45s
  confidence_threshold: 0.9
instructions:
  fast: Answer in one sentence.
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.Files.Timeout)
	assert.Equal(t, 2, cfg.Deep.MaxRounds)
	assert.Equal(t, 45*time.Second, cfg.Deep.ReasoningTimeout)
	assert.InDelta(t, 0.9, cfg.Deep.ConfidenceThreshold, 1e-9)
	assert.Equal(t, "Answer in one sentence.", cfg.Instructions["fast"])
	assert.Equal(t, DefaultToolCap, cfg.Deep.ToolCap, "unset values keep their defaults")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "deep:\n  max_round: 2\n", "max_round"},
		{"bad duration", "deep:\n  reasoning_timeout: soon\n", "time.Duration"},
		{"invalid threshold", "router:\n  threshold: 1.5\n", "router.threshold"},
		{"zero rounds", "deep:\n  max_rounds: 0\n", "deep.max_rounds"},
		{"empty fallback", "answer:\n  fallback_response: \"\"\n", "answer.fallback_response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"STRIX_MAX_ROUNDS":       "7",
		"STRIX_ROUTER_THRESHOLD": "0.4",
		"STRIX_TOOL_TIMEOUT":     "2s",
		"STRIX_TEMPORAL_ENABLED": "true",
		"NATS_URL":               "nats://example:4222",
		"TEMPORAL_ADDRESS":       "temporal:7233",
		"OPENAI_DEFAULT_MODEL":   "gpt-4o",
		"STRIX_LOG_LEVEL":        "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, 7, cfg.Deep.MaxRounds)
	assert.InDelta(t, 0.4, cfg.Router.Threshold, 1e-9)
	assert.Equal(t, 2*time.Second, cfg.Deep.ToolTimeout)
	assert.True(t, cfg.Temporal.Enabled)
	assert.Equal(t, "nats://example:4222", cfg.NATS.URL)
	assert.Equal(t, "temporal:7233", cfg.Temporal.Address)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, "info", cfg.LogLevel, "blank values are ignored")
}

func TestApplyEnvErrors(t *testing.T) {
	env := map[string]string{
		"STRIX_MAX_ROUNDS":        "many",
		"STRIX_REASONING_TIMEOUT": "forever",
	}
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIX_MAX_ROUNDS")
	assert.Contains(t, err.Error(), "STRIX_REASONING_TIMEOUT")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strix.yaml")
	require.NoError(t, os.WriteFile(path, []byte("deep:\n  max_rounds: 3\nserver:\n  addr: \":9090\"\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("STRIX_MAX_ROUNDS", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Deep.MaxRounds, "environment wins over the file")
	assert.Equal(t, ":9090", cfg.Server.Addr)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
