package strix

import (
	"log/slog"

	"github.com/casualjim/strix/config"
	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/extract"
	"github.com/casualjim/strix/history"
	"github.com/casualjim/strix/internal/executor"
	"github.com/casualjim/strix/provider"
	"github.com/casualjim/strix/retrieval"
	"github.com/casualjim/strix/router"
	"github.com/casualjim/strix/telemetry"
	"github.com/casualjim/strix/tool"
	"github.com/casualjim/strix/verify"
	"github.com/fogfish/opts"
)

// Option configures an Engine.
type Option = opts.Option[Engine]

func dep(fn func(*executor.Deps)) Option {
	return opts.Type[Engine](func(e *Engine) error {
		fn(&e.deps)
		return nil
	})
}

// WithProvider sets the model backend. It is the only required option.
func WithProvider(p provider.Provider) Option {
	return dep(func(d *executor.Deps) { d.Provider = p })
}

// WithInstructions overrides the system prompts per purpose.
func WithInstructions(i *provider.Instructions) Option {
	return dep(func(d *executor.Deps) { d.Instructions = i })
}

// WithHistory sets the conversation store. Defaults to an in-memory store.
func WithHistory(s history.Store) Option {
	return dep(func(d *executor.Deps) { d.History = s })
}

// WithSearcher sets the knowledge base. Defaults to an empty in-memory index.
func WithSearcher(s retrieval.Searcher) Option {
	return dep(func(d *executor.Deps) { d.Searcher = s })
}

func WithExtractor(x *extract.Extractor) Option {
	return dep(func(d *executor.Deps) { d.Extractor = x })
}

// WithTools sets what executes tool calls in the DEEP loop: a tool.Registry,
// or a remote.Invoker to run them on Temporal workers.
func WithTools(t tool.Invoker) Option {
	return dep(func(d *executor.Deps) { d.Tools = t })
}

func WithIntentDeriver(i tool.IntentDeriver) Option {
	return dep(func(d *executor.Deps) { d.Intents = i })
}

func WithVerifier(v verify.Verifier) Option {
	return dep(func(d *executor.Deps) { d.Verifier = v })
}

func WithRouter(r router.Router) Option {
	return dep(func(d *executor.Deps) { d.Router = r })
}

// WithTelemetry sets where run summaries go once a run is over.
func WithTelemetry(p telemetry.Publisher) Option {
	return dep(func(d *executor.Deps) { d.Telemetry = p })
}

func WithMetrics(m *telemetry.Metrics) Option {
	return dep(func(d *executor.Deps) { d.Metrics = m })
}

func WithLogger(l *slog.Logger) Option {
	return dep(func(d *executor.Deps) { d.Logger = l })
}

// WithHook attaches a hook to every run, after the per-run hook.
func WithHook(h events.Hook) Option {
	return opts.Type[Engine](func(e *Engine) error {
		e.hooks = append(e.hooks, h)
		return nil
	})
}

// WithConfig takes the pipeline settings and instruction overrides from cfg.
func WithConfig(cfg config.Config) Option {
	return opts.Type[Engine](func(e *Engine) error {
		e.settings = executor.SettingsFromConfig(cfg)
		if len(cfg.Instructions) > 0 && e.deps.Instructions == nil {
			overrides := make(map[provider.Purpose]string, len(cfg.Instructions))
			for k, v := range cfg.Instructions {
				overrides[provider.Purpose(k)] = v
			}
			e.deps.Instructions = provider.NewInstructions(overrides)
		}
		return nil
	})
}

// WithSettings replaces the pipeline settings wholesale.
var WithSettings = opts.ForName[Engine, executor.Settings]("settings")
