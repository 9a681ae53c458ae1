package strix

import (
	"context"
	"errors"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/internal/executor"
	"github.com/casualjim/strix/pkg/runstate"
	"github.com/fogfish/opts"
)

type (
	// Request is one question for the engine.
	Request = runstate.Request
	// Result summarizes a finished run.
	Result = executor.Result
	// Settings are the tunables of both pipelines.
	Settings = executor.Settings
	// StageError reports the stage whose failure ended a run.
	StageError = executor.StageError
	// Future resolves to the result of a submitted run.
	Future = executor.Future[Result]
)

// Modes a request can force.
const (
	ModeFast = runstate.ModeFast
	ModeDeep = runstate.ModeDeep
)

// DefaultStreamBuffer is the channel capacity used by Stream.
const DefaultStreamBuffer = 64

// DefaultSettings returns the settings used when no configuration is given.
func DefaultSettings() Settings { return executor.DefaultSettings() }

// Engine runs requests. It is safe for concurrent use; every run gets its own
// state and its own envelope sequence.
type Engine struct {
	deps     executor.Deps
	settings Settings
	hooks    []events.Hook
	exec     *executor.Executor
}

// New builds an engine from options. WithProvider is required.
func New(options ...Option) (*Engine, error) {
	e := &Engine{settings: executor.DefaultSettings()}
	if err := opts.Apply(e, options); err != nil {
		return nil, err
	}
	if e.deps.Provider == nil {
		return nil, errors.New("strix: a provider is required")
	}
	exec, err := executor.New(e.deps, e.settings)
	if err != nil {
		return nil, err
	}
	e.exec = exec
	return e, nil
}

// Settings returns the pipeline settings in effect.
func (e *Engine) Settings() Settings {
	return e.exec.Settings()
}

func (e *Engine) hookFor(hook events.Hook) events.Hook {
	if len(e.hooks) == 0 {
		if hook == nil {
			return events.Discard
		}
		return hook
	}
	return events.NewCompositeHook(append([]events.Hook{hook}, e.hooks...)...)
}

// Run answers req and blocks until the run is over. Envelopes reach hook in
// sequence order while the run progresses.
func (e *Engine) Run(ctx context.Context, req Request, hook events.Hook) (Result, error) {
	return e.exec.Run(ctx, req, e.hookFor(hook))
}

// Submit starts the run in the background.
func (e *Engine) Submit(ctx context.Context, req Request, hook events.Hook) Future {
	return e.exec.Submit(ctx, req, e.hookFor(hook))
}

// Stream starts the run in the background and returns its envelopes on a
// channel that is closed when the run is over. The caller must drain the
// channel or cancel ctx.
func (e *Engine) Stream(ctx context.Context, req Request) (<-chan events.Envelope, Future) {
	hook, ch := events.ChannelHook(DefaultStreamBuffer)
	fut := executor.NewFuture[Result]()
	inner := e.exec.Submit(ctx, req, e.hookFor(hook))
	go func() {
		defer close(ch)
		res, err := inner.Get(context.Background())
		if err != nil {
			fut.Error(err)
			return
		}
		fut.Complete(res)
	}()
	return ch, fut
}

// Close waits for background runs and side effects such as history writes
// and telemetry to finish, or for ctx to be done.
func (e *Engine) Close(ctx context.Context) error {
	return e.exec.Drain(ctx)
}
