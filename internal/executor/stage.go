package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/pkg/runstate"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/telemetry"
)

// Stage is one named step of a pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, rc *runstate.Context) error
}

// Recoverer is implemented by stages that install a safe default after failing.
type Recoverer interface {
	Recover(ctx context.Context, rc *runstate.Context, err error)
}

// CriticalStage is implemented by stages whose failure ends the run.
type CriticalStage interface {
	Critical() bool
}

// StageError is returned by a run whose critical stage failed.
type StageError struct {
	Stage    string
	Critical bool
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Step builds a stage from functions.
type Step struct {
	StageName string
	Required  bool
	Do        func(ctx context.Context, rc *runstate.Context) error
	OnFailure func(ctx context.Context, rc *runstate.Context, err error)
}

func (s Step) Name() string   { return s.StageName }
func (s Step) Critical() bool { return s.Required }

func (s Step) Run(ctx context.Context, rc *runstate.Context) error {
	return s.Do(ctx, rc)
}

func (s Step) Recover(ctx context.Context, rc *runstate.Context, err error) {
	if s.OnFailure != nil {
		s.OnFailure(ctx, rc, err)
	}
}

func isCritical(st Stage) bool {
	c, ok := st.(CriticalStage)
	return ok && c.Critical()
}

// Runner executes stages in order over one run context.
type Runner struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewRunner creates a runner. Both arguments may be nil.
func NewRunner(logger *slog.Logger, metrics *telemetry.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger, metrics: metrics}
}

// Run executes stages until they are exhausted, the stream is closed or ctx is done.
// A failed non-critical stage is logged and recovered, a failed critical stage emits
// the terminal error envelope and its StageError is returned.
func (r *Runner) Run(ctx context.Context, rc *runstate.Context, stages ...Stage) error {
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rc.Closed() {
			return nil
		}

		err := r.RunStage(ctx, rc, st)
		if err == nil {
			continue
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if errors.Is(err, runstate.ErrStreamClosed) {
			return nil
		}

		attrs := []any{slogx.RunID(rc.RunID()), slogx.Stage(st.Name()), slogx.Error(err)}
		if isCritical(st) {
			r.logger.ErrorContext(ctx, "critical stage failed", attrs...)
			serr := &StageError{Stage: st.Name(), Critical: true, Err: err}
			_ = rc.Emit(streamContext(ctx), events.StageError, "run failed", errorPayload{Stage: st.Name(), Error: err.Error()})
			return serr
		}

		r.logger.WarnContext(ctx, "stage failed, continuing with defaults", attrs...)
		if rec, ok := st.(Recoverer); ok {
			r.recover(ctx, rc, st.Name(), rec, err)
		}
	}
	return nil
}

// RunStage runs a single stage inside its own span, turning a panic into an error.
func (r *Runner) RunStage(ctx context.Context, rc *runstate.Context, st Stage) (err error) {
	sctx, span := telemetry.StartStage(ctx, st.Name(), isCritical(st))
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("stage %s panicked: %v", st.Name(), p)
		}
		telemetry.EndSpan(span, err)
		r.metrics.StageObserved(st.Name(), err == nil, time.Since(start))
	}()
	return st.Run(sctx, rc)
}

func (r *Runner) recover(ctx context.Context, rc *runstate.Context, name string, rec Recoverer, cause error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "stage recovery panicked",
				slogx.RunID(rc.RunID()), slogx.Stage(name), slog.Any("panic", p), slogx.Error(cause))
		}
	}()
	rec.Recover(ctx, rc, cause)
}

type streamCtxKey struct{}

// withStreamContext returns ctx carrying stream as the context envelopes are
// emitted with. It lets a stage bound its I/O with a tighter deadline than the
// stream without that deadline closing the stream.
func withStreamContext(ctx, stream context.Context) context.Context {
	return context.WithValue(ctx, streamCtxKey{}, stream)
}

func streamContext(ctx context.Context) context.Context {
	if s, ok := ctx.Value(streamCtxKey{}).(context.Context); ok {
		return s
	}
	return ctx
}
