package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/pkg/audit"
	"github.com/casualjim/strix/pkg/runstate"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/pkg/uuidx"
	"github.com/casualjim/strix/provider"
	"github.com/casualjim/strix/router"
	"github.com/casualjim/strix/telemetry"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// Result describes a finished run.
type Result struct {
	RunID      uuid.UUID       `json:"run_id"`
	TraceID    string          `json:"trace_id"`
	Mode       runstate.Mode   `json:"mode"`
	RouteScore float64         `json:"route_score"`
	Answer     string          `json:"answer"`
	Fallback   bool            `json:"fallback,omitempty"`
	Rounds     int             `json:"rounds,omitempty"`
	Envelopes  uint64          `json:"envelopes"`
	Audit      audit.Aggregate `json:"audit"`
	Latency    time.Duration   `json:"latency"`
}

// Executor runs requests through the FAST or DEEP pipeline.
type Executor struct {
	deps     Deps
	settings Settings
	runner   *Runner
	logger   *slog.Logger

	background sync.WaitGroup
}

// New creates an executor. Missing collaborators other than the provider get
// in-process defaults.
func New(deps Deps, settings Settings) (*Executor, error) {
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}
	deps, err := deps.withDefaults(settings)
	if err != nil {
		return nil, err
	}
	return &Executor{
		deps:     deps,
		settings: settings,
		runner:   NewRunner(deps.Logger, deps.Metrics),
		logger:   deps.Logger,
	}, nil
}

// Settings returns the pipeline settings.
func (e *Executor) Settings() Settings { return e.settings }

// Run processes one request and delivers its envelopes to hook in sequence order.
// It returns an error when a critical stage failed or ctx ended the run early;
// every other failure is absorbed by the pipeline.
func (e *Executor) Run(ctx context.Context, req runstate.Request, hook events.Hook) (Result, error) {
	runID := uuidx.New()
	ctx, span := telemetry.StartRun(ctx, runID.String(), req.SessionID)

	traceID := req.TraceID
	if traceID == "" {
		traceID = telemetry.TraceID(ctx)
	}
	rc := runstate.New(runID, traceID, req, events.NewCompositeHook(e.metricsHook(), hook))

	decision := e.deps.Router.Route(rc.Request())
	if decision.Mode != runstate.ModeDeep {
		decision.Mode = runstate.ModeFast
	}
	rc.SetMode(decision.Mode, decision.Score)
	e.deps.Metrics.RunStarted()
	e.logger.InfoContext(ctx, "run accepted",
		slogx.RunID(runID),
		slog.String("mode", decision.Mode.String()),
		slog.Float64("route_score", decision.Score),
	)

	err := e.runner.Run(ctx, rc, e.pipeline(decision)...)

	e.deps.Metrics.RunFinished(rc.Mode().String(), err == nil, rc.Round(), rc.Elapsed())
	e.publishTelemetry(ctx, rc, err)
	telemetry.EndSpan(span, err)

	if err != nil {
		e.logger.WarnContext(ctx, "run ended with error", slogx.RunID(runID), slogx.Error(err))
	} else {
		e.logger.InfoContext(ctx, "run finished", slogx.RunID(runID), slogx.Millis("latency_ms", rc.Elapsed()))
	}
	return resultOf(rc), err
}

// Submit runs the request on its own goroutine.
func (e *Executor) Submit(ctx context.Context, req runstate.Request, hook events.Hook) Future[Result] {
	fut := NewFuture[Result]()
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		res, err := e.Run(ctx, req, hook)
		if err != nil {
			fut.Error(err)
			return
		}
		fut.Complete(res)
	}()
	return fut
}

// Drain waits for submitted runs and fire-and-forget side effects to finish.
func (e *Executor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) pipeline(decision router.Decision) []Stage {
	stages := []Stage{
		e.startStage(decision),
		e.historyStage(),
		e.filesStage(),
		e.ragStage(),
	}
	if decision.Mode == runstate.ModeDeep {
		stages = append(stages, e.planStage(), e.loopStage(), e.synthesisStage())
	} else {
		stages = append(stages, e.answerStage())
	}
	return append(stages, e.persistStage(), e.finalStage())
}

func (e *Executor) metricsHook() events.Hook {
	if e.deps.Metrics == nil {
		return nil
	}
	return events.HookFunc(func(_ context.Context, env events.Envelope) {
		e.deps.Metrics.EnvelopeEmitted(env.Stage.String())
	})
}

func (e *Executor) emit(ctx context.Context, rc *runstate.Context, stage events.Stage, message string, payload any) error {
	return rc.Emit(streamContext(ctx), stage, message, payload)
}

// generate asks the provider for text. onChunk sees each fragment as it arrives.
func (e *Executor) generate(ctx context.Context, rc *runstate.Context, purpose provider.Purpose, input string, onChunk func(string) error) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := e.deps.Provider.StreamAnswer(ctx, provider.Prompt{
		RunID:        rc.RunID(),
		Purpose:      purpose,
		Instructions: e.deps.Instructions.For(purpose),
		History:      rc.History(),
		Input:        input,
	})
	if err != nil {
		return "", err
	}
	return provider.Collect(ctx, stream, onChunk)
}

// detach runs fn after the caller moved on. It survives cancellation of ctx,
// is bounded by timeout and never propagates failures.
func (e *Executor) detach(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) {
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		defer func() {
			if p := recover(); p != nil {
				e.logger.ErrorContext(ctx, "background task panicked", slog.String("task", name), slog.Any("panic", p))
			}
		}()

		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := fn(bctx); err != nil {
			e.logger.WarnContext(bctx, "background task failed", slog.String("task", name), slogx.Error(err))
		}
	}()
}

func (e *Executor) publishTelemetry(ctx context.Context, rc *runstate.Context, runErr error) {
	ev := telemetry.Event{
		RunID:       rc.RunID().String(),
		TraceID:     rc.TraceID(),
		SessionID:   rc.SessionID(),
		Mode:        rc.Mode().String(),
		RouteScore:  rc.RouteScore(),
		Status:      telemetry.StatusOK,
		Rounds:      rc.Round(),
		LatencyMS:   rc.Elapsed().Milliseconds(),
		AnswerChars: utf8.RuneCountInString(rc.Answer()),
		Envelopes:   rc.LastSeq(),
		Audit:       rc.Audit().Aggregate(),
		Timestamp:   strfmt.DateTime(time.Now()),
	}
	if runErr != nil {
		ev.Status = telemetry.StatusError
		ev.Error = runErr.Error()
	}
	e.detach(ctx, "telemetry", telemetry.DefaultPublishTimeout, func(ctx context.Context) error {
		return e.deps.Telemetry.Publish(ctx, ev)
	})
}

func resultOf(rc *runstate.Context) Result {
	return Result{
		RunID:      rc.RunID(),
		TraceID:    rc.TraceID(),
		Mode:       rc.Mode(),
		RouteScore: rc.RouteScore(),
		Answer:     rc.Answer(),
		Fallback:   rc.AnswerFallback(),
		Rounds:     rc.Round(),
		Envelopes:  rc.LastSeq(),
		Audit:      rc.Audit().Aggregate(),
		Latency:    rc.Elapsed(),
	}
}

// isStreamGone reports whether err means nobody is listening anymore.
func isStreamGone(ctx context.Context, err error) bool {
	return errors.Is(err, runstate.ErrStreamClosed) || streamContext(ctx).Err() != nil
}
