package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/casualjim/strix"

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartRun opens the root span of a run.
func StartRun(ctx context.Context, runID, sessionID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "strix.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("strix.run_id", runID),
			attribute.String("strix.session_id", sessionID),
		),
	)
}

// StartStage opens a span for one pipeline stage.
func StartStage(ctx context.Context, stage string, critical bool) (context.Context, trace.Span) {
	return tracer().Start(ctx, "strix.stage."+stage,
		trace.WithAttributes(
			attribute.String("strix.stage", stage),
			attribute.Bool("strix.critical", critical),
		),
	)
}

// StartTool opens a span for one tool invocation.
func StartTool(ctx context.Context, tool string, round int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "strix.tool."+tool,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("strix.tool", tool),
			attribute.Int("strix.round", round),
		),
	)
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TraceID returns the trace id of the span in ctx, or the empty string when
// ctx carries no sampled or valid span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
