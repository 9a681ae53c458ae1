package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/pkg/audit"
	"github.com/casualjim/strix/pkg/runstate"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/pkg/stdx"
	"github.com/casualjim/strix/telemetry"
	"github.com/casualjim/strix/tool"
	"github.com/go-openapi/strfmt"
)

// toolStage calls the tools implied by the plan's unmet subtasks, one at a time.
// A failing call is recorded and the next one still runs.
func (e *Executor) toolStage() Stage {
	return Step{
		StageName: "tool_orchestration",
		Do: func(ctx context.Context, rc *runstate.Context) error {
			round := rc.Round()
			if round > e.settings.MaxToolRounds {
				return e.skipTools(ctx, rc, round, fmt.Sprintf("tool rounds are limited to %d", e.settings.MaxToolRounds))
			}

			intents := e.deps.Intents.Derive(tool.IntentRequest{
				Question:  rc.Request().Question,
				SessionID: rc.SessionID(),
				Round:     round,
				Subtasks:  rc.UnmetSubtasks(),
			})
			if len(intents) > e.settings.ToolCap {
				intents = intents[:e.settings.ToolCap]
			}
			if len(intents) == 0 {
				return e.skipTools(ctx, rc, round, "no tool intents for the open subtasks")
			}

			for _, intent := range intents {
				if err := streamContext(ctx).Err(); err != nil {
					return err
				}
				e.callTool(ctx, rc, round, intent)
			}

			ra := rc.Audit().Round(round)
			return e.emit(ctx, rc, events.StageDeepToolOrchDone, fmt.Sprintf("round %d tools finished", round), toolOrchPayload{
				Status:         StatusOK,
				Round:          round,
				Tools:          ra.Count,
				SuccessCount:   ra.SuccessCount,
				FailureCount:   ra.FailureCount,
				TotalLatencyMS: ra.TotalMS,
				Audit:          &ra,
			})
		},
	}
}

func (e *Executor) skipTools(ctx context.Context, rc *runstate.Context, round int, reason string) error {
	return e.emit(ctx, rc, events.StageDeepToolOrchDone, "tools skipped", toolOrchPayload{
		Status: StatusSkipped,
		Round:  round,
		Reason: reason,
	})
}

func (e *Executor) callTool(ctx context.Context, rc *runstate.Context, round int, intent tool.Intent) audit.Record {
	tctx, span := telemetry.StartTool(ctx, intent.Tool, round)
	start := time.Now()
	res := e.deps.Tools.Invoke(tctx, intent.Tool, intent.Arguments, e.settings.ToolTimeout)
	latency := res.Latency
	if latency <= 0 {
		latency = time.Since(start)
	}

	var spanErr error
	if !res.OK {
		spanErr = errors.New(res.ErrorText())
		if res.Err == nil {
			spanErr = errors.New("tool call failed")
		}
	}
	telemetry.EndSpan(span, spanErr)
	e.deps.Metrics.ToolCalled(intent.Tool, res.OK, latency)

	rec := audit.Record{
		Tool:      intent.Tool,
		Arguments: intent.Arguments,
		Success:   res.OK,
		Result:    res.Value,
		Error:     res.ErrorText(),
		LatencyMS: latency.Milliseconds(),
		Timestamp: strfmt.DateTime(time.Now()),
		Round:     round,
	}
	if !res.OK && rec.Error == "" {
		rec.Error = "tool call failed"
	}
	rc.RecordToolCall(rec)

	attrs := []any{
		slogx.RunID(rc.RunID()),
		slog.String("tool", intent.Tool),
		slog.Int("round", round),
		slogx.Millis("latency_ms", latency),
	}
	if !res.OK {
		e.logger.WarnContext(ctx, "tool call failed", append(attrs, slog.String("error", rec.Error))...)
		return rec
	}
	e.logger.DebugContext(ctx, "tool call succeeded", attrs...)

	rc.MarkSubtaskMet(intent.Subtask)
	rc.AddEvidence(runstate.Evidence{
		Tool:    intent.Tool,
		Subtask: intent.Subtask,
		Round:   round,
		Preview: stdx.Truncate(res.Value, e.settings.EvidencePreview),
	})
	return rec
}
