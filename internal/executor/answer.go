package executor

import (
	"context"
	"errors"
	"strings"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/pkg/runstate"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/provider"
)

var errNoAnswer = errors.New("no answer could be produced")

// answerStage streams the FAST answer. A generation failure is replaced by the
// configured fallback response so the run still ends with answer_final. The
// first fallback delta carries reset=true: clients drop any text they collected
// from earlier deltas of the run before appending it.
func (e *Executor) answerStage() Stage {
	return Step{
		StageName: "answer",
		Required:  true,
		Do: func(ctx context.Context, rc *runstate.Context) error {
			answer, err := e.generate(ctx, rc, provider.PurposeFast, fastInput(rc), func(text string) error {
				return e.emit(ctx, rc, events.StageAnswerDelta, "", deltaPayload{Text: text})
			})
			if err != nil && isStreamGone(ctx, err) {
				return err
			}
			if err == nil && strings.TrimSpace(answer) != "" {
				rc.SetAnswer(answer, false)
				return nil
			}

			if err != nil {
				e.logger.WarnContext(ctx, "answer generation failed, streaming fallback", slogx.RunID(rc.RunID()), slogx.Error(err))
			}
			if e.settings.FallbackResponse == "" {
				return errors.Join(errNoAnswer, err)
			}
			rc.SetAnswer(e.settings.FallbackResponse, true)
			return e.streamText(ctx, rc, e.settings.FallbackResponse, true)
		},
	}
}

// streamText emits text as word-sized answer fragments. Fallback text replaces
// whatever was streamed before it, so its first fragment is marked reset.
func (e *Executor) streamText(ctx context.Context, rc *runstate.Context, text string, fallback bool) error {
	reset := fallback
	for _, part := range strings.SplitAfter(text, " ") {
		if part == "" {
			continue
		}
		if err := e.emit(ctx, rc, events.StageAnswerDelta, "", deltaPayload{Text: part, Fallback: fallback, Reset: reset}); err != nil {
			return err
		}
		reset = false
	}
	return nil
}

// persistStage saves the question and answer without waiting for the store.
func (e *Executor) persistStage() Stage {
	return Step{
		StageName: "persist",
		Do: func(ctx context.Context, rc *runstate.Context) error {
			sessionID := rc.SessionID()
			answer := rc.Answer()
			if sessionID == "" || answer == "" {
				return nil
			}
			question := rc.Request().Question
			e.detach(ctx, "persist", e.settings.PersistTimeout, func(ctx context.Context) error {
				return e.deps.History.Append(ctx, sessionID, question, answer)
			})
			return nil
		},
	}
}

func (e *Executor) finalStage() Stage {
	return Step{
		StageName: "final",
		Required:  true,
		Do: func(ctx context.Context, rc *runstate.Context) error {
			return e.emit(ctx, rc, events.StageAnswerFinal, "answer complete", finalPayload{
				Answer:    rc.Answer(),
				Mode:      rc.Mode().String(),
				Fallback:  rc.AnswerFallback(),
				Rounds:    rc.Round(),
				ToolCalls: len(rc.ToolCalls()),
				LatencyMS: rc.Elapsed().Milliseconds(),
			})
		},
	}
}
