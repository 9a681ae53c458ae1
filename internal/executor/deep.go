package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/pkg/runstate"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/pkg/stdx"
	"github.com/casualjim/strix/provider"
	"github.com/casualjim/strix/verify"
	"github.com/tidwall/gjson"
)

var errPlanUnparsable = errors.New("plan output is not a JSON object")

// planStage stores the run's plan. It never fails for lack of a model answer:
// an empty question or a failed generation yields the direct response plan.
func (e *Executor) planStage() Stage {
	return Step{
		StageName: "plan",
		Do: func(ctx context.Context, rc *runstate.Context) error {
			question := strings.TrimSpace(rc.Request().Question)
			if question == "" {
				return e.storePlan(ctx, rc, runstate.DirectResponsePlan(question), StatusFallback, "empty question")
			}

			out, err := e.generate(ctx, rc, provider.PurposePlan, planInput(rc), nil)
			if err != nil && isStreamGone(ctx, err) {
				return err
			}
			var plan runstate.Plan
			if err == nil {
				plan, err = parsePlan(out, question)
			}
			if err != nil {
				e.logger.WarnContext(ctx, "planning failed, using direct response plan", slogx.RunID(rc.RunID()), slogx.Error(err))
				return e.storePlan(ctx, rc, runstate.DirectResponsePlan(question), StatusFallback, err.Error())
			}
			return e.storePlan(ctx, rc, plan, StatusOK, "")
		},
	}
}

func (e *Executor) storePlan(ctx context.Context, rc *runstate.Context, plan runstate.Plan, status, reason string) error {
	if err := rc.SetPlan(plan); err != nil {
		return err
	}
	stored, _ := rc.Plan()
	return e.emit(ctx, rc, events.StageDeepPlanDone, "plan ready", planPayload{Status: status, Plan: stored, Reason: reason})
}

// parsePlan reads the first JSON object in out. Subtasks that are the literal
// NONE collapse into the direct response subtask.
func parsePlan(out, question string) (runstate.Plan, error) {
	start, end := strings.Index(out, "{"), strings.LastIndex(out, "}")
	if start < 0 || end <= start || !gjson.Valid(out[start:end+1]) {
		return runstate.Plan{}, errPlanUnparsable
	}
	doc := gjson.Parse(out[start : end+1])

	strs := func(path string) []string {
		var vals []string
		for _, v := range doc.Get(path).Array() {
			vals = append(vals, v.String())
		}
		return vals
	}
	var subtasks []string
	for _, st := range strs("subtasks") {
		if !strings.EqualFold(strings.TrimSpace(st), "NONE") {
			subtasks = append(subtasks, st)
		}
	}

	plan := runstate.NewPlan(doc.Get("objective").String(), strs("constraints"), subtasks, strs("success_criteria"))
	if plan.Objective == "" {
		plan.Objective = question
	}
	if len(plan.Subtasks) == 0 {
		plan.Subtasks = []string{runstate.DirectResponseSubtask}
	}
	return plan, nil
}

// loopStage runs reasoning, tools, verification and reflection until reflection
// proceeds, the round cap is hit or the reasoning timeout expires. A failing round
// ends the loop and synthesis works from the latest successful reasoning.
func (e *Executor) loopStage() Stage {
	return Step{
		StageName: "deep_loop",
		Do: func(ctx context.Context, rc *runstate.Context) error {
			lctx, cancel := context.WithTimeout(ctx, e.settings.ReasoningTimeout)
			defer cancel()
			lctx = withStreamContext(lctx, streamContext(ctx))

			round := []Stage{e.reasoningStage(), e.toolStage(), e.verificationStage(), e.reflectionStage()}
			for n := 1; n <= e.settings.MaxRounds; n++ {
				rc.SetRound(n)
				for _, st := range round {
					if err := e.runner.RunStage(lctx, rc, st); err != nil {
						return fmt.Errorf("round %d %s: %w", n, st.Name(), err)
					}
				}
				if note, ok := rc.Reflection(); ok && note.Action == runstate.FollowUpProceed {
					return nil
				}
			}
			return nil
		},
		OnFailure: func(ctx context.Context, rc *runstate.Context, err error) {
			note := runstate.ReflectionNote{
				Round:       rc.Round(),
				Action:      runstate.FollowUpProceed,
				Forced:      true,
				Observation: "reasoning loop ended early",
				Summary:     "proceeding to synthesis with the latest reasoning",
			}
			if prev, ok := rc.Reflection(); ok {
				note.Confidence = prev.Confidence
			}
			rc.AddReflection(note)
			_ = e.emit(ctx, rc, events.StageDeepReflection, "reasoning degraded", reflectionPayload{
				Status:         StatusDegraded,
				ReflectionNote: note,
				Reason:         err.Error(),
			})
		},
	}
}

func (e *Executor) reasoningStage() Stage {
	return Step{
		StageName: "reasoning",
		Do: func(ctx context.Context, rc *runstate.Context) error {
			round := rc.Round()
			out, err := e.generate(ctx, rc, provider.PurposeReasoning, reasoningInput(rc, round), nil)
			if err != nil {
				return err
			}
			r := runstate.Reasoning{Round: round, Summary: strings.TrimSpace(out)}
			status := StatusOK
			if r.Summary == "" {
				r.Summary = fallbackReasoning(rc)
				r.Fallback = true
				status = StatusFallback
			}
			rc.SetReasoning(r)
			return e.emit(ctx, rc, events.StageDeepReasoning, fmt.Sprintf("round %d reasoning", round), reasoningPayload{
				Status:  status,
				Round:   round,
				Summary: r.Summary,
			})
		},
	}
}

// fallbackReasoning restates the objective and the evidence gathered so far.
func fallbackReasoning(rc *runstate.Context) string {
	plan, _ := rc.Plan()
	var sb strings.Builder
	sb.WriteString(plan.Objective)
	if !strings.HasSuffix(plan.Objective, ".") {
		sb.WriteString(".")
	}
	for _, ev := range rc.Evidence() {
		fmt.Fprintf(&sb, " %s reported: %s.", ev.Tool, strings.TrimSuffix(ev.Preview, "."))
	}
	return sb.String()
}

func (e *Executor) verificationStage() Stage {
	return Step{
		StageName: "verification",
		Do: func(ctx context.Context, rc *runstate.Context) error {
			round := rc.Round()
			plan, _ := rc.Plan()
			reasoning, _ := rc.Reasoning()
			report, err := e.deps.Verifier.Verify(ctx, verify.Input{
				Round:     round,
				Question:  rc.Request().Question,
				Plan:      plan,
				Reasoning: reasoning.Summary,
				Evidence:  rc.Evidence(),
				Documents: rc.Documents(),
				Files:     rc.Files(),
			})
			if err != nil {
				return err
			}
			report.Round = round
			report.ConsistencyScore = stdx.Clamp(report.ConsistencyScore, 0, 1)
			if report.UnresolvedClaims == nil {
				report.UnresolvedClaims = []string{}
			}
			if report.Contradictions == nil {
				report.Contradictions = []string{}
			}
			rc.AddVerification(report)
			return e.emit(ctx, rc, events.StageDeepVerification, fmt.Sprintf("round %d verified", round), verificationPayload{
				Status:             StatusOK,
				VerificationReport: report,
			})
		},
	}
}

func (e *Executor) reflectionStage() Stage {
	return Step{
		StageName: "reflection",
		Do: func(ctx context.Context, rc *runstate.Context) error {
			round := rc.Round()
			report, ok := rc.Verification()
			if !ok || report.Round != round {
				return fmt.Errorf("no verification report for round %d", round)
			}
			note := Reflect(report, round, e.settings.MaxRounds, e.settings.ConfidenceThreshold)
			rc.AddReflection(note)
			e.logger.DebugContext(ctx, "reflection",
				slogx.RunID(rc.RunID()),
				slog.Int("round", round),
				slog.String("action", string(note.Action)),
				slog.Float64("confidence", note.Confidence),
			)
			return e.emit(ctx, rc, events.StageDeepReflection, note.Summary, reflectionPayload{
				Status:         StatusOK,
				ReflectionNote: note,
			})
		},
	}
}

// synthesisStage streams the final DEEP answer. When the model cannot produce
// one it falls back to the latest reasoning, then to the configured synthesis
// fallback text. Only when both are missing does the run fail. Fallback deltas
// start with reset=true like in answerStage.
func (e *Executor) synthesisStage() Stage {
	return Step{
		StageName: "synthesis",
		Required:  true,
		Do: func(ctx context.Context, rc *runstate.Context) error {
			answer, err := e.generate(ctx, rc, provider.PurposeSynthesis, synthesisInput(rc), func(text string) error {
				return e.emit(ctx, rc, events.StageAnswerDelta, "", deltaPayload{Text: text})
			})
			if err != nil && isStreamGone(ctx, err) {
				return err
			}

			source, status, fallback := "model", StatusOK, false
			if err != nil || strings.TrimSpace(answer) == "" {
				if err != nil {
					e.logger.WarnContext(ctx, "synthesis failed, falling back", slogx.RunID(rc.RunID()), slogx.Error(err))
				}
				status, fallback = StatusFallback, true
				answer = ""
				if r, ok := rc.Reasoning(); ok && strings.TrimSpace(r.Summary) != "" {
					answer, source = r.Summary, "reasoning"
				} else if e.settings.SynthesisFallback != "" {
					answer, source = e.settings.SynthesisFallback, "fallback"
				}
				if answer == "" {
					return errors.Join(errNoAnswer, err)
				}
				if err := e.streamText(ctx, rc, answer, true); err != nil {
					return err
				}
			}
			rc.SetAnswer(answer, fallback)

			report, _ := rc.Verification()
			return e.emit(ctx, rc, events.StageDeepSynthesis, "answer synthesized", synthesisPayload{
				Status:           status,
				Source:           source,
				Round:            rc.Round(),
				Evidence:         len(rc.Evidence()),
				ConsistencyScore: report.ConsistencyScore,
				Chars:            len([]rune(answer)),
			})
		},
	}
}
