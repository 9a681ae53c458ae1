package executor

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/extract"
	"github.com/casualjim/strix/pkg/runstate"
	"github.com/casualjim/strix/provider"
	"github.com/casualjim/strix/retrieval"
	"github.com/casualjim/strix/telemetry"
	"github.com/casualjim/strix/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRequest(question string, files ...string) runstate.Request {
	return runstate.Request{Question: question, Files: files, SessionID: "session-1", Mode: runstate.ModeFast}
}

func deepRequest(question string) runstate.Request {
	return runstate.Request{Question: question, SessionID: "session-1", Mode: runstate.ModeDeep}
}

func TestFastRun(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	res, err := f.exec.Run(context.Background(), fastRequest("why is the sky blue?"), rec)
	require.NoError(t, err)

	envs := rec.Envelopes()
	requireOrdered(t, envs)
	assert.Equal(t, []events.Stage{
		events.StageStart,
		events.StageRAG,
		events.StageAnswerDelta,
		events.StageAnswerDelta,
		events.StageAnswerFinal,
	}, rec.Stages())
	for _, env := range envs {
		assert.False(t, env.Stage.FileExtraction(), "unexpected %s", env.Stage)
		assert.False(t, env.Stage.Deep(), "unexpected %s", env.Stage)
		assert.Equal(t, res.RunID, env.RunID)
		assert.Equal(t, "session-1", env.SessionID)
		assert.NotEmpty(t, env.TraceID)
	}

	final := rec.Last()
	assert.Equal(t, "Blue light scatters more.", final.Payload.Get("answer").String())
	assert.Equal(t, "fast", final.Payload.Get("mode").String())
	assert.False(t, final.Payload.Get("fallback").Bool())

	assert.Equal(t, runstate.ModeFast, res.Mode)
	assert.Equal(t, "Blue light scatters more.", res.Answer)
	assert.Equal(t, uint64(len(envs)), res.Envelopes)

	f.drain(t)
	turns, err := f.history.Recent(context.Background(), "session-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "why is the sky blue?", turns[0].Content)
	assert.Equal(t, "Blue light scatters more.", turns[1].Content)

	published := f.telemetry.Events()
	require.Len(t, published, 1)
	assert.Equal(t, telemetry.StatusOK, published[0].Status)
	assert.Equal(t, "fast", published[0].Mode)
	assert.Equal(t, res.RunID.String(), published[0].RunID)
	assert.Equal(t, uint64(len(envs)), published[0].Envelopes)
}

func TestFastRunUsesHistory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.history.Append(context.Background(), "session-1", "earlier question", "earlier answer"))

	_, err := f.exec.Run(context.Background(), fastRequest("and now?"), &recorder{})
	require.NoError(t, err)

	f.provider.mu.Lock()
	defer f.provider.mu.Unlock()
	require.NotEmpty(t, f.provider.prompts)
	prompt := f.provider.prompts[0]
	require.Len(t, prompt.History, 2)
	assert.Equal(t, "earlier question", prompt.History[0].Content)
	assert.NotEmpty(t, prompt.Instructions)
}

func TestFastRunWithFiles(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	_, err := f.exec.Run(context.Background(),
		fastRequest("summarize the notes", "https://files.test/notes.txt", "https://files.test/broken.txt"), rec)
	require.NoError(t, err)
	requireOrdered(t, rec.Envelopes())

	stages := rec.Stages()
	start := slices.Index(stages, events.StageFileExtractStart)
	done := slices.Index(stages, events.StageFileExtractDone)
	require.GreaterOrEqual(t, start, 0)
	require.Greater(t, done, start)
	assert.Equal(t, []events.Stage{events.StageFileExtractItem, events.StageFileExtractItem}, stages[start+1:done])
	assert.Less(t, done, slices.Index(stages, events.StageRAG))

	items := rec.All(events.StageFileExtractItem)
	statuses := map[string]string{}
	for _, it := range items {
		statuses[it.Payload.Get("url").String()] = it.Status()
	}
	assert.Equal(t, StatusOK, statuses["https://files.test/notes.txt"])
	assert.Equal(t, StatusFailed, statuses["https://files.test/broken.txt"])

	d := rec.First(t, events.StageFileExtractDone)
	assert.Equal(t, int64(1), d.Payload.Get("succeeded").Int())
	assert.Equal(t, int64(1), d.Payload.Get("failed").Int())

	f.provider.mu.Lock()
	defer f.provider.mu.Unlock()
	assert.Contains(t, f.provider.prompts[0].Input, "attached notes about https://files.test/notes.txt")
}

func TestFastRunFallsBackOnGenerationFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.set(provider.PurposeFast, script{chunks: []string{"partial "}, err: errors.New("model overloaded")})
	rec := &recorder{}

	res, err := f.exec.Run(context.Background(), fastRequest("why is the sky blue?"), rec)
	require.NoError(t, err)
	requireOrdered(t, rec.Envelopes())

	final := rec.Last()
	assert.Equal(t, events.StageAnswerFinal, final.Stage)
	assert.Equal(t, fallbackResponse(f), final.Payload.Get("answer").String())
	assert.True(t, final.Payload.Get("fallback").Bool())
	assert.True(t, res.Fallback)

	var fallbackText string
	for _, d := range rec.All(events.StageAnswerDelta) {
		if d.Payload.Get("fallback").Bool() {
			fallbackText += d.Payload.Get("text").String()
		}
	}
	assert.Equal(t, fallbackResponse(f), fallbackText)

	deltas := rec.All(events.StageAnswerDelta)
	require.Greater(t, len(deltas), 1)
	assert.False(t, deltas[0].Payload.Get("reset").Bool())
	assert.True(t, deltas[1].Payload.Get("reset").Bool())
	for _, d := range deltas[2:] {
		assert.False(t, d.Payload.Get("reset").Bool())
	}
	assert.Equal(t, final.Payload.Get("answer").String(), assembleAnswer(deltas))
}

// assembleAnswer concatenates delta text the way a streaming client does,
// starting over at a reset delta.
func assembleAnswer(deltas []events.Envelope) string {
	var sb strings.Builder
	for _, d := range deltas {
		if d.Payload.Get("reset").Bool() {
			sb.Reset()
		}
		sb.WriteString(d.Payload.Get("text").String())
	}
	return sb.String()
}

func fallbackResponse(f *fixture) string {
	return f.exec.Settings().FallbackResponse
}

func TestFastRunWithoutAnyAnswerFails(t *testing.T) {
	f := newFixture(t, withSettings(func(s *Settings) { s.FallbackResponse = "" }))
	f.provider.set(provider.PurposeFast, script{startErr: errors.New("model offline")})
	rec := &recorder{}

	_, err := f.exec.Run(context.Background(), fastRequest("why is the sky blue?"), rec)
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "answer", serr.Stage)

	last := rec.Last()
	assert.Equal(t, events.StageError, last.Stage)
	assert.Equal(t, "answer", last.Payload.Get("stage").String())
	assert.Empty(t, rec.All(events.StageAnswerFinal))

	f.drain(t)
	published := f.telemetry.Events()
	require.Len(t, published, 1)
	assert.Equal(t, telemetry.StatusError, published[0].Status)
}

func TestCollaboratorFailuresAreContained(t *testing.T) {
	tests := []struct {
		name   string
		deps   func(*Deps)
		stage  events.Stage
		status string
	}{
		{
			name:   "history",
			deps:   func(d *Deps) { d.History = brokenHistory{} },
			stage:  events.StageHistory,
			status: StatusFailed,
		},
		{
			name: "retrieval",
			deps: func(d *Deps) {
				d.Searcher = searcherFunc(func(context.Context, string, int, float64) ([]retrieval.Hit, error) {
					return nil, errors.New("index offline")
				})
			},
			stage:  events.StageRAG,
			status: StatusFailed,
		},
		{
			name: "telemetry",
			deps: func(d *Deps) {
				d.Telemetry = telemetry.PublisherFunc(func(context.Context, telemetry.Event) error {
					panic("sink exploded")
				})
			},
			stage:  events.StageRAG,
			status: StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, withDeps(tt.deps))
			rec := &recorder{}

			res, err := f.exec.Run(context.Background(), fastRequest("why is the sky blue?"), rec)
			require.NoError(t, err)
			requireOrdered(t, rec.Envelopes())

			assert.Equal(t, tt.status, rec.First(t, tt.stage).Status())
			assert.Equal(t, events.StageAnswerFinal, rec.Last().Stage)
			assert.Equal(t, "Blue light scatters more.", res.Answer)
		})
	}
}

func TestDeepRun(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	res, err := f.exec.Run(context.Background(), deepRequest("why is the sky blue?"), rec)
	require.NoError(t, err)
	requireOrdered(t, rec.Envelopes())

	assert.Equal(t, []events.Stage{
		events.StageStart,
		events.StageRAG,
		events.StageDeepPlanDone,
		events.StageDeepReasoning,
		events.StageDeepToolOrchDone,
		events.StageDeepVerification,
		events.StageDeepReflection,
		events.StageAnswerDelta,
		events.StageAnswerDelta,
		events.StageDeepSynthesis,
		events.StageAnswerFinal,
	}, rec.Stages())

	plan := rec.First(t, events.StageDeepPlanDone)
	assert.Equal(t, StatusOK, plan.Status())
	assert.Equal(t, "Explain why the sky is blue", plan.Payload.Get("plan.objective").String())
	assert.Empty(t, plan.Payload.Get("plan.constraints").Array())
	assert.Len(t, plan.Payload.Get("plan.subtasks").Array(), 3)

	reflection := rec.First(t, events.StageDeepReflection)
	assert.Equal(t, string(runstate.FollowUpProceed), reflection.Payload.Get("action").String())

	assert.Equal(t, runstate.ModeDeep, res.Mode)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, "The sky is blue.", res.Answer)
	assert.Equal(t, 3, res.Audit.Count)
	assert.Equal(t, []string{"analysis", "comparison", "memory.write"}, []string{
		f.tools.Calls()[0].Name, f.tools.Calls()[1].Name, f.tools.Calls()[2].Name,
	})

	f.provider.mu.Lock()
	defer f.provider.mu.Unlock()
	last := f.provider.prompts[len(f.provider.prompts)-1]
	assert.Equal(t, provider.PurposeSynthesis, last.Purpose)
	assert.Contains(t, last.Input, testReasoning)
	assert.Contains(t, last.Input, "blue light scatters")
}

func TestDeepRunVerifiesAgainstAttachedFiles(t *testing.T) {
	const fact = "The reactor coolant loop operates at two hundred ninety degrees Celsius."
	ex, err := extract.New(extract.FetcherFunc(func(_ context.Context, url string) (extract.Blob, error) {
		return extract.Blob{URL: url, ContentType: "text/plain", Data: []byte(fact)}, nil
	}))
	require.NoError(t, err)

	f := newFixture(t, withDeps(func(d *Deps) {
		d.Extractor = ex
		d.Verifier = verify.NewHeuristic()
	}))
	f.provider.set(provider.PurposeReasoning, script{chunks: []string{fact}})
	rec := &recorder{}

	req := deepRequest("At what temperature does the coolant loop run?")
	req.Files = []string{"https://files.test/reactor.txt"}
	res, err := f.exec.Run(context.Background(), req, rec)
	require.NoError(t, err)
	requireOrdered(t, rec.Envelopes())

	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, 1, f.provider.calls(provider.PurposeReasoning))
	verification := rec.First(t, events.StageDeepVerification)
	assert.InDelta(t, 1.0, verification.Payload.Get("consistency_score").Float(), 1e-9)
	assert.Empty(t, verification.Payload.Get("unresolved_claims").Array())
	reflection := rec.First(t, events.StageDeepReflection)
	assert.Equal(t, string(runstate.FollowUpProceed), reflection.Payload.Get("action").String())
	assert.False(t, reflection.Payload.Get("forced").Bool())
}

func TestDeepEmptyQuestionUsesDirectResponsePlan(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}

	_, err := f.exec.Run(context.Background(), deepRequest("   "), rec)
	require.NoError(t, err)
	requireOrdered(t, rec.Envelopes())

	plan := rec.First(t, events.StageDeepPlanDone)
	assert.Equal(t, StatusFallback, plan.Status())
	subtasks := plan.Payload.Get("plan.subtasks").Array()
	require.Len(t, subtasks, 1)
	assert.Equal(t, runstate.DirectResponseSubtask, subtasks[0].String())
	assert.Zero(t, f.provider.calls(provider.PurposePlan))
	assert.Equal(t, events.StageAnswerFinal, rec.Last().Stage)
}

func TestDeepPlanFailureUsesDirectResponsePlan(t *testing.T) {
	tests := []struct {
		name   string
		script script
	}{
		{"generation error", script{startErr: errors.New("model offline")}},
		{"not json", script{chunks: []string{"I would first look at the sky."}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.provider.set(provider.PurposePlan, tt.script)
			rec := &recorder{}

			_, err := f.exec.Run(context.Background(), deepRequest("why is the sky blue?"), rec)
			require.NoError(t, err)

			plan := rec.First(t, events.StageDeepPlanDone)
			assert.Equal(t, StatusFallback, plan.Status())
			assert.NotEmpty(t, plan.Payload.Get("reason").String())
			assert.Equal(t, runstate.DirectResponseSubtask, plan.Payload.Get("plan.subtasks.0").String())
			assert.Equal(t, "skipped", rec.First(t, events.StageDeepToolOrchDone).Status())
		})
	}
}

func TestDeepOneFailingIntentDoesNotAbortRound(t *testing.T) {
	f := newFixture(t)
	f.tools.fail["comparison"] = true
	rec := &recorder{}

	res, err := f.exec.Run(context.Background(), deepRequest("why is the sky blue?"), rec)
	require.NoError(t, err)
	requireOrdered(t, rec.Envelopes())

	orch := rec.First(t, events.StageDeepToolOrchDone)
	assert.Equal(t, int64(3), orch.Payload.Get("tools").Int())
	assert.Equal(t, int64(2), orch.Payload.Get("success_count").Int())
	assert.Equal(t, int64(1), orch.Payload.Get("failure_count").Int())
	assert.Equal(t, int64(1), orch.Payload.Get("audit.failure_count").Int())
	assert.Contains(t, orch.Payload.Get("audit.failures.0").String(), "comparison")

	stages := rec.Stages()
	assert.Greater(t, slices.Index(stages, events.StageDeepVerification), slices.Index(stages, events.StageDeepToolOrchDone))

	require.Len(t, res.Audit.Rounds, 1)
	assert.Equal(t, 1, res.Audit.Rounds[0].FailureCount)
	assert.Len(t, f.tools.Calls(), 3)
}

func TestDeepRoundsAreBounded(t *testing.T) {
	tests := []struct {
		name      string
		maxRounds int
		verifier  float64
		want      int
	}{
		{"single round cap", 1, 0.3, 1},
		{"retries until cap", 3, 0.3, 3},
		{"proceeds early", 5, 0.95, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t,
				withSettings(func(s *Settings) { s.MaxRounds = tt.maxRounds }),
				withDeps(func(d *Deps) { d.Verifier = fixedVerifier(tt.verifier) }),
			)
			rec := &recorder{}

			res, err := f.exec.Run(context.Background(), deepRequest("why is the sky blue?"), rec)
			require.NoError(t, err)
			requireOrdered(t, rec.Envelopes())

			assert.Equal(t, tt.want, res.Rounds)
			assert.Len(t, rec.All(events.StageDeepReasoning), tt.want)
			reflections := rec.All(events.StageDeepReflection)
			require.Len(t, reflections, tt.want)
			for _, r := range reflections {
				assert.LessOrEqual(t, r.Payload.Get("round").Int(), int64(tt.maxRounds))
			}
			last := reflections[len(reflections)-1]
			assert.Equal(t, string(runstate.FollowUpProceed), last.Payload.Get("action").String())
			assert.Equal(t, events.StageAnswerFinal, rec.Last().Stage)
		})
	}
}

func TestDeepToolRoundsAreLimited(t *testing.T) {
	f := newFixture(t,
		withSettings(func(s *Settings) {
			s.MaxRounds = 2
			s.MaxToolRounds = 1
		}),
		withDeps(func(d *Deps) { d.Verifier = fixedVerifier(0.3) }),
	)
	f.tools.fail["analysis"] = true
	rec := &recorder{}

	_, err := f.exec.Run(context.Background(), deepRequest("why is the sky blue?"), rec)
	require.NoError(t, err)

	orch := rec.All(events.StageDeepToolOrchDone)
	require.Len(t, orch, 2)
	assert.Equal(t, StatusOK, orch[0].Status())
	assert.Equal(t, StatusSkipped, orch[1].Status())
	assert.Contains(t, orch[1].Payload.Get("reason").String(), "limited to 1")
	assert.Len(t, f.tools.Calls(), 3)
}

func TestDeepCapsIntentsPerRound(t *testing.T) {
	f := newFixture(t, withSettings(func(s *Settings) { s.ToolCap = 2 }))
	rec := &recorder{}

	_, err := f.exec.Run(context.Background(), deepRequest("why is the sky blue?"), rec)
	require.NoError(t, err)
	assert.Len(t, f.tools.Calls(), 2)
	assert.Equal(t, int64(2), rec.First(t, events.StageDeepToolOrchDone).Payload.Get("tools").Int())
}

func TestDeepReasoningTimeoutDegradesToSynthesis(t *testing.T) {
	f := newFixture(t, withSettings(func(s *Settings) { s.ReasoningTimeout = 50 * time.Millisecond }))
	f.provider.set(provider.PurposeReasoning, script{block: true})
	rec := &recorder{}

	res, err := f.exec.Run(context.Background(), deepRequest("why is the sky blue?"), rec)
	require.NoError(t, err)
	requireOrdered(t, rec.Envelopes())

	reflection := rec.First(t, events.StageDeepReflection)
	assert.Equal(t, StatusDegraded, reflection.Status())
	assert.Contains(t, reflection.Payload.Get("reason").String(), "deadline")
	assert.Empty(t, rec.All(events.StageDeepReasoning))
	assert.Equal(t, "The sky is blue.", res.Answer)
	assert.Equal(t, events.StageAnswerFinal, rec.Last().Stage)
}

func TestDeepSynthesisFallbacks(t *testing.T) {
	tests := []struct {
		name       string
		reasoning  script
		fallback   string
		wantSource string
		wantAnswer string
		wantErr    bool
	}{
		{
			name:       "latest reasoning",
			reasoning:  script{chunks: []string{testReasoning}},
			fallback:   "unused",
			wantSource: "reasoning",
			wantAnswer: testReasoning,
		},
		{
			name:       "configured fallback",
			reasoning:  script{startErr: errors.New("model offline")},
			fallback:   "Could not finish the analysis.",
			wantSource: "fallback",
			wantAnswer: "Could not finish the analysis.",
		},
		{
			name:      "nothing left",
			reasoning: script{startErr: errors.New("model offline")},
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, withSettings(func(s *Settings) { s.SynthesisFallback = tt.fallback }))
			f.provider.set(provider.PurposeReasoning, tt.reasoning)
			f.provider.set(provider.PurposeSynthesis, script{startErr: errors.New("model offline")})
			rec := &recorder{}

			res, err := f.exec.Run(context.Background(), deepRequest("why is the sky blue?"), rec)
			requireOrdered(t, rec.Envelopes())

			if tt.wantErr {
				var serr *StageError
				require.ErrorAs(t, err, &serr)
				assert.Equal(t, "synthesis", serr.Stage)
				assert.True(t, serr.Critical)
				assert.Equal(t, events.StageError, rec.Last().Stage)
				return
			}
			require.NoError(t, err)
			synth := rec.First(t, events.StageDeepSynthesis)
			assert.Equal(t, StatusFallback, synth.Status())
			assert.Equal(t, tt.wantSource, synth.Payload.Get("source").String())
			assert.Equal(t, tt.wantAnswer, res.Answer)
			assert.True(t, rec.Last().Payload.Get("fallback").Bool())
		})
	}
}

func TestCancellationStopsEmission(t *testing.T) {
	f := newFixture(t)
	f.provider.set(provider.PurposeFast, script{chunks: []string{"one ", "two ", "three ", "four ", "five"}})
	f.telemetry.err = errors.New("sink unavailable")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	rec.on = func(env events.Envelope) {
		if env.Stage == events.StageAnswerDelta {
			cancel()
		}
	}

	_, err := f.exec.Run(ctx, fastRequest("why is the sky blue?"), rec)
	require.ErrorIs(t, err, context.Canceled)

	envs := rec.Envelopes()
	requireOrdered(t, envs)
	assert.Equal(t, events.StageAnswerDelta, rec.Last().Stage)
	assert.Len(t, rec.All(events.StageAnswerDelta), 1)
	assert.Empty(t, rec.All(events.StageAnswerFinal))

	f.drain(t)
	published := f.telemetry.Events()
	require.Len(t, published, 1)
	assert.Equal(t, telemetry.StatusError, published[0].Status)
	assert.Len(t, rec.Envelopes(), len(envs))
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	hook, ch := events.ChannelHook(64)

	fut := f.exec.Submit(context.Background(), fastRequest("why is the sky blue?"), hook)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := fut.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Blue light scatters more.", res.Answer)

	close(ch)
	var got []events.Envelope
	for env := range ch {
		got = append(got, env)
	}
	requireOrdered(t, got)
	assert.Equal(t, events.StageAnswerFinal, got[len(got)-1].Stage)
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := New(Deps{}, DefaultSettings())
	require.Error(t, err)

	s := DefaultSettings()
	s.MaxRounds = 0
	_, err = New(Deps{Provider: newScriptedProvider()}, s)
	require.ErrorContains(t, err, "max rounds")
}
