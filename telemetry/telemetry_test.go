package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/strix/pkg/audit"
	"github.com/casualjim/strix/pkg/natsx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) runIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.events))
	for i, ev := range r.events {
		ids[i] = ev.RunID
	}
	return ids
}

func TestAsyncDeliversInOrder(t *testing.T) {
	rec := &recorder{}
	a := NewAsync(rec, 8)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, a.Publish(context.Background(), Event{RunID: id}))
	}
	require.NoError(t, a.Close(context.Background()))

	assert.Equal(t, []string{"a", "b", "c"}, rec.runIDs())
	assert.ErrorIs(t, a.Publish(context.Background(), Event{RunID: "late"}), ErrClosed)
	assert.NoError(t, a.Close(context.Background()))
}

func TestAsyncDropsWhenFull(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	rec := &recorder{}
	a := NewAsync(PublisherFunc(func(ctx context.Context, ev Event) error {
		once.Do(func() { close(started) })
		<-release
		return rec.Publish(ctx, ev)
	}), 1)

	require.NoError(t, a.Publish(context.Background(), Event{RunID: "first"}))
	<-started
	require.NoError(t, a.Publish(context.Background(), Event{RunID: "queued"}))
	require.NoError(t, a.Publish(context.Background(), Event{RunID: "dropped"}))
	assert.EqualValues(t, 1, a.Dropped())

	close(release)
	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, []string{"first", "queued"}, rec.runIDs())
}

func TestAsyncSurvivesPublisherErrors(t *testing.T) {
	var calls int
	var mu sync.Mutex
	a := NewAsync(PublisherFunc(func(context.Context, Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("sink down")
	}), 4)

	require.NoError(t, a.Publish(context.Background(), Event{RunID: "1"}))
	require.NoError(t, a.Publish(context.Background(), Event{RunID: "2"}))
	require.NoError(t, a.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestAsyncCloseHonoursContext(t *testing.T) {
	release := make(chan struct{})
	a := NewAsync(PublisherFunc(func(context.Context, Event) error {
		<-release
		return nil
	}), 1)
	require.NoError(t, a.Publish(context.Background(), Event{RunID: "slow"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Close(ctx), context.DeadlineExceeded)

	close(release)
	assert.NoError(t, a.Close(context.Background()))
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	pub := LogPublisher(logger)
	require.NoError(t, pub.Publish(context.Background(), Event{
		RunID:  "run-1",
		Mode:   "deep",
		Status: StatusOK,
		Rounds: 2,
		Audit:  audit.New().Aggregate(),
	}))

	out := buf.String()
	assert.Contains(t, out, `"msg":"run finished"`)
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"mode":"deep"`)
	assert.Contains(t, out, `"rounds":2`)
	assert.Contains(t, out, `"logger":"strix.telemetry"`)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RunStarted()
	m.RunStarted()
	assert.InDelta(t, 2, testutil.ToFloat64(m.activeRuns), 0)

	m.RunFinished("deep", true, 3, time.Second)
	m.RunFinished("fast", false, 0, 10*time.Millisecond)
	assert.InDelta(t, 0, testutil.ToFloat64(m.activeRuns), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues("deep", StatusOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues("fast", StatusError)), 0)

	m.ToolCalled("analysis", true, 5*time.Millisecond)
	m.ToolCalled("analysis", false, 5*time.Millisecond)
	m.ToolCalled("analysis", true, 5*time.Millisecond)
	assert.InDelta(t, 2, testutil.ToFloat64(m.toolCalls.WithLabelValues("analysis", StatusOK)), 0)

	m.StageObserved("rag", true, time.Millisecond)
	m.EnvelopeEmitted("answer_delta")
	m.EnvelopeEmitted("answer_delta")
	assert.InDelta(t, 2, testutil.ToFloat64(m.envelopes.WithLabelValues("answer_delta")), 0)

	count, err := testutil.GatherAndCount(reg, "strix_deep_rounds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RunStarted()
		m.RunFinished("fast", true, 0, time.Second)
		m.StageObserved("rag", true, time.Second)
		m.ToolCalled("analysis", true, time.Second)
		m.EnvelopeEmitted("start")
	})
}

func TestTracing(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	assert.Empty(t, TraceID(context.Background()))

	ctx, run := StartRun(context.Background(), "run-1", "session-1")
	traceID := TraceID(ctx)
	assert.Len(t, traceID, 32)

	stageCtx, stage := StartStage(ctx, "rag", false)
	assert.Equal(t, traceID, TraceID(stageCtx))
	EndSpan(stage, errors.New("search failed"))

	_, tool := StartTool(ctx, "analysis", 1)
	EndSpan(tool, nil)
	EndSpan(run, nil)

	ended := spans.Ended()
	require.Len(t, ended, 3)
	assert.Equal(t, "strix.stage.rag", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "strix.tool.analysis", ended[1].Name())
	assert.Equal(t, codes.Ok, ended[1].Status().Code)
	assert.Equal(t, "strix.run", ended[2].Name())
	assert.Equal(t, ended[2].SpanContext().SpanID(), ended[0].Parent().SpanID())
}

func TestNATSPublisher(t *testing.T) {
	if os.Getenv("NATS_URL") == "" {
		t.Skip("NATS_URL not set")
	}
	conn, err := natsx.NewClient("")
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	subject := "strix.telemetry.test"
	got := make(chan Event, 1)
	sub, err := Subscribe(conn, subject, func(ev Event) { got <- ev })
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	pub := NewNATSPublisher(conn, subject)
	require.NoError(t, pub.Publish(context.Background(), Event{RunID: "nats-run", Mode: "fast", Audit: audit.New().Aggregate()}))

	select {
	case ev := <-got:
		assert.Equal(t, "nats-run", ev.RunID)
		assert.Equal(t, "fast", ev.Mode)
	case <-time.After(5 * time.Second):
		t.Fatal("no telemetry event received")
	}
}
