package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingHook struct {
	envelopes []Envelope
}

func (r *recordingHook) OnEnvelope(_ context.Context, env Envelope) {
	r.envelopes = append(r.envelopes, env)
}

func TestCompositeHook(t *testing.T) {
	r1, r2 := &recordingHook{}, &recordingHook{}
	composite := NewCompositeHook(r1, nil, r2)

	composite.OnEnvelope(context.Background(), Envelope{Seq: 1, Stage: StageStart})
	composite.OnEnvelope(context.Background(), Envelope{Seq: 2, Stage: StageAnswerFinal})

	for _, r := range []*recordingHook{r1, r2} {
		if assert.Len(t, r.envelopes, 2) {
			assert.Equal(t, uint64(1), r.envelopes[0].Seq)
			assert.Equal(t, StageAnswerFinal, r.envelopes[1].Stage)
		}
	}
}

func TestChannelHook(t *testing.T) {
	hook, ch := ChannelHook(1)

	hook.OnEnvelope(context.Background(), Envelope{Seq: 1})
	assert.Equal(t, uint64(1), (<-ch).Seq)

	t.Run("drops when context is done", func(t *testing.T) {
		hook.OnEnvelope(context.Background(), Envelope{Seq: 2})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		done := make(chan struct{})
		go func() {
			hook.OnEnvelope(ctx, Envelope{Seq: 3})
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("hook blocked on a full channel after cancellation")
		}
		assert.Equal(t, uint64(2), (<-ch).Seq)
		assert.Empty(t, ch)
	})
}

func TestLoggingHook(t *testing.T) {
	hook := LoggingHook()
	assert.NotPanics(t, func() {
		hook.OnEnvelope(context.Background(), Envelope{Stage: StageAnswerDelta})
		hook.OnEnvelope(context.Background(), Envelope{Stage: StageError, Message: "boom"})
		hook.OnEnvelope(context.Background(), Envelope{Stage: StageRAG, Message: "retrieved"})
	})
}
