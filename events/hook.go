package events

import (
	"context"
	"log/slog"
	"slices"

	"github.com/casualjim/strix/pkg/slogx"
)

// Hook receives the envelopes of a run in sequence order.
type Hook interface {
	OnEnvelope(context.Context, Envelope)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(context.Context, Envelope)

func (f HookFunc) OnEnvelope(ctx context.Context, env Envelope) {
	f(ctx, env)
}

// Discard is a hook that drops every envelope.
var Discard Hook = HookFunc(func(context.Context, Envelope) {})

// LoggingHook returns a hook that logs every envelope except answer fragments,
// which are logged at debug level only.
func LoggingHook() Hook {
	return &loggingHook{logger: slog.Default().With(slogx.LoggerName("strix.events"))}
}

type loggingHook struct {
	logger *slog.Logger
}

func (l *loggingHook) OnEnvelope(ctx context.Context, env Envelope) {
	attrs := []any{
		slogx.RunID(env.RunID),
		slog.Uint64("seq", env.Seq),
		slogx.Stage(env.Stage.String()),
	}
	switch env.Stage {
	case StageAnswerDelta:
		l.logger.DebugContext(ctx, "answer fragment", append(attrs, slog.Int("chars", len(env.Payload.Get("text").String())))...)
	case StageError:
		l.logger.ErrorContext(ctx, env.Message, append(attrs, slog.String("payload", env.Payload.Raw))...)
	default:
		l.logger.InfoContext(ctx, env.Message, append(attrs, slog.String("payload", env.Payload.Raw))...)
	}
}

// NewCompositeHook combines hooks so each envelope reaches all of them in order.
func NewCompositeHook(hooks ...Hook) Hook {
	return CompositeHook(slices.DeleteFunc(hooks, func(h Hook) bool { return h == nil }))
}

// CompositeHook fans an envelope out to several hooks.
type CompositeHook []Hook

func (c CompositeHook) OnEnvelope(ctx context.Context, env Envelope) {
	for h := range slices.Values(c) {
		h.OnEnvelope(ctx, env)
	}
}

// ChannelHook returns a hook that forwards envelopes to a buffered channel.
// Sends block until there is room or ctx is done, in which case the envelope is dropped.
// The channel is never closed by the hook; whoever drives the run closes it when the run returns.
func ChannelHook(buffer int) (Hook, chan Envelope) {
	ch := make(chan Envelope, buffer)
	return HookFunc(func(ctx context.Context, env Envelope) {
		select {
		case ch <- env:
		case <-ctx.Done():
		}
	}), ch
}
