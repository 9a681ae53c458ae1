package broker

import (
	"context"
	"log/slog"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/pkg/slogx"
)

// TopicOf routes an envelope to its session topic. Runs without a session
// get a topic of their own.
func TopicOf(env events.Envelope) string {
	if env.SessionID != "" {
		return env.SessionID
	}
	return "run." + env.RunID.String()
}

// PublishHook returns a hook that republishes every envelope of a run on the broker.
// A nil topicOf uses TopicOf. Publish failures are logged and never reach the run.
func PublishHook(b Broker, topicOf func(events.Envelope) string) events.Hook {
	if topicOf == nil {
		topicOf = TopicOf
	}
	logger := slog.Default().With(slogx.LoggerName("strix.broker"))
	return events.HookFunc(func(ctx context.Context, env events.Envelope) {
		id := topicOf(env)
		if err := b.Topic(ctx, id).Publish(ctx, env); err != nil {
			logger.WarnContext(ctx, "failed to publish envelope",
				slogx.Error(err),
				slog.String("topic", id),
				slog.Uint64("seq", env.Seq),
			)
		}
	})
}
