package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/pkg/uuidx"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to every topic id to form the NATS subject.
const DefaultSubjectPrefix = "strix.envelopes"

var subjectReplacer = strings.NewReplacer(" ", "_", ".", "_", "*", "_", ">", "_")

// Subject returns the NATS subject envelopes for the topic id are published on.
func Subject(id string) string {
	return DefaultSubjectPrefix + "." + subjectReplacer.Replace(id)
}

type natsBroker struct {
	client *nats.Conn
	topics *haxmap.Map[string, *natsTopic]
}

func NATS(client *nats.Conn) *natsBroker {
	return &natsBroker{
		client: client,
		topics: haxmap.New[string, *natsTopic](),
	}
}

func (b *natsBroker) Topic(ctx context.Context, id string) Topic {
	top, _ := b.topics.GetOrCompute(id, func() *natsTopic {
		return &natsTopic{
			subject: Subject(id),
			client:  b.client,
		}
	})
	return top
}

type natsTopic struct {
	client  *nats.Conn
	subject string
}

func (t *natsTopic) Publish(ctx context.Context, env events.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	eb, err := env.MarshalJSON()
	if err != nil {
		return err
	}
	return t.client.Publish(t.subject, eb)
}

func (t *natsTopic) Subscribe(ctx context.Context, hook events.Hook) (Subscription, error) {
	if hook == nil {
		return nil, fmt.Errorf("hook is required")
	}
	id := uuidx.NewString()
	ch := make(chan events.Envelope, subscriptionBuffer)
	done := make(chan struct{})

	nsub, err := t.client.Subscribe(t.subject, func(msg *nats.Msg) {
		env, err := events.FromJSON(msg.Data)
		if err != nil {
			slog.Error("failed to unmarshal envelope", slogx.Error(err), slog.String("subject", msg.Subject))
			return
		}

		select {
		case ch <- env:
		case <-done:
			return
		case <-ctx.Done():
			return
		}

		if msg.Reply != "" {
			if nerr := msg.Ack(); nerr != nil {
				slog.Error("failed to ack message", slogx.Error(nerr))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	nsub.SetClosedHandler(func(_ string) { close(done) })

	go func() {
		for {
			select {
			case env := <-ch:
				hook.OnEnvelope(ctx, env)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return &natsSubscription{
		id:  id,
		sub: nsub,
	}, nil
}

type natsSubscription struct {
	id  string
	sub *nats.Subscription
}

func (n *natsSubscription) ID() string {
	return n.id
}

func (n *natsSubscription) Unsubscribe() {
	if err := n.sub.Unsubscribe(); err != nil {
		slog.Error("failed to unsubscribe", slogx.Error(err), slog.String("subscription", n.id))
	}
}
