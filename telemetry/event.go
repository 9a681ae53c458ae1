package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casualjim/strix/pkg/audit"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

// Statuses of a finished run.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// DefaultSubject is the NATS subject telemetry events are published on.
const DefaultSubject = "strix.telemetry"

// Event summarizes one finished run.
type Event struct {
	RunID       string          `json:"run_id"`
	TraceID     string          `json:"trace_id"`
	SessionID   string          `json:"session_id,omitempty"`
	Mode        string          `json:"mode"`
	RouteScore  float64         `json:"route_score"`
	Status      string          `json:"status"`
	Error       string          `json:"error,omitempty"`
	Rounds      int             `json:"rounds"`
	LatencyMS   int64           `json:"latency_ms"`
	AnswerChars int             `json:"answer_chars"`
	Envelopes   uint64          `json:"envelopes"`
	Audit       audit.Aggregate `json:"audit"`
	Timestamp   strfmt.DateTime `json:"timestamp"`
}

// Publisher delivers telemetry events to a sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// LogPublisher writes events as structured log records.
func LogPublisher(logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slogx.LoggerName("strix.telemetry"))
	return PublisherFunc(func(ctx context.Context, ev Event) error {
		logger.InfoContext(ctx, "run finished",
			slog.String("run_id", ev.RunID),
			slog.String("trace_id", ev.TraceID),
			slog.String("mode", ev.Mode),
			slog.String("status", ev.Status),
			slog.Int("rounds", ev.Rounds),
			slog.Int64("latency_ms", ev.LatencyMS),
			slog.Int("tool_calls", ev.Audit.Count),
			slog.Int("answer_chars", ev.AnswerChars),
		)
		return nil
	})
}

// NewNATSPublisher publishes events as JSON on subject.
func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject}
}

// NATSPublisher publishes events to a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish telemetry event: %w", err)
	}
	return nil
}

// Subscribe decodes events published on subject and hands them to fn.
func Subscribe(conn *nats.Conn, subject string, fn func(Event)) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	return conn.Subscribe(subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Error("failed to unmarshal telemetry event", slogx.Error(err))
			return
		}
		fn(ev)
	})
}
