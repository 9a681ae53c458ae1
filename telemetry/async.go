package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casualjim/strix/pkg/slogx"
)

// DefaultQueueSize is the queue length of an Async publisher.
const DefaultQueueSize = 64

// DefaultPublishTimeout bounds a single delivery attempt.
const DefaultPublishTimeout = 5 * time.Second

// ErrClosed is returned when publishing on a closed Async publisher.
var ErrClosed = errors.New("telemetry publisher closed")

// NewAsync starts a background worker delivering events to pub.
func NewAsync(pub Publisher, queueSize int) *Async {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	a := &Async{
		pub:     pub,
		queue:   make(chan Event, queueSize),
		done:    make(chan struct{}),
		timeout: DefaultPublishTimeout,
	}
	go a.loop()
	return a
}

// Async queues events and delivers them from a single goroutine.
type Async struct {
	pub     Publisher
	queue   chan Event
	done    chan struct{}
	timeout time.Duration

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
}

// Publish enqueues ev without blocking. A full queue drops the event.
func (a *Async) Publish(_ context.Context, ev Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- ev:
		return nil
	default:
		a.dropped.Add(1)
		slog.Warn("telemetry queue full, dropping event", slogx.LoggerName("strix.telemetry"), slog.String("run_id", ev.RunID))
		return nil
	}
}

// Dropped reports how many events were dropped because the queue was full.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

func (a *Async) loop() {
	defer close(a.done)
	for ev := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.pub.Publish(ctx, ev); err != nil {
			slog.Warn("failed to publish telemetry", slogx.LoggerName("strix.telemetry"), slog.String("run_id", ev.RunID), slogx.Error(err))
		}
		cancel()
	}
}

// Close stops accepting events and waits until the queued ones are delivered
// or ctx is done.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
