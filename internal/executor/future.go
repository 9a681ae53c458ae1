package executor

import (
	"context"
	"sync"
)

type CompletableFuture[T any] interface {
	Future[T]
	Promise[T]
}

// Promise is the write side of a Future. Only the first call to either method counts.
type Promise[T any] interface {
	Complete(T)
	Error(error)
}

// Future is the read side of an asynchronous result.
type Future[T any] interface {
	// Get blocks until the result is available or ctx is done.
	Get(ctx context.Context) (T, error)
	// Done is closed once the result is available.
	Done() <-chan struct{}
}

type future[T any] struct {
	done   chan struct{}
	once   sync.Once
	result T
	err    error
}

func NewFuture[T any]() CompletableFuture[T] {
	return &future[T]{done: make(chan struct{})}
}

func (f *future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *future[T]) Complete(value T) {
	f.once.Do(func() {
		f.result = value
		close(f.done)
	})
}

func (f *future[T]) Error(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}
