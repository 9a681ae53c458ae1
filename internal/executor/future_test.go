package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		fut := NewFuture[string]()
		go fut.Complete("done")

		got, err := fut.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "done", got)
	})

	t.Run("error", func(t *testing.T) {
		fut := NewFuture[int]()
		fut.Error(errors.New("boom"))

		got, err := fut.Get(context.Background())
		require.EqualError(t, err, "boom")
		assert.Zero(t, got)
	})

	t.Run("first write wins", func(t *testing.T) {
		fut := NewFuture[string]()
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(2)
			go func() { defer wg.Done(); fut.Complete("value") }()
			go func() { defer wg.Done(); fut.Error(errors.New("boom")) }()
		}
		wg.Wait()

		select {
		case <-fut.Done():
		default:
			t.Fatal("future not done")
		}
		v1, err1 := fut.Get(context.Background())
		v2, err2 := fut.Get(context.Background())
		assert.Equal(t, v1, v2)
		assert.Equal(t, err1, err2)
	})

	t.Run("get honours context", func(t *testing.T) {
		fut := NewFuture[string]()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := fut.Get(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
