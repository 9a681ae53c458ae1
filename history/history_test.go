package history

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown session is empty", func(t *testing.T) {
		m := NewMemory(0)
		turns, err := m.Recent(ctx, "nope", 10)
		require.NoError(t, err)
		assert.Empty(t, turns)
	})

	t.Run("append then recent", func(t *testing.T) {
		m := NewMemory(0)
		require.NoError(t, m.Append(ctx, "s1", "q1", "a1"))
		require.NoError(t, m.Append(ctx, "s1", "q2", "a2"))

		turns, err := m.Recent(ctx, "s1", 10)
		require.NoError(t, err)
		require.Len(t, turns, 4)
		assert.Equal(t, RoleUser, turns[0].Role)
		assert.Equal(t, "q1", turns[0].Content)
		assert.Equal(t, RoleAssistant, turns[3].Role)
		assert.Equal(t, "a2", turns[3].Content)
	})

	t.Run("limit keeps most recent", func(t *testing.T) {
		m := NewMemory(0)
		for i := range 5 {
			require.NoError(t, m.Append(ctx, "s1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
		}
		turns, err := m.Recent(ctx, "s1", 3)
		require.NoError(t, err)
		require.Len(t, turns, 3)
		assert.Equal(t, "a3", turns[0].Content)
		assert.Equal(t, "a4", turns[2].Content)
	})

	t.Run("capacity trims storage", func(t *testing.T) {
		m := NewMemory(4)
		for i := range 5 {
			require.NoError(t, m.Append(ctx, "s1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
		}
		turns, err := m.Recent(ctx, "s1", 0)
		require.NoError(t, err)
		require.Len(t, turns, 4)
		assert.Equal(t, "q3", turns[0].Content)
	})

	t.Run("append requires session", func(t *testing.T) {
		m := NewMemory(0)
		assert.ErrorIs(t, m.Append(ctx, "", "q", "a"), ErrNoSession)
	})

	t.Run("cancelled context", func(t *testing.T) {
		m := NewMemory(0)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := m.Recent(cctx, "s1", 1)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("concurrent appends", func(t *testing.T) {
		m := NewMemory(0)
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, m.Append(ctx, "s1", fmt.Sprint(i), fmt.Sprint(i)))
			}()
		}
		wg.Wait()
		turns, err := m.Recent(ctx, "s1", 0)
		require.NoError(t, err)
		assert.Len(t, turns, 40)
	})
}
