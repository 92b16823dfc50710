package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimestampLog runs the behaviour every backend must share against a
// fresh log from newLog. Keys are unique per run so shared databases can be
// used.
func testTimestampLog(t *testing.T, newLog func(t *testing.T) TimestampLog) {
	t.Helper()

	key := func(name string) string {
		return fmt.Sprintf("test:%s:%s", name, uuid.NewString())
	}

	t.Run("ReadMissingKey", func(t *testing.T) {
		log := newLog(t)
		entries, err := log.Read(context.Background(), key("missing"))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("AppendPreservesOrder", func(t *testing.T) {
		log := newLog(t)
		ctx := context.Background()
		k := key("order")

		want := []string{"a", "b", "c", "d"}
		for _, e := range want {
			require.NoError(t, log.Append(ctx, k, e))
		}

		entries, err := log.Read(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, want, entries)
	})

	t.Run("ReadIsSideEffectFree", func(t *testing.T) {
		log := newLog(t)
		ctx := context.Background()
		k := key("reread")
		require.NoError(t, log.Append(ctx, k, "x"))
		require.NoError(t, log.Append(ctx, k, "y"))

		first, err := log.Read(ctx, k)
		require.NoError(t, err)
		second, err := log.Read(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		// Mutating the returned slice must not reach the log
		first[0] = "mutated"
		third, err := log.Read(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "y"}, third)
	})

	t.Run("PopOldestRemovesHead", func(t *testing.T) {
		log := newLog(t)
		ctx := context.Background()
		k := key("pop")
		for _, e := range []string{"1", "2", "3"} {
			require.NoError(t, log.Append(ctx, k, e))
		}

		require.NoError(t, log.PopOldest(ctx, k))
		entries, err := log.Read(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "3"}, entries)

		require.NoError(t, log.PopOldest(ctx, k))
		require.NoError(t, log.PopOldest(ctx, k))
		entries, err = log.Read(ctx, k)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("PopOldestOnEmptyIsNoop", func(t *testing.T) {
		log := newLog(t)
		assert.NoError(t, log.PopOldest(context.Background(), key("empty")))
	})

	t.Run("ClearRemovesAll", func(t *testing.T) {
		log := newLog(t)
		ctx := context.Background()
		k := key("clear")
		other := key("other")
		require.NoError(t, log.Append(ctx, k, "1"))
		require.NoError(t, log.Append(ctx, k, "2"))
		require.NoError(t, log.Append(ctx, other, "keep"))

		require.NoError(t, log.Clear(ctx, k))
		entries, err := log.Read(ctx, k)
		require.NoError(t, err)
		assert.Empty(t, entries)

		entries, err = log.Read(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, []string{"keep"}, entries)

		// Clearing a missing key is fine
		assert.NoError(t, log.Clear(ctx, key("never")))
	})

	t.Run("EmptyKeyRejected", func(t *testing.T) {
		log := newLog(t)
		ctx := context.Background()

		_, err := log.Read(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyKey)
		assert.ErrorIs(t, log.Append(ctx, "", "x"), ErrEmptyKey)
		assert.ErrorIs(t, log.PopOldest(ctx, ""), ErrEmptyKey)
		assert.ErrorIs(t, log.Clear(ctx, ""), ErrEmptyKey)
	})

	t.Run("Ping", func(t *testing.T) {
		log := newLog(t)
		assert.NoError(t, log.Ping(context.Background()))
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		log := newLog(t)
		ctx := context.Background()
		k := key("concurrent")

		const goroutines = 8
		const perGoroutine = 10

		var wg sync.WaitGroup
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < perGoroutine; i++ {
					assert.NoError(t, log.Append(ctx, k, fmt.Sprintf("%d-%d", g, i)))
				}
			}(g)
		}
		wg.Wait()

		entries, err := log.Read(ctx, k)
		require.NoError(t, err)
		assert.Len(t, entries, goroutines*perGoroutine)
	})
}
