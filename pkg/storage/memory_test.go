package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore(WithJanitorInterval(10 * time.Millisecond))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t)

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))

	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", value)

	_, ok, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t)

	require.NoError(t, store.Set(ctx, "k", "v", 30*time.Millisecond))

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired value must not be returned")

	exists, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStore_Incr(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t)

	t.Run("absent key starts from zero", func(t *testing.T) {
		value, err := store.Incr(ctx, "counter", 3, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(3), value)
	})

	t.Run("accumulates", func(t *testing.T) {
		value, err := store.Incr(ctx, "counter", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(5), value)
	})

	t.Run("non-integer value errors", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "text", "not a number", time.Minute))
		_, err := store.Incr(ctx, "text", 1, time.Minute)
		assert.ErrorIs(t, err, ErrNotAnInteger)
	})
}

func TestMemoryStore_IncrConcurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t)

	var g errgroup.Group
	for i := 0; i < 100; i++ {
		g.Go(func() error {
			_, err := store.Incr(ctx, "counter", 1, time.Minute)
			return err
		})
	}
	require.NoError(t, g.Wait())

	value, ok, err := store.Get(ctx, "counter")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "100", value)
}

func TestMemoryStore_Decr(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t)

	t.Run("absent key returns zero and is not created", func(t *testing.T) {
		value, err := store.Decr(ctx, "ghost", 5)
		require.NoError(t, err)
		assert.Equal(t, int64(0), value)

		exists, err := store.Exists(ctx, "ghost")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("floors at zero", func(t *testing.T) {
		_, err := store.Incr(ctx, "counter", 3, time.Minute)
		require.NoError(t, err)

		value, err := store.Decr(ctx, "counter", 10)
		require.NoError(t, err)
		assert.Equal(t, int64(0), value)

		stored, ok, err := store.Get(ctx, "counter")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "0", stored, "stored value must never go negative")
	})

	t.Run("plain subtraction", func(t *testing.T) {
		_, err := store.Incr(ctx, "counter2", 10, time.Minute)
		require.NoError(t, err)

		value, err := store.Decr(ctx, "counter2", 4)
		require.NoError(t, err)
		assert.Equal(t, int64(6), value)
	})
}

func TestMemoryStore_RemoveAndExpire(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t)

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, store.Remove(ctx, "k"))

	exists, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	// Removing again is idempotent.
	require.NoError(t, store.Remove(ctx, "k"))

	// Expire on an absent key is a no-op.
	require.NoError(t, store.Expire(ctx, "k", time.Minute))

	require.NoError(t, store.Set(ctx, "k", "v", time.Hour))
	require.NoError(t, store.Expire(ctx, "k", 30*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	exists, err = store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStore_JanitorSweepsExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, store.Set(ctx, fmt.Sprintf("k%d", i), "v", 20*time.Millisecond))
	}
	require.Equal(t, 10, store.Len())

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, store.Len(), "janitor should reclaim expired entries")
}

func TestMemoryStore_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t)

	for _, key := range []string{"", "   ", "\t"} {
		_, _, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey)

		assert.ErrorIs(t, store.Set(ctx, key, "v", time.Minute), ErrInvalidKey)

		_, err = store.Incr(ctx, key, 1, time.Minute)
		assert.ErrorIs(t, err, ErrInvalidKey)

		_, err = store.Decr(ctx, key, 1)
		assert.ErrorIs(t, err, ErrInvalidKey)

		assert.ErrorIs(t, store.Remove(ctx, key), ErrInvalidKey)
		assert.ErrorIs(t, store.Expire(ctx, key, time.Minute), ErrInvalidKey)
	}
}

func TestMemoryStore_ContextCancelled(t *testing.T) {
	store := newTestMemoryStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)

	err = store.Set(ctx, "k", "v", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
