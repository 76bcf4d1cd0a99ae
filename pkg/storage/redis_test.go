package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisStore connects to a local Redis or skips, so the suite runs
// without infrastructure and still exercises the real backend in CI.
func newTestRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *redis.Client) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	store, err := NewRedisStore(client, opts...)
	if err != nil {
		client.Close()
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}
	t.Cleanup(func() { client.Close() })
	return store, client
}

func testKey(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestRedisStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	key := testKey("setget")
	require.NoError(t, store.Set(ctx, key, "v", time.Minute))

	value, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", value)

	_, ok, err = store.Get(ctx, testKey("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_IncrAndDecrFloor(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	key := testKey("counter")

	value, err := store.Incr(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), value)

	value, err = store.Decr(ctx, key, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), value, "decr must floor at zero")

	stored, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0", stored)

	// Absent key: returns 0, stays absent.
	ghost := testKey("ghost")
	value, err = store.Decr(ctx, ghost, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), value)

	exists, err := store.Exists(ctx, ghost)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisStore_Prefix(t *testing.T) {
	ctx := context.Background()
	store, client := newTestRedisStore(t, WithPrefix("custom_app:"))

	key := testKey("prefixed")
	require.NoError(t, store.Set(ctx, key, "v", time.Minute))

	n, err := client.Exists(ctx, "custom_app:"+key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "key must live under the configured prefix")
}

func TestRedisStore_RemoveExpireExists(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	key := testKey("lifecycle")
	require.NoError(t, store.Set(ctx, key, "v", time.Minute))

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, store.Expire(ctx, key, 50*time.Millisecond))
	time.Sleep(100 * time.Millisecond)

	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Remove(ctx, key)) // idempotent on absent keys
}

func TestRedisStore_ContextCancellation(t *testing.T) {
	store, _ := newTestRedisStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.Get(ctx, "any")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisStore_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	_, _, err := store.Get(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = store.Incr(ctx, "", 1, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
