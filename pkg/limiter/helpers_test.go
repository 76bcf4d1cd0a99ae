package limiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/manenim/ratelimit/pkg/storage"
)

// fakeClock drives algorithm arithmetic deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore simulates an unavailable backend.
type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, storage.ErrUnavailable
}

func (failingStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return storage.ErrUnavailable
}

func (failingStore) Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	return 0, storage.ErrUnavailable
}

func (failingStore) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	return 0, storage.ErrUnavailable
}

func (failingStore) Remove(ctx context.Context, key string) error  { return storage.ErrUnavailable }
func (failingStore) Exists(ctx context.Context, key string) (bool, error) {
	return false, storage.ErrUnavailable
}
func (failingStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return storage.ErrUnavailable
}
func (failingStore) Close() error { return nil }

func newTestStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	return store
}

// newTestLimiter builds a limiter over a fresh memory store with a fake
// clock and returns both.
func newTestLimiter(t *testing.T, cfg Config, opts ...Option) (RateLimiter, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := newTestStore(t)

	lim, err := New(cfg, store, append([]Option{WithClock(clock)}, opts...)...)
	if err != nil {
		t.Fatalf("building limiter: %v", err)
	}
	t.Cleanup(func() { lim.Close() })
	return lim, clock
}
