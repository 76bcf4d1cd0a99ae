package storage

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store backed by a map.
//
// It is safe for concurrent use. Expired entries are dropped lazily on access
// and swept by a background janitor so idle keys do not accumulate.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry

	defaultTTL time.Duration
	janitor    *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	defaultTTL      time.Duration
	janitorInterval time.Duration
}

// WithDefaultTTL sets the TTL applied when Set is called without one.
func WithDefaultTTL(ttl time.Duration) MemoryOption {
	return func(c *memoryConfig) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithJanitorInterval sets how often the background sweep runs.
func WithJanitorInterval(interval time.Duration) MemoryOption {
	return func(c *memoryConfig) {
		if interval > 0 {
			c.janitorInterval = interval
		}
	}
}

// NewMemoryStore constructs a MemoryStore and starts its janitor.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	cfg := memoryConfig{
		defaultTTL:      DefaultTTL,
		janitorInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &MemoryStore{
		entries:    make(map[string]*memoryEntry),
		defaultTTL: cfg.defaultTTL,
		janitor:    time.NewTicker(cfg.janitorInterval),
		done:       make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *MemoryStore) sweep() {
	for {
		select {
		case <-s.done:
			return
		case <-s.janitor.C:
			now := time.Now()
			s.mu.Lock()
			for key, entry := range s.entries {
				if entry.expired(now) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Get returns the live value for key, dropping it if expired.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if entry.expired(time.Now()) {
		delete(s.entries, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set writes value with the given TTL, or the store default when ttl <= 0.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Incr atomically adds delta to the integer value at key. An absent or
// expired key starts from 0. A positive ttl refreshes the deadline.
func (s *MemoryStore) Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var current int64
	entry, ok := s.entries[key]
	if ok && !entry.expired(now) {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, ErrNotAnInteger
		}
		current = parsed
	} else {
		entry = nil
	}

	next := current + delta
	expiresAt := now.Add(s.defaultTTL)
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	} else if entry != nil {
		expiresAt = entry.expiresAt
	}

	s.entries[key] = &memoryEntry{
		value:     strconv.FormatInt(next, 10),
		expiresAt: expiresAt,
	}
	return next, nil
}

// Decr atomically subtracts delta with a floor of 0. An absent key returns 0
// and is not created.
func (s *MemoryStore) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.entries[key]
	if !ok || entry.expired(now) {
		if ok {
			delete(s.entries, key)
		}
		return 0, nil
	}

	current, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, ErrNotAnInteger
	}
	next := current - delta
	if next < 0 {
		next = 0
	}
	entry.value = strconv.FormatInt(next, 10)
	return next, nil
}

// Remove deletes the key.
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Exists reports whether key holds a live value.
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Expire resets the TTL on an existing key; a no-op when absent.
func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.expired(time.Now()) {
		return nil
	}
	entry.expiresAt = time.Now().Add(ttl)
	return nil
}

// Close stops the janitor. The map itself is released with the store.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.janitor.Stop()
		close(s.done)
	})
	return nil
}

// Len reports the number of entries currently held, including entries that
// have expired but not yet been swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
