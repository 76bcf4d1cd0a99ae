package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// decrFloorScript subtracts with a floor of 0. An absent key stays absent so
// a refund on a key that already expired does not resurrect it.
var decrFloorScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
end
local v = redis.call('DECRBY', KEYS[1], ARGV[1])
if v < 0 then
    redis.call('SET', KEYS[1], '0', 'KEEPTTL')
    v = 0
end
return v
`)

// RedisStore is a Store backed by Redis, suitable for enforcing one global
// budget across many application instances.
//
// Incr maps to the native INCRBY so cross-process counters stay exact; the
// floor-at-zero Decr runs as a Lua script for the same reason. All keys are
// namespaced under a configurable prefix so tenants can share a backing
// instance.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	timeout    time.Duration
	defaultTTL time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key namespace (default "ratelimit:").
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTimeout caps each Redis round-trip. The caller's context still applies;
// whichever deadline is sooner wins.
func WithTimeout(timeout time.Duration) RedisOption {
	return func(s *RedisStore) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithRedisDefaultTTL sets the TTL applied when Set is called without one.
func WithRedisDefaultTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// NewRedisStore verifies connectivity and returns a RedisStore. The client is
// owned by the caller and is not closed by Close.
func NewRedisStore(client *redis.Client, opts ...RedisOption) (*RedisStore, error) {
	s := &RedisStore{
		client:     client,
		prefix:     "ratelimit:",
		timeout:    5 * time.Second,
		defaultTTL: DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, wrapRedisErr(err)
	}
	return s, nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// wrapRedisErr maps backend failures onto ErrUnavailable while letting
// cancellation pass through untouched.
func wrapRedisErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Get returns the value at key, or ok=false when absent.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	value, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapRedisErr(err)
	}
	return value, true, nil
}

// Set writes value with the given TTL, or the store default when ttl <= 0.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// Incr adds delta through the native INCRBY. A positive ttl is refreshed in
// the same pipeline so the two land together from the caller's perspective.
func (s *RedisStore) Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	name := s.key(key)
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, name, delta)
		if ttl > 0 {
			pipe.Expire(ctx, name, ttl)
		}
		return nil
	})
	if err != nil {
		if isRedisIntegerErr(err) {
			return 0, ErrNotAnInteger
		}
		return 0, wrapRedisErr(err)
	}
	return incr.Val(), nil
}

// Decr subtracts delta with a floor of 0 via a server-side script, keeping
// the clamp atomic with the decrement.
func (s *RedisStore) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	value, err := decrFloorScript.Run(ctx, s.client, []string{s.key(key)}, delta).Int64()
	if err != nil {
		if isRedisIntegerErr(err) {
			return 0, ErrNotAnInteger
		}
		return 0, wrapRedisErr(err)
	}
	return value, nil
}

// Remove deletes the key.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// Exists reports whether key holds a value.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, wrapRedisErr(err)
	}
	return n > 0, nil
}

// Expire resets the TTL on an existing key; absent keys are a no-op.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.client.Expire(ctx, s.key(key), ttl).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// Close is a no-op; the redis.Client belongs to the caller.
func (s *RedisStore) Close() error {
	return nil
}

func isRedisIntegerErr(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "ERR value is not an integer")
}
