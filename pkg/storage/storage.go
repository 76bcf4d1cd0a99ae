// Package storage provides the key/value state backends used by the rate
// limiters.
//
// A Store is a flat string-keyed map of string values with per-key TTL and
// atomic integer arithmetic. Two implementations are provided:
//
//   - MemoryStore: an in-process map. State is local to the process, so a
//     limiter backed by it enforces a per-instance budget only.
//
//   - RedisStore: state shared through Redis, so the same policy enforces a
//     single global budget across many application instances.
//
// All implementations must guarantee that Incr and Decr are atomic with
// respect to each other on the same key, that an expired value is never
// returned by Get or Exists, and that Decr never returns or stores a
// negative value.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultTTL is applied by Set when the caller passes a non-positive TTL.
var DefaultTTL = 5 * time.Minute

// ErrInvalidKey is returned when a key is empty or whitespace-only.
var ErrInvalidKey = errors.New("storage: invalid key")

// ErrUnavailable wraps backend failures (connection loss, remote errors).
var ErrUnavailable = errors.New("storage: unavailable")

// ErrNotAnInteger is returned by Incr and Decr when the stored value does not
// decode as an integer.
var ErrNotAnInteger = errors.New("storage: value is not an integer")

// Store is the contract every state backend satisfies.
//
// TTL semantics: a non-positive ttl on Set means "use the store default",
// never "no expiry". Expiry is eventual; a deleted or expired value must not
// resurrect, but removal from memory may lag the deadline.
type Store interface {
	// Get returns the current value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set unconditionally writes value, (re)setting the TTL. A non-positive
	// ttl applies the store default.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically adds delta to the integer decoding of key, treating an
	// absent key as 0, and returns the new value. A positive ttl refreshes
	// the key's TTL as part of the operation.
	Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Decr atomically subtracts delta with a floor of 0 and returns the new
	// value. An absent key is left absent and 0 is returned.
	Decr(ctx context.Context, key string, delta int64) (int64, error)

	// Remove deletes the key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Exists reports whether the key holds a live value.
	Exists(ctx context.Context, key string) (bool, error)

	// Expire sets the TTL on an existing key; absent keys are a no-op.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Close releases resources owned by the store.
	Close() error
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
