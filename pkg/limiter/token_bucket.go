package limiter

import (
	"context"
	"encoding/json"
	"math"
	"time"
)

// tokenBucketDefaultTTL keeps idle bucket state for five minutes.
const tokenBucketDefaultTTL = 5 * time.Minute

// TokenBucketLimiter admits bursts up to a capacity that refills continuously
// at a fixed rate. A refill rate of zero makes the bucket a one-shot quota.
type TokenBucketLimiter struct {
	policy
	capacity   float64
	refillRate float64
}

// tokenBucketRecord is the persisted form. Tokens is a string-encoded real so
// the full float64 precision survives the round trip regardless of locale.
type tokenBucketRecord struct {
	Tokens     string `json:"tokens"`
	LastRefill string `json:"last_refill"`
}

func encodeTokenBucket(tokens float64, lastRefill time.Time) (string, error) {
	raw, err := json.Marshal(tokenBucketRecord{
		Tokens:     formatReal(tokens),
		LastRefill: formatInstant(lastRefill),
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeTokenBucket(raw string) (tokens float64, lastRefill time.Time, err error) {
	var record tokenBucketRecord
	if err = json.Unmarshal([]byte(raw), &record); err != nil {
		return 0, time.Time{}, err
	}
	if tokens, err = parseReal(record.Tokens); err != nil {
		return 0, time.Time{}, err
	}
	if lastRefill, err = parseInstant(record.LastRefill); err != nil {
		return 0, time.Time{}, err
	}
	return tokens, lastRefill, nil
}

// Allow checks a single request for key.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN refills the bucket for the elapsed time and consumes permits tokens
// when at least that many are present. A bucket holding exactly permits
// tokens admits.
func (l *TokenBucketLimiter) AllowN(ctx context.Context, key string, permits int) (Decision, error) {
	if err := l.checkAllowArgs(key, permits); err != nil {
		return Decision{}, err
	}
	start := time.Now()
	dec, err := l.withSection(ctx, key, func() (Decision, error) {
		return l.allowLocked(ctx, key, permits)
	})
	return l.instrument(start, dec, err)
}

func (l *TokenBucketLimiter) allowLocked(ctx context.Context, key string, permits int) (Decision, error) {
	storageKey := l.stateKey(key)

	raw, found, err := l.store.Get(ctx, storageKey)
	if err != nil {
		return l.storageFailure(err)
	}

	now := l.clock.Now()
	tokens := l.capacity
	if found {
		storedTokens, lastRefill, decodeErr := decodeTokenBucket(raw)
		if decodeErr != nil {
			l.recoverCorrupt(key, decodeErr)
		} else {
			elapsed := now.Sub(lastRefill).Seconds()
			if elapsed < 0 {
				elapsed = 0
			}
			tokens = math.Min(l.capacity, storedTokens+elapsed*l.refillRate)
		}
	}

	allowed := tokens >= float64(permits)
	if allowed {
		tokens -= float64(permits)
	}

	// The section is held but the write has not been issued; cancellation
	// here must leave storage untouched.
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	encoded, err := encodeTokenBucket(tokens, now)
	if err != nil {
		return Decision{}, err
	}
	if err := l.store.Set(ctx, storageKey, encoded, l.ttl(tokenBucketDefaultTTL)); err != nil {
		return l.storageFailure(err)
	}

	dec := Decision{
		Allowed:   allowed,
		Remaining: int64(math.Floor(tokens)),
		ResetAt:   now.Add(l.resetDelay(tokens)),
	}
	if !allowed {
		dec.RetryAfter = l.waitFor(tokens, permits)
	}
	return dec, nil
}

// resetDelay is the time until the bucket is back at capacity.
func (l *TokenBucketLimiter) resetDelay(tokens float64) time.Duration {
	if tokens >= l.capacity {
		return 0
	}
	if l.refillRate <= 0 {
		return maxResetDelay
	}
	return secondsToDuration((l.capacity - tokens) / l.refillRate)
}

// waitFor is the time until permits tokens will be present.
func (l *TokenBucketLimiter) waitFor(tokens float64, permits int) time.Duration {
	if l.refillRate <= 0 {
		return maxResetDelay
	}
	return secondsToDuration((float64(permits) - tokens) / l.refillRate)
}

// State projects the bucket forward to now without persisting. Cold and
// undecodable keys return nil.
func (l *TokenBucketLimiter) State(ctx context.Context, key string) (*State, error) {
	if err := l.checkKey(key); err != nil {
		return nil, err
	}

	raw, found, err := l.store.Get(ctx, l.stateKey(key))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	storedTokens, lastRefill, decodeErr := decodeTokenBucket(raw)
	if decodeErr != nil {
		l.recoverCorrupt(key, decodeErr)
		return nil, nil
	}

	now := l.clock.Now()
	elapsed := now.Sub(lastRefill).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	tokens := math.Min(l.capacity, storedTokens+elapsed*l.refillRate)

	return &State{
		Key:       key,
		Remaining: int64(math.Floor(tokens)),
		ResetAt:   now.Add(l.resetDelay(tokens)),
		Total:     int64(l.capacity),
	}, nil
}

// Reset drops the bucket for key.
func (l *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	if err := l.checkKey(key); err != nil {
		return err
	}
	return l.store.Remove(ctx, l.stateKey(key))
}
