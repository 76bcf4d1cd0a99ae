package limiter

import (
	"context"
	"encoding/json"
	"math"
	"time"
)

// leakyBucketDefaultTTL covers long drain tails: a full bucket with a slow
// leak can take most of an hour to empty.
const leakyBucketDefaultTTL = time.Hour

// LeakyBucketLimiter smooths traffic: admits add pending work to the bucket,
// which drains at a constant rate. A request is admitted only if its permits
// fit in the remaining capacity after draining. There is no background
// ticker; the drain is computed lazily on each call.
type LeakyBucketLimiter struct {
	policy
	capacity int
	leakRate float64
}

type leakyBucketRecord struct {
	CurrentLevel    string `json:"current_level"`
	LastLeakTime    string `json:"last_leak_time"`
	LastRequestTime string `json:"last_request_time"`
}

func encodeLeakyBucket(level float64, lastLeak, lastRequest time.Time) (string, error) {
	raw, err := json.Marshal(leakyBucketRecord{
		CurrentLevel:    formatReal(level),
		LastLeakTime:    formatInstant(lastLeak),
		LastRequestTime: formatInstant(lastRequest),
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeLeakyBucket(raw string) (level float64, lastLeak time.Time, err error) {
	var record leakyBucketRecord
	if err = json.Unmarshal([]byte(raw), &record); err != nil {
		return 0, time.Time{}, err
	}
	if level, err = parseReal(record.CurrentLevel); err != nil {
		return 0, time.Time{}, err
	}
	if lastLeak, err = parseInstant(record.LastLeakTime); err != nil {
		return 0, time.Time{}, err
	}
	return level, lastLeak, nil
}

// Allow checks a single request for key.
func (l *LeakyBucketLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN drains the bucket for the elapsed time and admits when the permits
// fit under the capacity.
func (l *LeakyBucketLimiter) AllowN(ctx context.Context, key string, permits int) (Decision, error) {
	if err := l.checkAllowArgs(key, permits); err != nil {
		return Decision{}, err
	}
	start := time.Now()
	dec, err := l.withSection(ctx, key, func() (Decision, error) {
		return l.allowLocked(ctx, key, permits)
	})
	return l.instrument(start, dec, err)
}

func (l *LeakyBucketLimiter) allowLocked(ctx context.Context, key string, permits int) (Decision, error) {
	storageKey := l.stateKey(key)

	raw, found, err := l.store.Get(ctx, storageKey)
	if err != nil {
		return l.storageFailure(err)
	}

	now := l.clock.Now()
	level := 0.0
	if found {
		storedLevel, lastLeak, decodeErr := decodeLeakyBucket(raw)
		if decodeErr != nil {
			l.recoverCorrupt(key, decodeErr)
		} else {
			elapsed := now.Sub(lastLeak).Seconds()
			if elapsed < 0 {
				elapsed = 0
			}
			level = math.Max(0, storedLevel-elapsed*l.leakRate)
		}
	}

	allowed := level+float64(permits) <= float64(l.capacity)
	if allowed {
		level += float64(permits)
	}

	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	encoded, err := encodeLeakyBucket(level, now, now)
	if err != nil {
		return Decision{}, err
	}
	if err := l.store.Set(ctx, storageKey, encoded, l.ttl(leakyBucketDefaultTTL)); err != nil {
		return l.storageFailure(err)
	}

	dec := Decision{
		Allowed:   allowed,
		Remaining: remainingCapacity(l.capacity, level),
		ResetAt:   now.Add(secondsToDuration(level / l.leakRate)),
	}
	if !allowed {
		dec.RetryAfter = secondsToDuration((level + float64(permits) - float64(l.capacity)) / l.leakRate)
	}
	return dec, nil
}

// State projects the drain forward to now without persisting.
func (l *LeakyBucketLimiter) State(ctx context.Context, key string) (*State, error) {
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

	storedLevel, lastLeak, decodeErr := decodeLeakyBucket(raw)
	if decodeErr != nil {
		l.recoverCorrupt(key, decodeErr)
		return nil, nil
	}

	now := l.clock.Now()
	elapsed := now.Sub(lastLeak).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	level := math.Max(0, storedLevel-elapsed*l.leakRate)

	return &State{
		Key:       key,
		Remaining: remainingCapacity(l.capacity, level),
		ResetAt:   now.Add(secondsToDuration(level / l.leakRate)),
		Total:     int64(l.capacity),
	}, nil
}

// Reset drops the bucket for key.
func (l *LeakyBucketLimiter) Reset(ctx context.Context, key string) error {
	if err := l.checkKey(key); err != nil {
		return err
	}
	return l.store.Remove(ctx, l.stateKey(key))
}

// remainingCapacity is the number of whole permits that still fit.
func remainingCapacity(capacity int, level float64) int64 {
	remaining := math.Floor(float64(capacity) - level)
	if remaining < 0 {
		return 0
	}
	return int64(remaining)
}
