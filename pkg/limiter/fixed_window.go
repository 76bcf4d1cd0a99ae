package limiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/manenim/ratelimit/pkg/storage"
)

// FixedWindowLimiter counts admits per tumbling window. The window id is part
// of the storage key, so a new window starts cold and the old counter expires
// by TTL. Because the whole decision maps onto one atomic counter, the limit
// is exact across a fleet sharing a remote store. The canonical fixed-window
// edge (up to 2x the limit observable across a boundary) applies.
type FixedWindowLimiter struct {
	policy
}

// Allow checks a single request for key.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN increments the current window's counter by permits and admits when
// the result stays within the limit; a result over the limit is refunded and
// denied.
func (l *FixedWindowLimiter) AllowN(ctx context.Context, key string, permits int) (Decision, error) {
	if err := l.checkAllowArgs(key, permits); err != nil {
		return Decision{}, err
	}
	start := time.Now()
	dec, err := l.withSection(ctx, key, func() (Decision, error) {
		return l.allowLocked(ctx, key, permits)
	})
	return l.instrument(start, dec, err)
}

func (l *FixedWindowLimiter) allowLocked(ctx context.Context, key string, permits int) (Decision, error) {
	now := l.clock.Now()
	windowID := l.windowID(now)
	storageKey := l.windowKey(key, windowID)
	windowEnd := l.windowEnd(windowID)

	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	count, err := l.store.Incr(ctx, storageKey, int64(permits), l.ttl(l.window))
	if errors.Is(err, storage.ErrNotAnInteger) {
		// Corrupt counter: start the window cold and retry once.
		l.recoverCorrupt(key, err)
		if removeErr := l.store.Remove(ctx, storageKey); removeErr != nil {
			return l.storageFailure(removeErr)
		}
		count, err = l.store.Incr(ctx, storageKey, int64(permits), l.ttl(l.window))
	}
	if err != nil {
		return l.storageFailure(err)
	}

	limit := int64(l.maxRequests)
	if count > limit {
		// Over the limit: refund the increment so the counter reflects only
		// admitted permits.
		if _, refundErr := l.store.Decr(ctx, storageKey, int64(permits)); refundErr != nil {
			l.logger.Warn("failed to refund denied increment",
				zap.String("policy", l.name),
				zap.Error(refundErr))
		}
		remaining := limit - (count - int64(permits))
		if remaining < 0 {
			remaining = 0
		}
		return Decision{
			Allowed:    false,
			Remaining:  remaining,
			RetryAfter: windowEnd.Sub(now),
			ResetAt:    windowEnd,
		}, nil
	}

	return Decision{
		Allowed:   true,
		Remaining: limit - count,
		ResetAt:   windowEnd,
	}, nil
}

// State reads the current window's counter without incrementing.
func (l *FixedWindowLimiter) State(ctx context.Context, key string) (*State, error) {
	if err := l.checkKey(key); err != nil {
		return nil, err
	}

	now := l.clock.Now()
	windowID := l.windowID(now)

	raw, found, err := l.store.Get(ctx, l.windowKey(key, windowID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	count, parseErr := strconv.ParseInt(raw, 10, 64)
	if parseErr != nil {
		l.recoverCorrupt(key, parseErr)
		return nil, nil
	}

	remaining := int64(l.maxRequests) - count
	if remaining < 0 {
		remaining = 0
	}
	return &State{
		Key:       key,
		Remaining: remaining,
		ResetAt:   l.windowEnd(windowID),
		Total:     int64(l.maxRequests),
	}, nil
}

// Reset drops the current window's counter for key.
func (l *FixedWindowLimiter) Reset(ctx context.Context, key string) error {
	if err := l.checkKey(key); err != nil {
		return err
	}
	return l.store.Remove(ctx, l.windowKey(key, l.windowID(l.clock.Now())))
}

func (l *FixedWindowLimiter) windowID(now time.Time) int64 {
	return now.UnixNano() / l.window.Nanoseconds()
}

func (l *FixedWindowLimiter) windowKey(key string, windowID int64) string {
	return fmt.Sprintf("%s:%d", l.stateKey(key), windowID)
}

func (l *FixedWindowLimiter) windowEnd(windowID int64) time.Time {
	return time.Unix(0, (windowID+1)*l.window.Nanoseconds())
}
