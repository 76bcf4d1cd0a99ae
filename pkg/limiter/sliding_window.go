package limiter

import (
	"context"
	"encoding/json"
	"time"
)

// SlidingWindowLimiter counts admits in the exact rolling window ending now.
// State is an ordered list of (timestamp, count) records; admission sums the
// records inside (now-window, now]. Records are retained for twice the window
// to tolerate clock drift between writers and to serve late State queries;
// the extra history never participates in admission arithmetic.
type SlidingWindowLimiter struct {
	policy
}

type slidingWindowEntry struct {
	Timestamp string `json:"timestamp"`
	Count     int64  `json:"count"`
}

// slidingWindowRecord carries the entry list plus derived fields so other
// readers of the store can inspect a key without replaying the arithmetic.
type slidingWindowRecord struct {
	Entries      []slidingWindowEntry `json:"entries"`
	CurrentCount int64                `json:"current_count"`
	WindowStart  string               `json:"window_start"`
	WindowEnd    string               `json:"window_end"`
}

type windowEntry struct {
	at    time.Time
	count int64
}

func encodeSlidingWindow(entries []windowEntry, current int64, windowStart, windowEnd time.Time) (string, error) {
	record := slidingWindowRecord{
		Entries:      make([]slidingWindowEntry, 0, len(entries)),
		CurrentCount: current,
		WindowStart:  formatInstant(windowStart),
		WindowEnd:    formatInstant(windowEnd),
	}
	for _, entry := range entries {
		record.Entries = append(record.Entries, slidingWindowEntry{
			Timestamp: formatInstant(entry.at),
			Count:     entry.count,
		})
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeSlidingWindow(raw string) ([]windowEntry, error) {
	var record slidingWindowRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	entries := make([]windowEntry, 0, len(record.Entries))
	for _, entry := range record.Entries {
		at, err := parseInstant(entry.Timestamp)
		if err != nil {
			return nil, err
		}
		entries = append(entries, windowEntry{at: at, count: entry.Count})
	}
	return entries, nil
}

// Allow checks a single request for key.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN admits when the permits fit under the limit for the rolling window
// ending now. Denied calls still persist the pruned record list.
func (l *SlidingWindowLimiter) AllowN(ctx context.Context, key string, permits int) (Decision, error) {
	if err := l.checkAllowArgs(key, permits); err != nil {
		return Decision{}, err
	}
	start := time.Now()
	dec, err := l.withSection(ctx, key, func() (Decision, error) {
		return l.allowLocked(ctx, key, permits)
	})
	return l.instrument(start, dec, err)
}

func (l *SlidingWindowLimiter) allowLocked(ctx context.Context, key string, permits int) (Decision, error) {
	storageKey := l.stateKey(key)

	raw, found, err := l.store.Get(ctx, storageKey)
	if err != nil {
		return l.storageFailure(err)
	}

	var entries []windowEntry
	if found {
		decoded, decodeErr := decodeSlidingWindow(raw)
		if decodeErr != nil {
			l.recoverCorrupt(key, decodeErr)
		} else {
			entries = decoded
		}
	}

	now := l.clock.Now()
	cutoff := now.Add(-l.window)
	retainAfter := now.Add(-2 * l.window)

	var current int64
	oldest := time.Time{}
	retained := entries[:0]
	for _, entry := range entries {
		if !entry.at.After(retainAfter) {
			continue
		}
		retained = append(retained, entry)
		if entry.at.After(cutoff) {
			current += entry.count
			if oldest.IsZero() || entry.at.Before(oldest) {
				oldest = entry.at
			}
		}
	}

	limit := int64(l.maxRequests)
	allowed := current+int64(permits) <= limit
	if allowed {
		retained = append(retained, windowEntry{at: now, count: int64(permits)})
		current += int64(permits)
		if oldest.IsZero() {
			oldest = now
		}
	}

	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	encoded, err := encodeSlidingWindow(retained, current, cutoff, now)
	if err != nil {
		return Decision{}, err
	}
	if err := l.store.Set(ctx, storageKey, encoded, l.ttl(2*l.window)); err != nil {
		return l.storageFailure(err)
	}

	dec := Decision{
		Allowed:   allowed,
		Remaining: maxInt64(limit-current, 0),
		ResetAt:   l.resetAt(oldest, now),
	}
	if !allowed {
		dec.RetryAfter = l.retryAfter(oldest, now)
	}
	return dec, nil
}

// resetAt is when the oldest in-window entry falls out; an empty window is
// already reset.
func (l *SlidingWindowLimiter) resetAt(oldest, now time.Time) time.Time {
	if oldest.IsZero() {
		return now
	}
	return oldest.Add(l.window)
}

func (l *SlidingWindowLimiter) retryAfter(oldest, now time.Time) time.Duration {
	if oldest.IsZero() {
		// Nothing can fall out; the request is larger than the limit.
		return l.window
	}
	wait := oldest.Add(l.window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait
}

// State sums the in-window records without pruning or persisting.
func (l *SlidingWindowLimiter) State(ctx context.Context, key string) (*State, error) {
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

	entries, decodeErr := decodeSlidingWindow(raw)
	if decodeErr != nil {
		l.recoverCorrupt(key, decodeErr)
		return nil, nil
	}

	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	var current int64
	oldest := time.Time{}
	for _, entry := range entries {
		if !entry.at.After(cutoff) {
			continue
		}
		current += entry.count
		if oldest.IsZero() || entry.at.Before(oldest) {
			oldest = entry.at
		}
	}

	return &State{
		Key:       key,
		Remaining: maxInt64(int64(l.maxRequests)-current, 0),
		ResetAt:   l.resetAt(oldest, now),
		Total:     int64(l.maxRequests),
	}, nil
}

// Reset drops the record list for key.
func (l *SlidingWindowLimiter) Reset(ctx context.Context, key string) error {
	if err := l.checkKey(key); err != nil {
		return err
	}
	return l.store.Remove(ctx, l.stateKey(key))
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
