package limiter

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/manenim/ratelimit/pkg/storage"
)

// RateLimiter is the policy interface shared by all four algorithms.
type RateLimiter interface {
	// Allow checks a single request (permits = 1) for key.
	Allow(ctx context.Context, key string) (Decision, error)

	// AllowN checks a request consuming permits units for key. When the
	// decision is allowed the permits are accounted and not refunded.
	AllowN(ctx context.Context, key string, permits int) (Decision, error)

	// State returns a best-effort snapshot of key's standing, or nil when the
	// key has no stored state. It never mutates storage and never waits on
	// the per-key section, so it may trail an in-flight admit.
	State(ctx context.Context, key string) (*State, error)

	// Reset drops the stored state for key.
	Reset(ctx context.Context, key string) error

	Name() string
	Algorithm() Algorithm
	MaxRequests() int
	Window() time.Duration

	// Close releases the per-key serializer table. The limiter must not be
	// used after Close.
	Close() error
}

// policy carries the configuration and collaborators shared by every
// algorithm implementation.
type policy struct {
	name        string
	algorithm   Algorithm
	maxRequests int
	window      time.Duration

	store    storage.Store
	keys     *keyMutex
	clock    Clock
	logger   *zap.Logger
	recorder MetricsRecorder
	stateTTL time.Duration
	failOpen bool
}

func (p *policy) Name() string          { return p.name }
func (p *policy) Algorithm() Algorithm  { return p.algorithm }
func (p *policy) MaxRequests() int      { return p.maxRequests }
func (p *policy) Window() time.Duration { return p.window }

func (p *policy) Close() error {
	p.keys.close()
	return nil
}

// stateKey builds "<algorithm>:<policy>:<caller-key>"; the fixed-window
// limiter appends the window id on top of this.
func (p *policy) stateKey(key string) string {
	return strings.ReplaceAll(string(p.algorithm), "_", "") + ":" + p.name + ":" + key
}

func (p *policy) checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidArgument
	}
	return nil
}

func (p *policy) checkAllowArgs(key string, permits int) error {
	if err := p.checkKey(key); err != nil {
		return err
	}
	if permits < 1 {
		return ErrInvalidArgument
	}
	return nil
}

// withSection runs fn while holding the per-key section for key.
func (p *policy) withSection(ctx context.Context, key string, fn func() (Decision, error)) (Decision, error) {
	if err := p.keys.acquire(ctx, key); err != nil {
		return Decision{}, err
	}
	defer p.keys.release(key)
	return fn()
}

// storageFailure applies the configured failure policy to a storage error.
// Cancellation and validation errors always surface.
func (p *policy) storageFailure(err error) (Decision, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, storage.ErrInvalidKey) {
		return Decision{}, err
	}
	p.recorder.Add(MetricErrors, 1, p.tags())
	if p.failOpen {
		p.logger.Warn("admitting on storage failure",
			zap.String("policy", p.name),
			zap.Error(err))
		return Decision{
			Allowed:   true,
			Remaining: int64(p.maxRequests),
			ResetAt:   p.clock.Now(),
		}, nil
	}
	return Decision{}, err
}

// recoverCorrupt logs an undecodable stored value. The caller proceeds as if
// the key were cold; the next persisted state overwrites the bad entry.
func (p *policy) recoverCorrupt(key string, err error) {
	p.logger.Warn("discarding corrupt limiter state",
		zap.String("policy", p.name),
		zap.String("key", key),
		zap.Error(err))
}

// instrument records the decision counter and duration for one admit call.
func (p *policy) instrument(start time.Time, dec Decision, err error) (Decision, error) {
	p.recorder.Observe(MetricDecisionDuration, time.Since(start).Seconds(), p.tags())
	if err == nil {
		outcome := "denied"
		if dec.Allowed {
			outcome = "allowed"
		}
		p.recorder.Add(MetricDecisions, 1, map[string]string{
			"policy":    p.name,
			"algorithm": string(p.algorithm),
			"outcome":   outcome,
		})
	}
	return dec, err
}

func (p *policy) tags() map[string]string {
	return map[string]string{
		"policy":    p.name,
		"algorithm": string(p.algorithm),
	}
}

// ttl returns the state TTL to persist with, defaulting per algorithm.
func (p *policy) ttl(fallback time.Duration) time.Duration {
	if p.stateTTL > 0 {
		return p.stateTTL
	}
	return fallback
}
