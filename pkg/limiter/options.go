package limiter

import (
	"time"

	"go.uber.org/zap"
)

// Option customizes a limiter built by the factory.
type Option func(*policy)

// WithLogger injects a zap logger. The default is zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(p *policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRecorder injects a metrics backend. The default is a no-op.
func WithRecorder(recorder MetricsRecorder) Option {
	return func(p *policy) {
		if recorder != nil {
			p.recorder = recorder
		}
	}
}

// WithClock injects the time source used by algorithm arithmetic.
func WithClock(clock Clock) Option {
	return func(p *policy) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithStateTTL overrides the per-algorithm default TTL on persisted state.
// Values below one window are raised to one window so live state cannot
// expire out from under the algorithm.
func WithStateTTL(ttl time.Duration) Option {
	return func(p *policy) {
		if ttl > 0 {
			p.stateTTL = ttl
		}
	}
}

// WithFailOpen admits requests when storage fails instead of surfacing the
// error. The default is fail-closed.
func WithFailOpen(failOpen bool) Option {
	return func(p *policy) {
		p.failOpen = failOpen
	}
}
