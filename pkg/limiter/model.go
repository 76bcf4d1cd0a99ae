package limiter

import (
	"fmt"
	"strings"
	"time"
)

// Algorithm identifies a rate-limiting algorithm.
type Algorithm string

const (
	TokenBucket   Algorithm = "token_bucket"
	LeakyBucket   Algorithm = "leaky_bucket"
	FixedWindow   Algorithm = "fixed_window"
	SlidingWindow Algorithm = "sliding_window"
)

// ParseAlgorithm resolves a case-insensitive algorithm name. Separators may
// be underscores, dashes, or absent ("TokenBucket", "token-bucket" and
// "token_bucket" are the same kind).
func ParseAlgorithm(name string) (Algorithm, error) {
	normalized := strings.ToLower(name)
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")

	switch normalized {
	case "tokenbucket":
		return TokenBucket, nil
	case "leakybucket":
		return LeakyBucket, nil
	case "fixedwindow":
		return FixedWindow, nil
	case "slidingwindow":
		return SlidingWindow, nil
	default:
		return "", fmt.Errorf("%w: unknown algorithm %q", ErrInvalidArgument, name)
	}
}

// Config declares a policy for the factory.
type Config struct {
	// Name uniquely identifies the policy; it becomes part of every storage
	// key, so two limiters with the same name and store share state.
	Name string

	// Algorithm is one of the four kinds, case-insensitive.
	Algorithm string

	// MaxRequests is the admit budget per Window.
	MaxRequests int

	// Window is the policy's time window.
	Window time.Duration

	// Parameters optionally overrides algorithm-specific values:
	// "capacity", "refill_rate" (token bucket), "leak_rate" (leaky bucket).
	// Window algorithms ignore it. Omitted values are derived from
	// MaxRequests and Window.
	Parameters map[string]any
}

// Decision is the outcome of one Allow call.
type Decision struct {
	// Allowed reports whether the permits were accounted against the policy.
	Allowed bool

	// Remaining is the number of whole permits left after this decision.
	Remaining int64

	// RetryAfter is 0 when allowed; when denied it is the approximate wait
	// until the same request could succeed.
	RetryAfter time.Duration

	// ResetAt approximates when the limiter is back at full capacity.
	ResetAt time.Time
}

// State is a read-only snapshot of one key's standing, as returned by
// RateLimiter.State. It may trail concurrent admits.
type State struct {
	Key       string
	Remaining int64
	ResetAt   time.Time
	Total     int64
}
