// Package limiter provides local and distributed rate limiting with four
// interchangeable algorithms behind one policy interface.
//
// The primary entry point is the factory:
//
//	lim, err := limiter.New(limiter.Config{
//		Name:        "api",
//		Algorithm:   "token_bucket",
//		MaxRequests: 100,
//		Window:      time.Minute,
//	}, store)
//
//	dec, err := lim.Allow(ctx, clientKey)
//
// The returned Decision contains whether the request is allowed, how many
// whole permits remain, and timing hints for callers that want to set
// rate-limit headers (for example, Retry-After).
//
// # Algorithms
//
//   - Token bucket: a bucket per key refills continuously up to a capacity.
//     Supports bursts while enforcing a long-term average rate. A refill rate
//     of zero turns it into a one-shot quota that never replenishes.
//
//   - Leaky bucket: pending work accumulates per admit and drains at a
//     constant rate, smoothing bursts instead of absorbing them.
//
//   - Fixed window: a counter per tumbling window. Cheapest to run and exact
//     across a fleet because it maps to one atomic counter, at the cost of
//     the usual edge (up to 2x the limit observable across a boundary).
//
//   - Sliding window: a rolling record list counting admits in the last
//     window exactly, with no boundary edge.
//
// # Backends
//
// Limiters read and write algorithm state through storage.Store. With
// storage.MemoryStore the policy is per-process; with storage.RedisStore the
// same policy enforces a single global budget across replicas. The persisted
// layouts are stable, so local and remote limiters sharing a Redis instance
// interoperate.
//
// # Concurrency
//
// Every limiter is safe for arbitrary concurrent callers. Operations on the
// same key are serialized through a per-key section, so concurrent admits
// settle to the same counters as some serial order of the same calls. Across
// keys there is no ordering. State never takes the per-key section: it is a
// best-effort snapshot and may trail an in-flight admit.
//
// # Context and Error Policy
//
// Allow, AllowN, State and Reset accept a context.Context, honored while
// waiting for the per-key section and on every storage round-trip. By
// default a storage failure denies the request (fail-closed); WithFailOpen
// flips that for callers that prefer availability. Stored state that no
// longer decodes is treated as absent, logged, and overwritten by the next
// admit, so the system self-heals after format changes or corruption.
//
// # Observability
//
// A zap logger and a MetricsRecorder can be injected with WithLogger and
// WithRecorder; both default to no-ops so hot paths carry no nil checks.
// PrometheusRecorder adapts the recorder interface to a private Prometheus
// registry.
package limiter
