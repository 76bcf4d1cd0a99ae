package limiter

// Metric names emitted by limiters through the MetricsRecorder.
const (
	// MetricDecisions counts admit decisions. Tags: policy, algorithm,
	// outcome ("allowed" or "denied").
	MetricDecisions = "ratelimit_decisions_total"

	// MetricErrors counts operations that failed on storage. Tags: policy,
	// algorithm.
	MetricErrors = "ratelimit_errors_total"

	// MetricDecisionDuration observes the wall time of one admit decision in
	// seconds. Tags: policy, algorithm.
	MetricDecisionDuration = "ratelimit_decision_duration_seconds"
)

// MetricsRecorder receives counters and timings from limiters. Implementations
// must be safe for concurrent use.
type MetricsRecorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}
