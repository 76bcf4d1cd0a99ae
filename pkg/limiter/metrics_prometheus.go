package limiter

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder adapts the MetricsRecorder interface to Prometheus.
//
// It registers its collectors on a private registry rather than the global
// one, so tests stay isolated and multiple limiters can run side by side.
// Expose the registry with promhttp.HandlerFor(recorder.Registry(), ...).
type PrometheusRecorder struct {
	registry *prometheus.Registry

	decisions *prometheus.CounterVec
	errors    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewPrometheusRecorder constructs a recorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricDecisions,
			Help: "Rate limit decisions by policy, algorithm and outcome",
		},
		[]string{"policy", "algorithm", "outcome"},
	)
	errors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricErrors,
			Help: "Rate limit operations that failed on storage",
		},
		[]string{"policy", "algorithm"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: MetricDecisionDuration,
			Help: "Wall time of one admit decision",
			// Decisions are sub-millisecond in memory and a few milliseconds
			// over Redis; anything past 100ms points at a struggling store.
			Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
		[]string{"policy", "algorithm"},
	)

	registry.MustRegister(decisions, errors, duration)
	return &PrometheusRecorder{
		registry:  registry,
		decisions: decisions,
		errors:    errors,
		duration:  duration,
	}
}

// Registry returns the private registry for scrape handlers.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Add routes counter metrics by name; unknown names are dropped.
func (r *PrometheusRecorder) Add(name string, value float64, tags map[string]string) {
	switch name {
	case MetricDecisions:
		r.decisions.With(prometheus.Labels{
			"policy":    tags["policy"],
			"algorithm": tags["algorithm"],
			"outcome":   tags["outcome"],
		}).Add(value)
	case MetricErrors:
		r.errors.With(prometheus.Labels{
			"policy":    tags["policy"],
			"algorithm": tags["algorithm"],
		}).Add(value)
	}
}

// Observe routes timing metrics by name; unknown names are dropped.
func (r *PrometheusRecorder) Observe(name string, value float64, tags map[string]string) {
	if name != MetricDecisionDuration {
		return
	}
	r.duration.With(prometheus.Labels{
		"policy":    tags["policy"],
		"algorithm": tags["algorithm"],
	}).Observe(value)
}
