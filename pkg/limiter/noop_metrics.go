package limiter

// NoOpMetricsRecorder is the default recorder. It does nothing, which keeps
// the hot path free of 'if recorder != nil' checks.
type NoOpMetricsRecorder struct{}

func (NoOpMetricsRecorder) Add(name string, value float64, tags map[string]string)     {}
func (NoOpMetricsRecorder) Observe(name string, value float64, tags map[string]string) {}
