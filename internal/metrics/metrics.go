// Package metrics provides Prometheus collectors for tracker operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess = "success"
)

// OperationMetrics records counts and latency of tracker operations.
type OperationMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewOperationMetrics registers the operation metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewOperationMetrics(reg prometheus.Registerer) *OperationMetrics {
	if reg == nil {
		return &OperationMetrics{}
	}
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_operations_total",
		Help: "Tracker operations by outcome.",
	}, []string{"operation", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracker_operation_duration_seconds",
		Help:    "Duration of tracker operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(total, duration)
	return &OperationMetrics{
		total:    total,
		duration: duration,
	}
}

// Observe records one finished operation. result is ResultSuccess or an error code.
func (m *OperationMetrics) Observe(operation, result string, elapsed time.Duration) {
	if m == nil || m.total == nil {
		return
	}
	operation = normalizeLabel(operation)
	m.total.WithLabelValues(operation, normalizeLabel(result)).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
