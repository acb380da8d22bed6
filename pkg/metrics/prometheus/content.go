package prometheus

import (
	"time"

	"github.com/marmos91/homefs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// contentMetrics is the Prometheus implementation of metrics.ContentMetrics.
type contentMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	bytesTransferred  *prometheus.CounterVec
}

// NewContentMetrics creates a new Prometheus-backed ContentMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewContentMetrics() metrics.ContentMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopContentMetrics()
	}
	return newContentMetrics(metrics.GetRegistry())
}

func newContentMetrics(reg prometheus.Registerer) *contentMetrics {
	return &contentMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "homefs_content_operations_total",
				Help: "Total number of content store operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "homefs_content_operation_duration_seconds",
				Help: "Duration of content store operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.001,  // 1ms
					0.01,   // 10ms
					0.025,  // 25ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.25,   // 250ms
					0.5,    // 500ms
					1.0,    // 1s
					5.0,    // 5s
					30.0,   // 30s
				},
			},
			[]string{"backend", "operation"},
		),
		errorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "homefs_content_errors_total",
				Help: "Total number of content store errors by backend and operation",
			},
			[]string{"backend", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "homefs_content_bytes_total",
				Help: "Total payload bytes moved through the content store",
			},
			[]string{"backend", "direction"}, // read or write
		),
	}
}

func (m *contentMetrics) ObserveOperation(backend, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.errorsTotal.WithLabelValues(backend, operation).Inc()
	}

	m.operationsTotal.WithLabelValues(backend, operation, status).Inc()
	m.operationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

func (m *contentMetrics) RecordBytes(backend, direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(backend, direction).Add(float64(bytes))
}
