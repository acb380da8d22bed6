// Package prometheus provides Prometheus-backed implementations of the
// interfaces declared in pkg/metrics.
//
// Every constructor returns the matching no-op implementation when the global
// registry has not been initialized.
package prometheus

import (
	"time"

	"github.com/marmos91/homefs/pkg/fserr"
	"github.com/marmos91/homefs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// vfsMetrics is the Prometheus implementation of metrics.VFSMetrics.
type vfsMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	quotaUsage        *prometheus.GaugeVec
	quotaLimit        *prometheus.GaugeVec
	activeSessions    prometheus.Gauge
	files             prometheus.Gauge
	reconcileRuns     *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
	reconcileRepairs  *prometheus.CounterVec
}

// NewVFSMetrics creates a new Prometheus-backed VFSMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewVFSMetrics() metrics.VFSMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopVFSMetrics()
	}
	return newVFSMetrics(metrics.GetRegistry())
}

func newVFSMetrics(reg prometheus.Registerer) *vfsMetrics {
	return &vfsMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "homefs_vfs_operations_total",
				Help: "Total number of filesystem operations by operation, status and error code",
			},
			[]string{"operation", "status", "error_code"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "homefs_vfs_operation_duration_seconds",
				Help: "Duration of filesystem operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
					5.0,    // 5s
				},
			},
			[]string{"operation"},
		),
		quotaUsage: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "homefs_quota_usage_bytes",
				Help: "Bytes reserved by each account",
			},
			[]string{"user"},
		),
		quotaLimit: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "homefs_quota_limit_bytes",
				Help: "Quota limit of each account in bytes",
			},
			[]string{"user"},
		),
		activeSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "homefs_active_sessions",
				Help: "Current number of open sessions",
			},
		),
		files: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "homefs_files",
				Help: "Current number of files in the logical index",
			},
		),
		reconcileRuns: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "homefs_reconcile_runs_total",
				Help: "Total number of synchronization passes by status",
			},
			[]string{"status"},
		),
		reconcileDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "homefs_reconcile_duration_seconds",
				Help: "Duration of synchronization passes in seconds",
				Buckets: []float64{
					0.01, // 10ms
					0.1,  // 100ms
					1.0,  // 1s
					10.0, // 10s
					60.0, // 1min
				},
			},
		),
		reconcileRepairs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "homefs_reconcile_repairs_total",
				Help: "Logical index repairs made by synchronization, by kind",
			},
			[]string{"kind"}, // dropped or discovered
		),
	}
}

func (m *vfsMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	code := ""
	if err != nil {
		status = "error"
		code = errorCode(err)
	}

	m.operationsTotal.WithLabelValues(operation, status, code).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *vfsMetrics) SetQuota(userID string, usageBytes, limitBytes uint64) {
	m.quotaUsage.WithLabelValues(userID).Set(float64(usageBytes))
	m.quotaLimit.WithLabelValues(userID).Set(float64(limitBytes))
}

func (m *vfsMetrics) DeleteQuota(userID string) {
	m.quotaUsage.DeleteLabelValues(userID)
	m.quotaLimit.DeleteLabelValues(userID)
}

func (m *vfsMetrics) SetActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

func (m *vfsMetrics) SetFiles(count int) {
	m.files.Set(float64(count))
}

func (m *vfsMetrics) RecordReconcile(duration time.Duration, dropped, discovered int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.reconcileRuns.WithLabelValues(status).Inc()
	m.reconcileDuration.Observe(duration.Seconds())
	m.reconcileRepairs.WithLabelValues("dropped").Add(float64(dropped))
	m.reconcileRepairs.WithLabelValues("discovered").Add(float64(discovered))
}

// errorCode returns the fserr code name of err, or "internal" for foreign errors.
func errorCode(err error) string {
	if code := fserr.CodeOf(err); code != 0 {
		return code.String()
	}
	return "internal"
}
