// Package metrics defines the observability interfaces of homefs components and
// owns the process-wide Prometheus registry.
//
// All metrics are optional: when the registry is not initialized, constructors in
// pkg/metrics/prometheus return the no-op implementations declared here.
//
// Usage:
//
//	metrics.InitRegistry()
//	vfsMetrics := prometheus.NewVFSMetrics()
//	engine := vfs.New(vfs.Config{...}, vfsMetrics)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is the global Prometheus registry, written once by InitRegistry
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// Must be called before creating any metrics instances. Subsequent calls are
// ignored. Go runtime and process collectors are registered alongside homefs
// metrics.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global Prometheus registry.
//
// Returns nil if InitRegistry() has not been called, indicating metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if metrics collection is enabled.
//
// Metrics are enabled if InitRegistry() has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
