package config

import (
	"github.com/marmos91/homefs/pkg/metrics"
	promMetrics "github.com/marmos91/homefs/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// VFS collects engine metrics (never nil, noop if disabled)
	VFS metrics.VFSMetrics

	// API collects HTTP adapter metrics (never nil, noop if disabled)
	API metrics.APIMetrics

	// Content collects storage backend metrics (nil if disabled, so the store is not wrapped)
	Content metrics.ContentMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			VFS: metrics.NewNoopVFSMetrics(),
			API: metrics.NewNoopAPIMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:  server,
		VFS:     promMetrics.NewVFSMetrics(),
		API:     promMetrics.NewAPIMetrics(),
		Content: promMetrics.NewContentMetrics(),
	}
}
