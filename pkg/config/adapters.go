package config

import (
	"fmt"

	"github.com/marmos91/homefs/pkg/adapter"
	"github.com/marmos91/homefs/pkg/adapter/api"
	"github.com/marmos91/homefs/pkg/metrics"
)

// CreateAdapters creates all enabled front-end adapters from the configuration.
//
// Parameters:
//   - cfg: The complete homefs configuration
//   - apiMetrics: Optional HTTP metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: If no adapter is enabled
func CreateAdapters(cfg *Config, apiMetrics metrics.APIMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.API.Enabled {
		adapters = append(adapters, api.New(cfg.API, apiMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
