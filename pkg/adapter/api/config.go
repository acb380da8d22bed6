package api

import (
	"fmt"
	"time"

	"github.com/marmos91/homefs/internal/ratelimiter"
)

// Config configures the HTTP API adapter.
//
// Default values (applied if zero):
//   - Listen: ":8080"
//   - ReadTimeout: 15s
//   - WriteTimeout: 30s
//   - IdleTimeout: 2m
//   - ShutdownTimeout: 30s
//   - MaxBodyBytes: 1 MiB
type Config struct {
	// Enabled controls whether the API adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// Listen is the TCP address to bind, host:port. Port 0 picks a free port.
	Listen string `mapstructure:"listen"`

	// ReadTimeout bounds reading a complete request including the body.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing the response.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// IdleTimeout closes keep-alive connections idle for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout is how long in-flight requests get to finish on shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// MaxBodyBytes caps request bodies. Larger bodies are rejected with 413.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"min=0"`

	// RateLimit throttles requests per client address. Zero rate disables it.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-client request throttling.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client address.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`

	// Burst is the bucket capacity per client address.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
}

func (c *Config) validate() error {
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid API timeouts: must be >= 0")
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("invalid MaxBodyBytes %d: must be >= 0", c.MaxBodyBytes)
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("invalid rate limit %v: must be >= 0", c.RateLimit.RequestsPerSecond)
	}
	return nil
}

func (c RateLimitConfig) limiter() ratelimiter.Config {
	return ratelimiter.Config{
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
	}
}
