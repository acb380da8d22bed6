package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/homefs/pkg/adapter/api"
	"github.com/spf13/viper"
)

// Config represents the complete homefs configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (HOMEFS_*), optionally loaded from a .env file
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each backend defines its own configuration type, decoded with mapstructure
// from the type-specific map (e.g., accounts.badger, content.s3). Only the
// section matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// API configures the HTTP front end
	API api.Config `mapstructure:"api"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Accounts selects the account store and quota defaults
	Accounts AccountsConfig `mapstructure:"accounts"`

	// Content selects the physical storage backend
	Content ContentConfig `mapstructure:"content"`

	// Session controls authenticated sessions
	Session SessionConfig `mapstructure:"session"`

	// Audit selects where audit entries go
	Audit AuditConfig `mapstructure:"audit"`

	// Reconcile controls background index/storage reconciliation
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// MetricsConfig configures the metrics HTTP server.
type MetricsConfig struct {
	// Enabled turns on Prometheus collection and the metrics server
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port of the metrics server
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// AccountsConfig specifies the account store and quota policy.
type AccountsConfig struct {
	// Type specifies which account store implementation to use
	// Valid values: memory, jsonfile, badger, postgres
	Type string `mapstructure:"type" validate:"required,oneof=memory jsonfile badger postgres"`

	// DefaultQuotaMB is the limit assigned to self-registered accounts
	DefaultQuotaMB float64 `mapstructure:"default_quota_mb" validate:"gt=0"`

	// AdminPassword is used to bootstrap the admin account when it does not exist
	AdminPassword string `mapstructure:"admin_password" validate:"required"`

	// PruneOrphans deletes accounts whose home directory has disappeared
	PruneOrphans bool `mapstructure:"prune_orphans"`

	// JSONFile contains jsonfile-specific configuration (path)
	JSONFile map[string]any `mapstructure:"jsonfile"`

	// Badger contains BadgerDB-specific configuration (db_path)
	Badger map[string]any `mapstructure:"badger"`

	// Postgres contains PostgreSQL-specific configuration (dsn, max_open_conns)
	Postgres map[string]any `mapstructure:"postgres"`
}

// ContentConfig specifies content store configuration.
type ContentConfig struct {
	// Type specifies which content store implementation to use
	// Valid values: filesystem, memory, s3
	Type string `mapstructure:"type" validate:"required,oneof=filesystem memory s3"`

	// Filesystem contains filesystem-specific configuration
	Filesystem map[string]any `mapstructure:"filesystem"`

	// S3 contains S3-specific configuration
	S3 map[string]any `mapstructure:"s3"`
}

// SessionConfig controls session lifetime and admission.
type SessionConfig struct {
	// TTL bounds a session's lifetime. Zero keeps sessions until logout.
	TTL time.Duration `mapstructure:"ttl" validate:"min=0"`

	// SingleSeat allows only one active session server-wide
	SingleSeat bool `mapstructure:"single_seat"`
}

// AuditConfig selects the audit sink.
type AuditConfig struct {
	// Type is one of noop, log, file
	Type string `mapstructure:"type" validate:"required,oneof=noop log file"`

	// Path is the JSON lines file used when Type = "file"
	Path string `mapstructure:"path"`
}

// ReconcileConfig controls background reconciliation.
type ReconcileConfig struct {
	// Enabled starts the periodic reconciler
	Enabled bool `mapstructure:"enabled"`

	// Interval between passes
	Interval time.Duration `mapstructure:"interval" validate:"min=0"`

	// Timeout bounds a single pass
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`

	// DryRun logs divergence without modifying the index
	DryRun bool `mapstructure:"dry_run"`

	// ReleaseMissing returns the quota of files whose physical object vanished
	ReleaseMissing bool `mapstructure:"release_missing"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: HOMEFS_ACCOUNTS_ADMIN_PASSWORD=secret
	v.SetEnvPrefix("HOMEFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about
	for _, key := range Keys() {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/homefs, ~/.config/homefs, or "."
// when the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "homefs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "homefs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
