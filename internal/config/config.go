package config

import (
	"context"
	"time"
)

// Package config provides configuration management for kubilitics-metrics.
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (KUBILITICS_METRICS_* prefix, "." replaced by "_")
//   2. YAML config file (default: /etc/kubilitics/metrics.yaml)
//   3. Built-in defaults
//
// Main Configuration Sections:
//
//   1. Server     - HTTP listener, websocket origins, rate limiting
//   2. Storage    - backend selection (database | influxdb | prometheus) and per-backend settings
//   3. Observer   - where cluster snapshots come from (http | kubernetes)
//   4. Collection - schedule, retention and measurement subset
//   5. Analytics  - aggregation cache and report limits
//   6. Dashboard  - live stream cadence
//   7. Logging    - level, format, optional rotated file

// Storage backend names.
const (
	BackendDatabase   = "database"
	BackendInfluxDB   = "influxdb"
	BackendPrometheus = "prometheus"
)

// Observer types.
const (
	ObserverHTTP       = "http"
	ObserverKubernetes = "kubernetes"
)

// Config struct contains all configuration fields
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Observer   ObserverConfig
	Collection CollectionConfig
	Analytics  AnalyticsConfig
	Dashboard  DashboardConfig
	Logging    LoggingConfig
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string
	Port int
	// AllowedOrigins is a list of origins permitted to open the dashboard stream.
	// Use ["*"] to allow any origin (development only).
	AllowedOrigins         []string
	RateLimitPerMin        int
	ShutdownTimeoutSeconds int
}

// StorageConfig selects and configures the metric storage backend.
type StorageConfig struct {
	Backend        string
	TimeoutSeconds int
	Database       DatabaseConfig
	InfluxDB       InfluxDBConfig
	Prometheus     PrometheusConfig
}

// Timeout bounds a single backend call.
func (c StorageConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DatabaseConfig configures the relational backend.
type DatabaseConfig struct {
	Driver      string // "sqlite" | "postgres"
	SQLitePath  string
	PostgresURL string
}

// InfluxDBConfig configures the time-series database backend.
type InfluxDBConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// PrometheusConfig configures the exposition backend.
type PrometheusConfig struct {
	Namespace      string
	PushgatewayURL string
	Job            string
	BufferCapacity int
}

// ObserverConfig configures the cluster observer.
type ObserverConfig struct {
	Type           string
	BaseURL        string
	Kubeconfig     string
	Context        string
	TimeoutSeconds int
}

// Timeout bounds a single observer snapshot call.
func (c ObserverConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CollectionConfig configures the collection schedule.
type CollectionConfig struct {
	Enabled         bool
	IntervalSeconds int
	RetentionDays   int
	CleanupSchedule string
	Measurements    []string
}

// Interval is the period between collection runs.
func (c CollectionConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// AnalyticsConfig configures the analytics engine.
type AnalyticsConfig struct {
	CacheTTLSeconds    int
	CacheMaxEntries    int
	DefaultGranularity string
	MaxServices        int
}

// CacheTTL is the lifetime of a cached aggregation.
func (c AnalyticsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// DashboardConfig configures dashboard streaming.
type DashboardConfig struct {
	StreamIntervalSeconds int
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// AuditFile receives the audit trail of collection runs, deletes and
	// exports. Empty disables auditing.
	AuditFile string
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/kubilitics/metrics.yaml")
}
