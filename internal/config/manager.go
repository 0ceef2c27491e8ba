package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	mu         sync.RWMutex
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("KUBILITICS_METRICS")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// The config file is optional; defaults + env vars are enough to run.
	if err := m.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.Get(ctx).Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches the config file and publishes every successful reload.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.Get(ctx):
		default:
			// Channel full, skip this update
		}
	})
	m.viper.WatchConfig()

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	d := DefaultConfig()

	// Server
	m.viper.SetDefault("server.host", d.Server.Host)
	m.viper.SetDefault("server.port", d.Server.Port)
	m.viper.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	m.viper.SetDefault("server.rate_limit_per_min", d.Server.RateLimitPerMin)
	m.viper.SetDefault("server.shutdown_timeout_seconds", d.Server.ShutdownTimeoutSeconds)

	// Storage
	m.viper.SetDefault("storage.backend", d.Storage.Backend)
	m.viper.SetDefault("storage.timeout_seconds", d.Storage.TimeoutSeconds)
	m.viper.SetDefault("storage.database.driver", d.Storage.Database.Driver)
	m.viper.SetDefault("storage.database.sqlite_path", d.Storage.Database.SQLitePath)
	m.viper.SetDefault("storage.database.postgres_url", d.Storage.Database.PostgresURL)
	m.viper.SetDefault("storage.influxdb.url", d.Storage.InfluxDB.URL)
	m.viper.SetDefault("storage.influxdb.token", d.Storage.InfluxDB.Token)
	m.viper.SetDefault("storage.influxdb.org", d.Storage.InfluxDB.Org)
	m.viper.SetDefault("storage.influxdb.bucket", d.Storage.InfluxDB.Bucket)
	m.viper.SetDefault("storage.prometheus.namespace", d.Storage.Prometheus.Namespace)
	m.viper.SetDefault("storage.prometheus.pushgateway_url", d.Storage.Prometheus.PushgatewayURL)
	m.viper.SetDefault("storage.prometheus.job", d.Storage.Prometheus.Job)
	m.viper.SetDefault("storage.prometheus.buffer_capacity", d.Storage.Prometheus.BufferCapacity)

	// Observer
	m.viper.SetDefault("observer.type", d.Observer.Type)
	m.viper.SetDefault("observer.base_url", d.Observer.BaseURL)
	m.viper.SetDefault("observer.kubeconfig", d.Observer.Kubeconfig)
	m.viper.SetDefault("observer.context", d.Observer.Context)
	m.viper.SetDefault("observer.timeout_seconds", d.Observer.TimeoutSeconds)

	// Collection
	m.viper.SetDefault("collection.enabled", d.Collection.Enabled)
	m.viper.SetDefault("collection.interval_seconds", d.Collection.IntervalSeconds)
	m.viper.SetDefault("collection.retention_days", d.Collection.RetentionDays)
	m.viper.SetDefault("collection.cleanup_schedule", d.Collection.CleanupSchedule)
	m.viper.SetDefault("collection.measurements", d.Collection.Measurements)

	// Analytics
	m.viper.SetDefault("analytics.cache_ttl_seconds", d.Analytics.CacheTTLSeconds)
	m.viper.SetDefault("analytics.cache_max_entries", d.Analytics.CacheMaxEntries)
	m.viper.SetDefault("analytics.default_granularity", d.Analytics.DefaultGranularity)
	m.viper.SetDefault("analytics.max_services", d.Analytics.MaxServices)

	// Dashboard
	m.viper.SetDefault("dashboard.stream_interval_seconds", d.Dashboard.StreamIntervalSeconds)

	// Logging
	m.viper.SetDefault("logging.level", d.Logging.Level)
	m.viper.SetDefault("logging.format", d.Logging.Format)
	m.viper.SetDefault("logging.file", d.Logging.File)
	m.viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", d.Logging.Compress)
	m.viper.SetDefault("logging.audit_file", d.Logging.AuditFile)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Server
	cfg.Server.Host = m.viper.GetString("server.host")
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")
	cfg.Server.RateLimitPerMin = m.viper.GetInt("server.rate_limit_per_min")
	cfg.Server.ShutdownTimeoutSeconds = m.viper.GetInt("server.shutdown_timeout_seconds")

	// Storage
	cfg.Storage.Backend = strings.ToLower(m.viper.GetString("storage.backend"))
	cfg.Storage.TimeoutSeconds = m.viper.GetInt("storage.timeout_seconds")
	cfg.Storage.Database.Driver = strings.ToLower(m.viper.GetString("storage.database.driver"))
	cfg.Storage.Database.SQLitePath = m.viper.GetString("storage.database.sqlite_path")
	cfg.Storage.Database.PostgresURL = m.viper.GetString("storage.database.postgres_url")
	cfg.Storage.InfluxDB.URL = m.viper.GetString("storage.influxdb.url")
	cfg.Storage.InfluxDB.Token = m.viper.GetString("storage.influxdb.token")
	cfg.Storage.InfluxDB.Org = m.viper.GetString("storage.influxdb.org")
	cfg.Storage.InfluxDB.Bucket = m.viper.GetString("storage.influxdb.bucket")
	cfg.Storage.Prometheus.Namespace = m.viper.GetString("storage.prometheus.namespace")
	cfg.Storage.Prometheus.PushgatewayURL = m.viper.GetString("storage.prometheus.pushgateway_url")
	cfg.Storage.Prometheus.Job = m.viper.GetString("storage.prometheus.job")
	cfg.Storage.Prometheus.BufferCapacity = m.viper.GetInt("storage.prometheus.buffer_capacity")

	// Observer
	cfg.Observer.Type = strings.ToLower(m.viper.GetString("observer.type"))
	cfg.Observer.BaseURL = m.viper.GetString("observer.base_url")
	cfg.Observer.Kubeconfig = m.viper.GetString("observer.kubeconfig")
	cfg.Observer.Context = m.viper.GetString("observer.context")
	cfg.Observer.TimeoutSeconds = m.viper.GetInt("observer.timeout_seconds")

	// Collection
	cfg.Collection.Enabled = m.viper.GetBool("collection.enabled")
	cfg.Collection.IntervalSeconds = m.viper.GetInt("collection.interval_seconds")
	cfg.Collection.RetentionDays = m.viper.GetInt("collection.retention_days")
	cfg.Collection.CleanupSchedule = m.viper.GetString("collection.cleanup_schedule")
	cfg.Collection.Measurements = m.viper.GetStringSlice("collection.measurements")

	// Analytics
	cfg.Analytics.CacheTTLSeconds = m.viper.GetInt("analytics.cache_ttl_seconds")
	cfg.Analytics.CacheMaxEntries = m.viper.GetInt("analytics.cache_max_entries")
	cfg.Analytics.DefaultGranularity = m.viper.GetString("analytics.default_granularity")
	cfg.Analytics.MaxServices = m.viper.GetInt("analytics.max_services")

	// Dashboard
	cfg.Dashboard.StreamIntervalSeconds = m.viper.GetInt("dashboard.stream_interval_seconds")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.File = m.viper.GetString("logging.file")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")
	cfg.Logging.AuditFile = m.viper.GetString("logging.audit_file")

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}
