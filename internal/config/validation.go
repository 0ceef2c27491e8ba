package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap/zapcore"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}
	if c.Server.RateLimitPerMin < 1 {
		errs = append(errs, &ValidationError{
			Field:   "server.rate_limit_per_min",
			Message: "rate limit must be at least 1 request per minute",
		})
	}

	// Storage
	if c.Storage.TimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "storage.timeout_seconds",
			Message: "timeout must be positive",
		})
	}
	switch c.Storage.Backend {
	case BackendDatabase:
		errs = append(errs, c.validateDatabase()...)
	case BackendInfluxDB:
		if err := validateURL("storage.influxdb.url", c.Storage.InfluxDB.URL); err != nil {
			errs = append(errs, err)
		}
		if c.Storage.InfluxDB.Org == "" || c.Storage.InfluxDB.Bucket == "" {
			errs = append(errs, &ValidationError{
				Field:   "storage.influxdb",
				Message: "org and bucket are required for the influxdb backend",
			})
		}
	case BackendPrometheus:
		if c.Storage.Prometheus.BufferCapacity < 1 {
			errs = append(errs, &ValidationError{
				Field:   "storage.prometheus.buffer_capacity",
				Message: "buffer capacity must be positive",
			})
		}
		if c.Storage.Prometheus.PushgatewayURL != "" {
			if err := validateURL("storage.prometheus.pushgateway_url", c.Storage.Prometheus.PushgatewayURL); err != nil {
				errs = append(errs, err)
			}
		}
	default:
		errs = append(errs, &ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("must be one of database, influxdb, prometheus, got %q", c.Storage.Backend),
		})
	}

	// Observer
	switch c.Observer.Type {
	case ObserverHTTP:
		if err := validateURL("observer.base_url", c.Observer.BaseURL); err != nil {
			errs = append(errs, err)
		}
	case ObserverKubernetes:
	default:
		errs = append(errs, &ValidationError{
			Field:   "observer.type",
			Message: fmt.Sprintf("must be http or kubernetes, got %q", c.Observer.Type),
		})
	}
	if c.Observer.TimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "observer.timeout_seconds",
			Message: "timeout must be positive",
		})
	}

	// Collection
	if c.Collection.IntervalSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "collection.interval_seconds",
			Message: "interval must be at least 1 second",
		})
	}
	if c.Collection.RetentionDays < 1 {
		errs = append(errs, &ValidationError{
			Field:   "collection.retention_days",
			Message: "retention must be at least 1 day",
		})
	}
	if c.Collection.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.Collection.CleanupSchedule); err != nil {
			errs = append(errs, &ValidationError{
				Field:   "collection.cleanup_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	// Analytics
	if c.Analytics.CacheMaxEntries < 1 {
		errs = append(errs, &ValidationError{
			Field:   "analytics.cache_max_entries",
			Message: "cache must hold at least one entry",
		})
	}
	if c.Analytics.MaxServices < 1 {
		errs = append(errs, &ValidationError{
			Field:   "analytics.max_services",
			Message: "max services must be positive",
		})
	}

	// Dashboard
	if c.Dashboard.StreamIntervalSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "dashboard.stream_interval_seconds",
			Message: "stream interval must be at least 1 second",
		})
	}

	// Logging
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level %q", c.Logging.Level),
		})
	}
	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "console" {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("must be json or console, got %q", c.Logging.Format),
		})
	}

	return errs
}

func (c *Config) validateDatabase() []error {
	var errs []error
	switch c.Storage.Database.Driver {
	case "sqlite":
		if c.Storage.Database.SQLitePath == "" {
			errs = append(errs, &ValidationError{
				Field:   "storage.database.sqlite_path",
				Message: "sqlite_path is required when driver is sqlite",
			})
		}
	case "postgres":
		if c.Storage.Database.PostgresURL == "" {
			errs = append(errs, &ValidationError{
				Field:   "storage.database.postgres_url",
				Message: "postgres_url is required when driver is postgres",
			})
		}
	default:
		errs = append(errs, &ValidationError{
			Field:   "storage.database.driver",
			Message: fmt.Sprintf("must be sqlite or postgres, got %q", c.Storage.Database.Driver),
		})
	}
	return errs
}

func validateURL(field, raw string) error {
	if raw == "" {
		return &ValidationError{Field: field, Message: "url is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{Field: field, Message: fmt.Sprintf("invalid url %q", raw)}
	}
	return nil
}
