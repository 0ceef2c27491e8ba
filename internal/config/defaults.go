package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8082
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.RateLimitPerMin = 60
	cfg.Server.ShutdownTimeoutSeconds = 15

	// Storage defaults
	cfg.Storage.Backend = BackendDatabase
	cfg.Storage.TimeoutSeconds = 10
	cfg.Storage.Database.Driver = "sqlite"
	cfg.Storage.Database.SQLitePath = "/var/lib/kubilitics/metrics.db"
	cfg.Storage.Database.PostgresURL = ""
	cfg.Storage.InfluxDB.URL = "http://localhost:8086"
	cfg.Storage.InfluxDB.Org = "kubilitics"
	cfg.Storage.InfluxDB.Bucket = "cluster_metrics"
	cfg.Storage.Prometheus.Namespace = "kubilitics"
	cfg.Storage.Prometheus.Job = "kubilitics_metrics"
	cfg.Storage.Prometheus.BufferCapacity = 10000

	// Observer defaults
	cfg.Observer.Type = ObserverKubernetes
	cfg.Observer.BaseURL = "http://localhost:8080"
	cfg.Observer.TimeoutSeconds = 10

	// Collection defaults
	cfg.Collection.Enabled = true
	cfg.Collection.IntervalSeconds = 30
	cfg.Collection.RetentionDays = 30
	cfg.Collection.CleanupSchedule = "@daily"

	// Analytics defaults
	cfg.Analytics.CacheTTLSeconds = 300
	cfg.Analytics.CacheMaxEntries = 512
	cfg.Analytics.DefaultGranularity = "5m"
	cfg.Analytics.MaxServices = 10

	// Dashboard defaults
	cfg.Dashboard.StreamIntervalSeconds = 5

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	return cfg
}
