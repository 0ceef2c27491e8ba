package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-metrics/internal/analytics"
	"github.com/kubilitics/kubilitics-metrics/internal/audit"
	"github.com/kubilitics/kubilitics-metrics/internal/collector"
	"github.com/kubilitics/kubilitics-metrics/internal/config"
	"github.com/kubilitics/kubilitics-metrics/internal/dashboard"
	"github.com/kubilitics/kubilitics-metrics/internal/logging"
	"github.com/kubilitics/kubilitics-metrics/internal/observer"
	"github.com/kubilitics/kubilitics-metrics/internal/storage"
)

// App holds the components shared by the server and the CLI.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Backend    storage.Backend
	Collector  *collector.Collector
	Analytics  *analytics.Engine
	Dashboards *dashboard.Builder
	Audit      audit.Logger
}

// LoadConfig reads and validates configuration from path (empty means the
// default location).
func LoadConfig(ctx context.Context, path string) (*config.Config, error) {
	var (
		mgr config.ConfigManager
		err error
	)
	if path == "" {
		mgr, err = config.NewConfigManagerWithDefaults()
	} else {
		mgr, err = config.NewConfigManager(path)
	}
	if err != nil {
		return nil, err
	}
	if err := mgr.Load(ctx); err != nil {
		return nil, err
	}
	if err := mgr.Validate(ctx); err != nil {
		return nil, err
	}
	return mgr.Get(ctx), nil
}

// New builds the logger, storage backend, observer, collector, analytics
// engine and dashboard builder from cfg. A storage backend that cannot be
// reached degrades to no-op instead of failing; an observer that cannot be
// built is an error.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	backend := storage.Open(ctx, cfg.Storage, logger)
	if degraded, reason := storage.Degraded(backend); degraded {
		logger.Warn("storage degraded, metrics will not be persisted", zap.Error(reason))
	}

	obs, err := observer.New(cfg.Observer, logger)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to create observer: %w", err)
	}

	col := collector.New(obs, backend, collector.Config{
		ObserverTimeout: cfg.Observer.Timeout(),
		StorageTimeout:  cfg.Storage.Timeout(),
	}, logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Backend:    backend,
		Collector:  col,
		Analytics:  analytics.NewEngine(col, analytics.OptionsFromConfig(cfg.Analytics), logger),
		Dashboards: dashboard.NewBuilder(col, logger),
		Audit: audit.New(audit.Config{
			Path:       cfg.Logging.AuditFile,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		}, logger),
	}, nil
}

// Close flushes the audit trail and releases the analytics cache and the
// storage backend.
func (a *App) Close() error {
	if a.Audit != nil {
		_ = a.Audit.Close()
	}
	a.Analytics.Close()
	err := a.Backend.Close()
	_ = a.Logger.Sync()
	return err
}
