package main

// Command server runs the metrics service: scheduled collection from the
// configured cluster observer, retention cleanup, and the HTTP API for
// history, analytics, exports and dashboards.
//
// Startup order: config → logger → storage backend (degrades to no-op when
// unreachable) → observer → collector → analytics engine → dashboard
// builder → scheduler → HTTP server. Shutdown runs the reverse.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-metrics/internal/app"
	"github.com/kubilitics/kubilitics-metrics/internal/audit"
	"github.com/kubilitics/kubilitics-metrics/internal/scheduler"
	"github.com/kubilitics/kubilitics-metrics/internal/server"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "kubilitics-metrics",
		Short:         "Cluster metrics collection and analytics service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("KUBILITICS_METRICS_CONFIG"), "path to the config file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kubilitics-metrics: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := app.LoadConfig(ctx, configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger

	sched := scheduler.New(logger)
	if err := scheduler.Register(sched, a.Collector, cfg.Collection); err != nil {
		return fmt.Errorf("failed to register jobs: %w", err)
	}

	srv, err := server.NewServer(cfg, server.Deps{
		Collector:  a.Collector,
		Analytics:  a.Analytics,
		Dashboards: a.Dashboards,
		Scheduler:  sched,
		Audit:      a.Audit,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := sched.Start(); err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	_ = a.Audit.Log(ctx, audit.NewEvent(audit.EventServerStarted).
		WithActor("server", "").
		WithMetadata("storage", a.Backend.Name()))
	logger.Info("kubilitics-metrics started",
		zap.String("storage", a.Backend.Name()),
		zap.String("observer", cfg.Observer.Type),
		zap.Bool("collection", cfg.Collection.Enabled),
		zap.Duration("interval", cfg.Collection.Interval()))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	logger.Info("shutdown signal received")

	timeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("server stop", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler stop", zap.Error(err))
	}
	_ = a.Audit.Log(shutdownCtx, audit.NewEvent(audit.EventServerShutdown).WithActor("server", ""))
	logger.Info("shutdown complete")
	return nil
}
