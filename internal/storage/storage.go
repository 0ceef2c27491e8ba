package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-metrics/internal/config"
	"github.com/kubilitics/kubilitics-metrics/internal/metrics"
	"github.com/kubilitics/kubilitics-metrics/internal/models"
	"github.com/kubilitics/kubilitics-metrics/internal/storage/influx"
	"github.com/kubilitics/kubilitics-metrics/internal/storage/promstore"
	"github.com/kubilitics/kubilitics-metrics/internal/storage/sqlstore"
)

// Backend persists and retrieves metric points. Implementations must be safe
// for concurrent use.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Write stores the batch on a best-effort basis and reports how many
	// points were accepted. A bad point never aborts the rest of the batch.
	Write(ctx context.Context, points []models.MetricPoint) (int, error)

	// Query returns one row per field of every point matching q, ascending
	// by timestamp.
	Query(ctx context.Context, q models.Query) ([]models.Row, error)

	// DeleteOlderThan removes points older than cutoff. Backends that rely
	// on external retention return 0.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// ErrDegraded is wrapped by the reason a backend could not be constructed.
var ErrDegraded = errors.New("storage backend unavailable")

// Open constructs the configured backend once. If construction fails the
// reason is logged and a no-op backend carrying it is returned instead, so
// callers keep running with degraded observability.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("storage")

	b, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage backend unavailable, continuing without persistence",
			zap.String("backend", cfg.Backend), zap.Error(err))
		metrics.BackendDegraded.Set(1)
		return NewNoop(cfg.Backend, fmt.Errorf("%w: %v", ErrDegraded, err))
	}
	metrics.BackendDegraded.Set(0)
	logger.Info("storage backend ready", zap.String("backend", b.Name()))
	return Instrument(b, logger)
}

func build(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Backend, error) {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch cfg.Backend {
	case config.BackendDatabase:
		dsn := cfg.Database.SQLitePath
		if cfg.Database.Driver == sqlstore.DriverPostgres {
			dsn = cfg.Database.PostgresURL
		}
		return sqlstore.New(ctx, sqlstore.Config{Driver: cfg.Database.Driver, DSN: dsn}, logger)
	case config.BackendInfluxDB:
		return influx.New(ctx, influx.Config{
			URL:     cfg.InfluxDB.URL,
			Token:   cfg.InfluxDB.Token,
			Org:     cfg.InfluxDB.Org,
			Bucket:  cfg.InfluxDB.Bucket,
			Timeout: timeout,
		}, logger)
	case config.BackendPrometheus:
		return promstore.New(promstore.Config{
			Namespace:      cfg.Prometheus.Namespace,
			PushgatewayURL: cfg.Prometheus.PushgatewayURL,
			Job:            cfg.Prometheus.Job,
			BufferCapacity: cfg.Prometheus.BufferCapacity,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Degraded reports whether b is a stand-in for a backend that failed to
// initialise, and why.
func Degraded(b Backend) (bool, error) {
	if n, ok := unwrap(b).(*Noop); ok {
		return true, n.Reason()
	}
	return false, nil
}

// ExpositionHandler returns the scrape handler when b is the exposition backend.
func ExpositionHandler(b Backend) (http.Handler, bool) {
	if p, ok := unwrap(b).(*promstore.Store); ok {
		return p.Handler(), true
	}
	return nil, false
}

type wrapper interface {
	Unwrap() Backend
}

func unwrap(b Backend) Backend {
	for {
		w, ok := b.(wrapper)
		if !ok {
			return b
		}
		b = w.Unwrap()
	}
}
