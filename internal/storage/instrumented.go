package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-metrics/internal/metrics"
	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

// instrumented records backend activity on the self-instrumentation metrics.
type instrumented struct {
	Backend
	logger *zap.Logger
}

// Instrument wraps b so every call is counted and timed.
func Instrument(b Backend, logger *zap.Logger) Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumented{Backend: b, logger: logger}
}

func (i *instrumented) Unwrap() Backend { return i.Backend }

func (i *instrumented) Write(ctx context.Context, points []models.MetricPoint) (int, error) {
	n, err := i.Backend.Write(ctx, points)
	if err != nil {
		metrics.BackendErrors.WithLabelValues(i.Name(), "write").Inc()
	}
	metrics.PointsWritten.WithLabelValues(i.Name()).Add(float64(n))
	if n < len(points) {
		i.logger.Debug("partial batch write",
			zap.String("backend", i.Name()),
			zap.Int("written", n),
			zap.Int("submitted", len(points)))
	}
	return n, err
}

func (i *instrumented) Query(ctx context.Context, q models.Query) ([]models.Row, error) {
	start := time.Now()
	rows, err := i.Backend.Query(ctx, q)
	metrics.BackendQueryDuration.WithLabelValues(i.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendErrors.WithLabelValues(i.Name(), "query").Inc()
	}
	return rows, err
}

func (i *instrumented) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := i.Backend.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		metrics.BackendErrors.WithLabelValues(i.Name(), "delete").Inc()
	}
	metrics.PointsDeleted.WithLabelValues(i.Name()).Add(float64(n))
	return n, err
}
