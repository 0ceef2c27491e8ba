package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubilitics/kubilitics-metrics/internal/metrics"
	"github.com/kubilitics/kubilitics-metrics/internal/models"
	"github.com/kubilitics/kubilitics-metrics/internal/observer"
	"github.com/kubilitics/kubilitics-metrics/internal/storage"
)

// Package collector turns cluster observer snapshots into metric points,
// writes them through the storage backend and answers historical queries.
//
// Collection is not internally serialised: callers (the scheduler, the CLI)
// must not start a run before the previous one returns.

const (
	sourceSystem   = "system"
	sourceServices = "services"
	sourceNodes    = "nodes"

	defaultHistoryWindow = 24 * time.Hour
)

// sourceMeasurements maps each observer call to the measurements it feeds.
var sourceMeasurements = map[string][]string{
	sourceSystem:   {models.MeasurementSystemContainers, models.MeasurementSystemResources, models.MeasurementClusterInfo},
	sourceServices: {models.MeasurementServiceReplicas, models.MeasurementServiceHealth},
	sourceNodes:    {models.MeasurementNodeResources, models.MeasurementNodeStatus},
}

var sourceOrder = []string{sourceSystem, sourceServices, sourceNodes}

// Config bounds the collector's external calls.
type Config struct {
	ObserverTimeout time.Duration
	StorageTimeout  time.Duration
}

// Summary describes one collection run.
type Summary struct {
	Success          bool      `json:"success"`
	RunID            string    `json:"run_id"`
	MetricsCollected int       `json:"metrics_collected"`
	Written          int       `json:"written"`
	Timestamp        time.Time `json:"timestamp"`
	Errors           []string  `json:"errors,omitempty"`
}

// CollectOptions restricts a run. An empty Measurements list collects everything.
type CollectOptions struct {
	Measurements []string
}

// Collector bridges the cluster observer and the storage backend.
type Collector struct {
	observer observer.Observer
	backend  storage.Backend
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a collector.
func New(obs observer.Observer, backend storage.Backend, cfg Config, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ObserverTimeout <= 0 {
		cfg.ObserverTimeout = 10 * time.Second
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = 10 * time.Second
	}
	return &Collector{
		observer: obs,
		backend:  backend,
		cfg:      cfg,
		logger:   logger.Named("collector"),
		now:      time.Now,
	}
}

// Backend returns the storage backend the collector writes to.
func (c *Collector) Backend() storage.Backend {
	return c.backend
}

// CollectAll snapshots every source and writes the points in one batch.
func (c *Collector) CollectAll(ctx context.Context) Summary {
	return c.Collect(ctx, CollectOptions{})
}

// Collect snapshots the sources feeding the requested measurements. Sources
// run concurrently and independently: a failing source is logged and
// contributes no points.
func (c *Collector) Collect(ctx context.Context, opts CollectOptions) Summary {
	start := time.Now()
	ts := c.now().UTC()
	summary := Summary{RunID: uuid.NewString(), Timestamp: ts}
	logger := c.logger.With(zap.String("run_id", summary.RunID))

	wanted, unknown := resolveMeasurements(opts.Measurements)
	for _, m := range unknown {
		summary.Errors = append(summary.Errors, fmt.Sprintf("unknown measurement %q", m))
	}
	if len(wanted) == 0 {
		logger.Warn("nothing to collect", zap.Strings("unknown", unknown))
		metrics.CollectionsTotal.WithLabelValues("failed").Inc()
		return summary
	}

	var (
		mu      sync.Mutex
		batches = make(map[string][]models.MetricPoint, len(sourceOrder))
		errs    = make(map[string]error)
	)
	var g errgroup.Group
	for _, source := range sourceOrder {
		if !feedsAny(source, wanted) {
			continue
		}
		source := source
		g.Go(func() error {
			points, err := c.collectSource(ctx, source, ts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[source] = err
				return nil
			}
			batches[source] = points
			return nil
		})
	}
	_ = g.Wait()

	var points []models.MetricPoint
	for _, source := range sourceOrder {
		if err, ok := errs[source]; ok {
			metrics.ObserverErrors.WithLabelValues(source).Inc()
			logger.Error("sub-collection failed", zap.String("source", source), zap.Error(err))
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", source, err))
			continue
		}
		for _, p := range batches[source] {
			if wanted[p.Measurement] {
				points = append(points, p)
				metrics.PointsCollected.WithLabelValues(p.Measurement).Inc()
			}
		}
	}
	summary.MetricsCollected = len(points)

	if len(points) > 0 {
		wctx, cancel := context.WithTimeout(ctx, c.cfg.StorageTimeout)
		written, err := c.backend.Write(wctx, points)
		cancel()
		summary.Written = written
		if err != nil {
			logger.Error("batch write failed", zap.String("backend", c.backend.Name()), zap.Error(err))
			summary.Errors = append(summary.Errors, fmt.Sprintf("write: %v", err))
			metrics.CollectionsTotal.WithLabelValues("failed").Inc()
			metrics.CollectionDuration.Observe(time.Since(start).Seconds())
			return summary
		}
	}

	summary.Success = true
	status := "success"
	if len(summary.Errors) > 0 {
		status = "partial"
	}
	metrics.CollectionsTotal.WithLabelValues(status).Inc()
	metrics.CollectionDuration.Observe(time.Since(start).Seconds())

	logger.Info("collected and stored metrics",
		zap.Int("points", summary.MetricsCollected),
		zap.Int("written", summary.Written),
		zap.Int("errors", len(summary.Errors)),
		zap.Duration("duration", time.Since(start)))
	return summary
}

func (c *Collector) collectSource(ctx context.Context, source string, ts time.Time) ([]models.MetricPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ObserverTimeout)
	defer cancel()

	switch source {
	case sourceSystem:
		snap, err := c.observer.System(ctx)
		if err != nil {
			return nil, err
		}
		return systemPoints(snap, ts), nil
	case sourceServices:
		services, err := c.observer.Services(ctx)
		if err != nil {
			return nil, err
		}
		if len(services) == 0 {
			c.logger.Debug("observer reported no services")
		}
		return servicePoints(services, ts), nil
	case sourceNodes:
		nodes, err := c.observer.Nodes(ctx)
		if err != nil {
			return nil, err
		}
		if len(nodes) == 0 {
			c.logger.Debug("observer reported no nodes")
		}
		return nodePoints(nodes, ts), nil
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
}

func resolveMeasurements(requested []string) (map[string]bool, []string) {
	wanted := make(map[string]bool)
	if len(requested) == 0 {
		for _, m := range models.AllMeasurements {
			wanted[m] = true
		}
		return wanted, nil
	}
	known := make(map[string]bool, len(models.AllMeasurements))
	for _, m := range models.AllMeasurements {
		known[m] = true
	}
	var unknown []string
	for _, m := range requested {
		if known[m] {
			wanted[m] = true
		} else {
			unknown = append(unknown, m)
		}
	}
	return wanted, unknown
}

func feedsAny(source string, wanted map[string]bool) bool {
	for _, m := range sourceMeasurements[source] {
		if wanted[m] {
			return true
		}
	}
	return false
}

// ─── Queries ────────────────────────────────────────────────────────────────

// GetHistoricalData returns the rows of measurement matching tags in
// [start, end]. A zero start means 24 hours before end, a zero end means now.
// Backend failures are logged and answered with an empty result.
func (c *Collector) GetHistoricalData(ctx context.Context, measurement string, tags models.TagFilter, start, end time.Time) []models.Row {
	if end.IsZero() {
		end = c.now()
	}
	if start.IsZero() {
		start = end.Add(-defaultHistoryWindow)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.StorageTimeout)
	defer cancel()

	rows, err := c.backend.Query(ctx, models.Query{
		Measurement: measurement,
		Tags:        tags,
		Start:       start.UTC(),
		End:         end.UTC(),
	})
	if err != nil {
		c.logger.Error("historical query failed",
			zap.String("measurement", measurement),
			zap.String("tags", tags.Key()),
			zap.Error(err))
		return []models.Row{}
	}
	if rows == nil {
		return []models.Row{}
	}
	return rows
}

// TagValues lists the distinct values of key seen on measurement in the
// window, in first-seen order.
func (c *Collector) TagValues(ctx context.Context, measurement, key string, start, end time.Time) []string {
	seen := make(map[string]bool)
	var values []string
	for _, row := range c.GetHistoricalData(ctx, measurement, nil, start, end) {
		v, ok := row.Tags[key]
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	return values
}

// CleanupOldMetrics deletes points older than days.
func (c *Collector) CleanupOldMetrics(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("retention must be at least one day, got %d", days)
	}
	cutoff := c.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.StorageTimeout)
	defer cancel()

	deleted, err := c.backend.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	c.logger.Info("cleaned up old metrics",
		zap.String("backend", c.backend.Name()),
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff))
	return deleted, nil
}
