package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kubilitics/kubilitics-metrics/internal/cache"
	"github.com/kubilitics/kubilitics-metrics/internal/config"
	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

// Package analytics turns raw metric rows into decision-ready summaries:
// time-bucketed aggregation, linear trends, service performance scores,
// node capacity, short-horizon predictions, anomalies and exports.
//
// The formulas are heuristics shown to operators verbatim. Their constants
// (0.1 slope threshold, 0.05 confidence decay, 0.1 confidence floor, the
// 95/70/80 alert thresholds) are part of the behaviour and are pinned by
// tests.
//
// The engine holds no state between calls apart from a short-lived,
// size-bounded aggregation cache keyed by the full query signature.

// HistorySource answers raw historical queries. The collector implements it.
type HistorySource interface {
	GetHistoricalData(ctx context.Context, measurement string, tags models.TagFilter, start, end time.Time) []models.Row
	TagValues(ctx context.Context, measurement, key string, start, end time.Time) []string
}

// Options tunes the engine.
type Options struct {
	CacheTTL           time.Duration
	CacheMaxEntries    int
	MaxServices        int
	DefaultGranularity time.Duration
}

// OptionsFromConfig maps the analytics config section onto Options.
func OptionsFromConfig(cfg config.AnalyticsConfig) Options {
	interval, _ := ResolveGranularity(cfg.DefaultGranularity)
	return Options{
		CacheTTL:           cfg.CacheTTL(),
		CacheMaxEntries:    cfg.CacheMaxEntries,
		MaxServices:        cfg.MaxServices,
		DefaultGranularity: interval,
	}
}

// Engine is the analytics engine.
type Engine struct {
	history HistorySource
	cache   *cache.TTLCache[[]Bucket]
	flight  singleflight.Group
	logger  *zap.Logger

	maxServices     int
	defaultInterval time.Duration
	now             func() time.Time
}

// NewEngine creates an analytics engine reading from history.
func NewEngine(history HistorySource, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.MaxServices <= 0 {
		opts.MaxServices = 10
	}
	if opts.DefaultGranularity <= 0 {
		opts.DefaultGranularity = DefaultGranularity
	}
	return &Engine{
		history:         history,
		cache:           cache.New[[]Bucket](opts.CacheTTL, opts.CacheMaxEntries),
		logger:          logger.Named("analytics"),
		maxServices:     opts.MaxServices,
		defaultInterval: opts.DefaultGranularity,
		now:             time.Now,
	}
}

// Close stops the cache sweeper.
func (e *Engine) Close() {
	e.cache.Stop()
}

// InvalidateCache drops every cached aggregation. Called after data is deleted.
func (e *Engine) InvalidateCache() {
	e.cache.Clear()
}

// CacheStats reports aggregation cache effectiveness.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// TimeRange resolves a duration token against the engine clock, logging
// and describing the fallback when the token is not understood.
func (e *Engine) TimeRange(token string) (start, end time.Time, warnings []string) {
	start, end, ok := ResolveTimeRange(token, e.now())
	if !ok {
		msg := fmt.Sprintf("unrecognised time range %q, using the last %s", token, DefaultTimeRange)
		e.logger.Warn("time range fallback", zap.String("token", token))
		warnings = append(warnings, msg)
	}
	return start, end, warnings
}

// Granularity resolves a bucket width token, logging the fallback.
func (e *Engine) Granularity(token string) (time.Duration, []string) {
	d, ok := ResolveGranularity(token)
	if !ok {
		e.logger.Warn("granularity fallback", zap.String("token", token))
		return d, []string{fmt.Sprintf("unrecognised granularity %q, using %s", token, DefaultGranularity)}
	}
	return d, nil
}
