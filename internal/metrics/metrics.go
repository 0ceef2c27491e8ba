package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Self-instrumentation of the metrics service, served on /metrics.
var (
	// Collection metrics
	CollectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_metrics_collections_total",
			Help: "Total number of collection runs",
		},
		[]string{"status"}, // status: success/partial/failed
	)

	CollectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kubilitics_metrics_collection_duration_seconds",
			Help:    "Collection run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	PointsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_metrics_points_collected_total",
			Help: "Metric points produced by the collector",
		},
		[]string{"measurement"},
	)

	PointsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_metrics_points_written_total",
			Help: "Metric points accepted by the storage backend",
		},
		[]string{"backend"},
	)

	PointsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_metrics_points_deleted_total",
			Help: "Metric points removed by retention cleanup",
		},
		[]string{"backend"},
	)

	// Storage metrics
	BackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_metrics_backend_errors_total",
			Help: "Storage backend errors by operation",
		},
		[]string{"backend", "op"}, // op: write/query/delete
	)

	BackendQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubilitics_metrics_backend_query_duration_seconds",
			Help:    "Storage query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"backend"},
	)

	BackendDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kubilitics_metrics_backend_degraded",
			Help: "1 when the configured storage backend failed to initialise",
		},
	)

	// Observer metrics
	ObserverErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_metrics_observer_errors_total",
			Help: "Cluster observer snapshot failures",
		},
		[]string{"source"}, // source: system/services/nodes
	)

	// Analytics metrics
	AggregationCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kubilitics_metrics_aggregation_cache_hits_total",
			Help: "Aggregations answered from cache",
		},
	)

	AggregationCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kubilitics_metrics_aggregation_cache_misses_total",
			Help: "Aggregations computed from raw points",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_metrics_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kubilitics_metrics_stream_clients",
			Help: "Open dashboard stream connections",
		},
	)
)
