package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

// Report bucket widths and tails.
const (
	serviceGranularity   = 5 * time.Minute
	nodeResourceInterval = time.Hour
	nodeStatusInterval   = 5 * time.Minute
	predictionInterval   = time.Hour

	serviceTailBuckets    = 50
	predictionTailBuckets = 100
	minPredictionBuckets  = 10

	healthyScoreAtLeast = 80.0
	criticalScoreBelow  = 50.0
)

// Prediction metric types.
const (
	MetricResourceUsage = "resource_usage"
	MetricServiceHealth = "service_health"
)

// ErrUnknownMetricType is returned for an unsupported prediction metric.
var ErrUnknownMetricType = fmt.Errorf("unknown metric type")

// resourceSeries are the cluster-wide series tracked by the trends report.
var resourceSeries = []struct {
	name        string
	measurement string
	tags        models.TagFilter
	field       string
}{
	{"cpu", models.MeasurementSystemResources, models.TagFilter{"resource": "cpu"}, "cores"},
	{"memory", models.MeasurementSystemResources, models.TagFilter{"resource": "memory"}, "bytes"},
	{"cpu_usage", models.MeasurementNodeResources, nil, "cpu_usage_percent"},
	{"memory_usage", models.MeasurementNodeResources, nil, "memory_usage_percent"},
	{"running_containers", models.MeasurementSystemContainers, models.TagFilter{"state": "running"}, "value"},
}

// ─── Resource usage trends ──────────────────────────────────────────────────

// TrendsSummary rolls the per-resource trends up for the dashboard.
type TrendsSummary struct {
	OverallStatus   string   `json:"overall_status"`
	Alerts          []string `json:"alerts"`
	Recommendations []string `json:"recommendations"`
}

// ResourceTrendsReport is the cluster resource usage report.
type ResourceTrendsReport struct {
	TimeRange   string                `json:"time_range"`
	Granularity string                `json:"granularity"`
	Start       time.Time             `json:"start_time"`
	End         time.Time             `json:"end_time"`
	Data        map[string][]Bucket   `json:"data"`
	Trends      map[string]TrendEntry `json:"trends"`
	Anomalies   map[string][]Anomaly  `json:"anomalies"`
	Summary     TrendsSummary         `json:"summary"`
	Warnings    []string              `json:"warnings,omitempty"`
}

// ResourceUsageTrends aggregates every tracked cluster resource and
// computes its trend. Resources with no data are left out.
func (e *Engine) ResourceUsageTrends(ctx context.Context, timeRange, granularity string) ResourceTrendsReport {
	start, end, warnings := e.TimeRange(timeRange)
	interval, gw := e.Granularity(granularity)
	warnings = append(warnings, gw...)

	report := ResourceTrendsReport{
		TimeRange:   timeRange,
		Granularity: granularity,
		Start:       start,
		End:         end,
		Data:        map[string][]Bucket{},
		Trends:      map[string]TrendEntry{},
		Anomalies:   map[string][]Anomaly{},
		Summary:     TrendsSummary{OverallStatus: "healthy", Alerts: []string{}, Recommendations: []string{}},
		Warnings:    warnings,
	}

	for _, rs := range resourceSeries {
		buckets := e.Aggregate(ctx, AggregateQuery{
			Measurement: rs.measurement,
			Tags:        rs.tags,
			Field:       rs.field,
			Start:       start,
			End:         end,
			Interval:    interval,
		})
		if len(buckets) == 0 {
			continue
		}
		report.Data[rs.name] = buckets
		entry := trendEntry(buckets)
		report.Trends[rs.name] = entry
		report.Anomalies[rs.name] = DetectAnomalies(buckets, DefaultZScoreThreshold)

		if entry.Result == nil {
			continue
		}
		if alert, ok := UsageAlert(rs.name, *entry.Result); ok {
			report.Summary.Alerts = append(report.Summary.Alerts, alert)
			report.Summary.OverallStatus = "warning"
		}
	}
	return report
}

// ─── Service performance ────────────────────────────────────────────────────

// ServiceAnalysis is the performance analysis of one service.
type ServiceAnalysis struct {
	ReplicaData []Bucket         `json:"replica_data"`
	HealthData  []Bucket         `json:"health_data"`
	Stats       PerformanceStats `json:"stats"`
	Alerts      []string         `json:"alerts"`
	Anomalies   []Anomaly        `json:"anomalies"`
}

// ServiceReportSummary rolls services up.
type ServiceReportSummary struct {
	TotalServices    int      `json:"total_services"`
	HealthyServices  int      `json:"healthy_services"`
	HealthPercentage float64  `json:"health_percentage"`
	CriticalServices []string `json:"critical_services"`
}

// ServiceReport is the service performance report.
type ServiceReport struct {
	TimeRange string                     `json:"time_range"`
	Services  []string                   `json:"services"`
	Analysis  map[string]ServiceAnalysis `json:"analysis"`
	Summary   ServiceReportSummary       `json:"summary"`
	Warnings  []string                   `json:"warnings,omitempty"`
}

// ServicePerformanceAnalysis analyses serviceID, or when empty the first
// services seen in the window up to the configured limit.
func (e *Engine) ServicePerformanceAnalysis(ctx context.Context, serviceID, timeRange string) ServiceReport {
	start, end, warnings := e.TimeRange(timeRange)

	services := []string{serviceID}
	if serviceID == "" {
		services = e.history.TagValues(ctx, models.MeasurementServiceReplicas, "service_id", start, end)
	}
	if len(services) > e.maxServices {
		services = services[:e.maxServices]
	}

	report := ServiceReport{
		TimeRange: timeRange,
		Services:  []string{},
		Analysis:  make(map[string]ServiceAnalysis, len(services)),
		Summary:   ServiceReportSummary{CriticalServices: []string{}},
		Warnings:  warnings,
	}
	for _, id := range services {
		filter := models.TagFilter{"service_id": id}
		replicas := e.Aggregate(ctx, AggregateQuery{
			Measurement: models.MeasurementServiceReplicas, Tags: filter, Field: "running",
			Start: start, End: end, Interval: serviceGranularity,
		})
		health := e.Aggregate(ctx, AggregateQuery{
			Measurement: models.MeasurementServiceHealth, Tags: filter, Field: "healthy",
			Start: start, End: end, Interval: serviceGranularity,
		})
		stats := ServicePerformance(replicas, health)

		report.Services = append(report.Services, id)
		report.Analysis[id] = ServiceAnalysis{
			ReplicaData: lastBuckets(replicas, serviceTailBuckets),
			HealthData:  lastBuckets(health, serviceTailBuckets),
			Stats:       stats,
			Alerts:      ServiceAlerts(stats),
			Anomalies:   DetectAnomalies(replicas, DefaultZScoreThreshold),
		}

		if stats.PerformanceScore >= healthyScoreAtLeast {
			report.Summary.HealthyServices++
		}
		if stats.PerformanceScore < criticalScoreBelow {
			report.Summary.CriticalServices = append(report.Summary.CriticalServices, id)
		}
	}

	report.Summary.TotalServices = len(report.Services)
	if report.Summary.TotalServices > 0 {
		report.Summary.HealthPercentage = float64(report.Summary.HealthyServices) / float64(report.Summary.TotalServices) * 100
	}
	return report
}

// ─── Node capacity ──────────────────────────────────────────────────────────

// NodeAnalysis is the capacity analysis of one node.
type NodeAnalysis struct {
	Series          NodeSeries    `json:"series"`
	CapacityStats   CapacityStats `json:"capacity_stats"`
	Recommendations []string      `json:"recommendations"`
}

// ClusterSummary rolls nodes up.
type ClusterSummary struct {
	TotalNodes      int      `json:"total_nodes"`
	NodesStatus     string   `json:"nodes_status"`
	Recommendations []string `json:"recommendations"`
}

// NodeReport is the node capacity report.
type NodeReport struct {
	TimeRange      string                  `json:"time_range"`
	Nodes          map[string]NodeAnalysis `json:"nodes"`
	ClusterSummary ClusterSummary          `json:"cluster_summary"`
	Warnings       []string                `json:"warnings,omitempty"`
}

// NodeCapacityAnalysis analyses every node seen in the window.
func (e *Engine) NodeCapacityAnalysis(ctx context.Context, timeRange string) NodeReport {
	start, end, warnings := e.TimeRange(timeRange)
	nodes := e.history.TagValues(ctx, models.MeasurementNodeResources, "node_id", start, end)

	report := NodeReport{
		TimeRange: timeRange,
		Nodes:     make(map[string]NodeAnalysis, len(nodes)),
		ClusterSummary: ClusterSummary{
			NodesStatus:     "healthy",
			Recommendations: []string{"Regular capacity planning", "Monitor node health"},
		},
		Warnings: warnings,
	}

	var overloaded int
	for _, id := range nodes {
		filter := models.TagFilter{"node_id": id}
		resource := func(field string) []Bucket {
			return e.Aggregate(ctx, AggregateQuery{
				Measurement: models.MeasurementNodeResources, Tags: filter, Field: field,
				Start: start, End: end, Interval: nodeResourceInterval,
			})
		}
		availability := e.Aggregate(ctx, AggregateQuery{
			Measurement: models.MeasurementNodeStatus, Tags: filter, Field: "available",
			Start: start, End: end, Interval: nodeStatusInterval,
		})
		series := NodeSeries{
			CPUCores:     resource("cpu_cores"),
			MemoryBytes:  resource("memory_bytes"),
			CPUUsage:     resource("cpu_usage_percent"),
			MemoryUsage:  resource("memory_usage_percent"),
			Availability: availability,
		}
		stats := NodeCapacity(series)
		report.Nodes[id] = NodeAnalysis{
			Series:          series,
			CapacityStats:   stats,
			Recommendations: NodeRecommendations(stats),
		}
		if stats.Availability < 100 {
			report.ClusterSummary.NodesStatus = "degraded"
		}
		if stats.Utilization == UtilizationOverutilized {
			overloaded++
		}
	}

	report.ClusterSummary.TotalNodes = len(report.Nodes)
	if overloaded > 0 {
		report.ClusterSummary.Recommendations = append(report.ClusterSummary.Recommendations,
			fmt.Sprintf("%d node(s) overutilized, add capacity or rebalance workloads", overloaded))
	}
	return report
}

// ─── Prediction ─────────────────────────────────────────────────────────────

// PredictionReport is the predictive analytics report.
type PredictionReport struct {
	MetricType      string            `json:"metric_type"`
	TimeRange       string            `json:"time_range"`
	HistoricalData  []Bucket          `json:"historical_data"`
	Predictions     []PredictionPoint `json:"predictions"`
	Confidence      float64           `json:"confidence"`
	Recommendations []string          `json:"recommendations"`
	Anomalies       []Anomaly         `json:"anomalies"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// PredictiveAnalytics predicts the next 24 hours of metricType from hourly
// buckets. It needs at least ten buckets of history and returns
// ErrInsufficientData otherwise; the partial report still carries the
// history that was found.
func (e *Engine) PredictiveAnalytics(ctx context.Context, metricType, timeRange string) (PredictionReport, error) {
	q := AggregateQuery{Interval: predictionInterval}
	switch metricType {
	case MetricResourceUsage:
		q.Measurement, q.Field = models.MeasurementNodeResources, "cpu_usage_percent"
	case MetricServiceHealth:
		q.Measurement, q.Field = models.MeasurementServiceHealth, "healthy"
	default:
		return PredictionReport{}, fmt.Errorf("%w: %q", ErrUnknownMetricType, metricType)
	}

	start, end, warnings := e.TimeRange(timeRange)
	q.Start, q.End = start, end
	data := e.Aggregate(ctx, q)

	report := PredictionReport{
		MetricType:      metricType,
		TimeRange:       timeRange,
		HistoricalData:  lastBuckets(data, predictionTailBuckets),
		Predictions:     []PredictionPoint{},
		Recommendations: []string{},
		Anomalies:       []Anomaly{},
		Warnings:        warnings,
	}
	if len(data) < minPredictionBuckets {
		return report, fmt.Errorf("%w: need %d hourly buckets, have %d", ErrInsufficientData, minPredictionBuckets, len(data))
	}

	report.Predictions = Predict(data, predictionInterval, DefaultHorizon)
	report.Confidence = PredictionConfidence(data)
	report.Recommendations = PredictionRecommendations(report.Predictions)
	report.Anomalies = DetectAnomalies(data, DefaultZScoreThreshold)
	return report, nil
}
