package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

// downtimeSampleMinutes is the downtime charged for each unhealthy sample.
const downtimeSampleMinutes = 5

// ReplicaSummary aggregates the running replica count of a service.
type ReplicaSummary struct {
	DataPoints int     `json:"data_points"`
	AvgRunning float64 `json:"avg_running"`
	MinRunning float64 `json:"min_running"`
	MaxRunning float64 `json:"max_running"`
}

// HealthSummary aggregates the health samples of a service.
type HealthSummary struct {
	DataPoints       int     `json:"data_points"`
	UptimePercentage float64 `json:"uptime_percentage"`
	DowntimeMinutes  int     `json:"downtime_minutes"`
}

// ServiceSummary is the per-service overview served to the dashboard.
type ServiceSummary struct {
	ServiceID string         `json:"service_id"`
	TimeRange string         `json:"time_range"`
	Replicas  ReplicaSummary `json:"replica_metrics"`
	Health    HealthSummary  `json:"health_metrics"`
}

// ServiceMetricsSummary summarises the last hours of one service.
func (c *Collector) ServiceMetricsSummary(ctx context.Context, serviceID string, hours int) ServiceSummary {
	if hours <= 0 {
		hours = 24
	}
	end := c.now()
	start := end.Add(-time.Duration(hours) * time.Hour)
	filter := models.TagFilter{"service_id": serviceID}

	replicaRows := c.GetHistoricalData(ctx, models.MeasurementServiceReplicas, filter, start, end)
	healthRows := c.GetHistoricalData(ctx, models.MeasurementServiceHealth, filter, start, end)

	summary := ServiceSummary{
		ServiceID: serviceID,
		TimeRange: fmt.Sprintf("%d hours", hours),
		Replicas:  ReplicaSummary{DataPoints: len(replicaRows)},
		Health:    HealthSummary{DataPoints: len(healthRows)},
	}

	running := fieldValues(replicaRows, "running")
	if len(running) > 0 {
		minV, maxV, sum := running[0], running[0], 0.0
		for _, v := range running {
			sum += v
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
		summary.Replicas.AvgRunning = sum / float64(len(running))
		summary.Replicas.MinRunning = minV
		summary.Replicas.MaxRunning = maxV
	}

	healthy := fieldValues(healthRows, "healthy")
	if len(healthy) > 0 {
		sum, down := 0.0, 0
		for _, v := range healthy {
			sum += v
			if v == 0 {
				down++
			}
		}
		summary.Health.UptimePercentage = sum / float64(len(healthy)) * 100
		summary.Health.DowntimeMinutes = down * downtimeSampleMinutes
	}
	return summary
}

func fieldValues(rows []models.Row, field string) []float64 {
	var out []float64
	for _, r := range rows {
		if r.Field == field {
			out = append(out, r.Value)
		}
	}
	return out
}
