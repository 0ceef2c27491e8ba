package collector

import (
	"time"

	"github.com/kubilitics/kubilitics-metrics/internal/models"
	"github.com/kubilitics/kubilitics-metrics/internal/observer"
)

func systemPoints(snap observer.SystemSnapshot, ts time.Time) []models.MetricPoint {
	points := []models.MetricPoint{
		containerPoint("total", snap.Containers.Total, ts),
		containerPoint("running", snap.Containers.Running, ts),
		containerPoint("stopped", snap.Containers.Stopped, ts),
		containerPoint("paused", snap.Containers.Paused, ts),
	}

	// Resource totals the source did not report are skipped, not zeroed.
	if snap.CPUCores > 0 {
		points = append(points, models.NewPoint(models.MeasurementSystemResources,
			map[string]string{"resource": "cpu"},
			map[string]float64{"cores": snap.CPUCores}, ts))
	}
	if snap.MemoryBytes > 0 {
		points = append(points, models.NewPoint(models.MeasurementSystemResources,
			map[string]string{"resource": "memory"},
			map[string]float64{"bytes": snap.MemoryBytes}, ts))
	}

	if snap.Nodes > 0 {
		points = append(points,
			models.NewPoint(models.MeasurementClusterInfo,
				map[string]string{"metric": "nodes"},
				map[string]float64{"value": float64(snap.Nodes)}, ts),
			models.NewPoint(models.MeasurementClusterInfo,
				map[string]string{"metric": "managers"},
				map[string]float64{"value": float64(snap.Managers)}, ts),
		)
	}
	return points
}

func containerPoint(state string, n int, ts time.Time) models.MetricPoint {
	return models.NewPoint(models.MeasurementSystemContainers,
		map[string]string{"state": state},
		map[string]float64{"value": float64(n)}, ts)
}

func servicePoints(services []observer.ServiceDescriptor, ts time.Time) []models.MetricPoint {
	points := make([]models.MetricPoint, 0, 2*len(services))
	for _, svc := range services {
		tags := map[string]string{
			"service_id":   svc.ID,
			"service_name": svc.Name,
		}
		points = append(points, models.NewPoint(models.MeasurementServiceReplicas,
			tags,
			map[string]float64{
				"running": float64(svc.Running),
				"total":   float64(svc.Total),
				"desired": float64(svc.Desired),
			}, ts))

		healthy := 0.0
		if svc.Healthy() {
			healthy = 1
		}
		score := 0.0
		if svc.Desired > 0 {
			score = float64(svc.Running) / float64(svc.Desired)
		}
		points = append(points, models.NewPoint(models.MeasurementServiceHealth,
			models.CopyTags(tags),
			map[string]float64{
				"healthy":      healthy,
				"health_score": score,
			}, ts))
	}
	return points
}

func nodePoints(nodes []observer.NodeDescriptor, ts time.Time) []models.MetricPoint {
	points := make([]models.MetricPoint, 0, 2*len(nodes))
	for _, n := range nodes {
		tags := map[string]string{
			"node_id":  n.ID,
			"hostname": n.Hostname,
			"role":     n.Role,
		}
		resources := map[string]float64{
			"cpu_cores":    n.CPUCores,
			"memory_bytes": n.MemoryBytes,
		}
		if n.CPUUsagePercent != nil {
			resources["cpu_usage_percent"] = *n.CPUUsagePercent
		}
		if n.MemoryUsagePercent != nil {
			resources["memory_usage_percent"] = *n.MemoryUsagePercent
		}
		points = append(points,
			models.NewPoint(models.MeasurementNodeResources, tags, resources, ts),
			models.NewPoint(models.MeasurementNodeStatus, models.CopyTags(tags), map[string]float64{
				"ready":     boolValue(n.Ready),
				"available": boolValue(n.Available),
			}, ts),
		)
	}
	return points
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
