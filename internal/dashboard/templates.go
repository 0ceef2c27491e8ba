package dashboard

import "github.com/kubilitics/kubilitics-metrics/internal/models"

// Template is a ready-made dashboard layout.
type Template struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	TimeRange   string        `json:"time_range"`
	Panels      []PanelConfig `json:"panels"`
}

// Templates returns the built-in dashboard templates.
func Templates() []Template {
	return []Template{
		{
			Name:        "cluster-overview",
			Description: "Container states, cluster resources and service health",
			TimeRange:   "24h",
			Panels: []PanelConfig{
				{Title: "Running containers", Type: PanelLine, Measurement: models.MeasurementSystemContainers, Tags: models.TagFilter{"state": "running"}},
				{Title: "CPU cores", Type: PanelGauge, Measurement: models.MeasurementSystemResources, Tags: models.TagFilter{"resource": "cpu"}},
				{Title: "Nodes", Type: PanelGauge, Measurement: models.MeasurementClusterInfo, Tags: models.TagFilter{"metric": "nodes"}},
				{Title: "Service health", Type: PanelBar, Measurement: models.MeasurementServiceHealth, Field: "healthy"},
			},
		},
		{
			Name:        "service-health",
			Description: "Replica counts and health score per service",
			TimeRange:   "24h",
			Panels: []PanelConfig{
				{Title: "Replicas", Type: PanelLine, Measurement: models.MeasurementServiceReplicas},
				{Title: "Health score", Type: PanelBar, Measurement: models.MeasurementServiceHealth, Field: "health_score"},
			},
		},
		{
			Name:        "node-capacity",
			Description: "Node utilization and readiness",
			TimeRange:   "7d",
			Panels: []PanelConfig{
				{Title: "CPU usage", Type: PanelBar, Measurement: models.MeasurementNodeResources, Field: "cpu_usage_percent"},
				{Title: "Memory usage", Type: PanelBar, Measurement: models.MeasurementNodeResources, Field: "memory_usage_percent"},
				{Title: "Node readiness", Type: PanelLine, Measurement: models.MeasurementNodeStatus},
			},
		},
	}
}
