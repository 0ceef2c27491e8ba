package analytics

import "fmt"

// Advisory strings shown to operators as-is.
const (
	AlertLowUptime          = "Low uptime detected"
	AlertReplicaFluctuation = "Replica count fluctuating"
	AlertPoorPerformance    = "Poor overall performance"
	RecommendScaling        = "Consider scaling resources in the next 12 hours"
)

const (
	lowUptimeBelow        = 95.0
	poorPerformanceBelow  = 70.0
	scalingThreshold      = 80.0
	scalingLookaheadSteps = 12
	usageSpikeFactor      = 1.5
)

// ServiceAlerts derives advisory alerts from a service's stats.
func ServiceAlerts(s PerformanceStats) []string {
	alerts := []string{}
	if s.UptimePercentage < lowUptimeBelow {
		alerts = append(alerts, AlertLowUptime)
	}
	if !s.Stable() {
		alerts = append(alerts, AlertReplicaFluctuation)
	}
	if s.PerformanceScore < poorPerformanceBelow {
		alerts = append(alerts, AlertPoorPerformance)
	}
	return alerts
}

// PredictionRecommendations flags predictions that exceed 80 within the
// first 12 steps.
func PredictionRecommendations(predictions []PredictionPoint) []string {
	recs := []string{}
	for i, p := range predictions {
		if i >= scalingLookaheadSteps {
			break
		}
		if p.PredictedValue > scalingThreshold {
			recs = append(recs, RecommendScaling)
			break
		}
	}
	return recs
}

// UsageAlert reports a rising resource whose latest value is well above
// its window average.
func UsageAlert(resource string, t TrendResult) (string, bool) {
	if t.Direction == DirectionIncreasing && t.Current > t.Average*usageSpikeFactor {
		return fmt.Sprintf("High %s usage detected", resource), true
	}
	return "", false
}

// NodeRecommendations derives advice from a node's capacity stats.
func NodeRecommendations(c CapacityStats) []string {
	recs := []string{"Monitor resource utilization trends"}
	switch c.Utilization {
	case UtilizationOverutilized:
		recs = append(recs, "Consider load balancing: utilization consistently high")
	case UtilizationUnderutilized:
		recs = append(recs, "Node is underutilized, consider consolidating workloads")
	}
	if c.CapacityTrend == DirectionIncreasing {
		recs = append(recs, "CPU utilization is rising, plan additional capacity")
	}
	if c.Availability < 100 {
		recs = append(recs, fmt.Sprintf("Investigate availability drops (%.1f%% available)", c.Availability))
	}
	return recs
}
