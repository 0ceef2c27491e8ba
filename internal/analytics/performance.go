package analytics

// Replica stability classes.
const (
	StabilityStable   = "stable"
	StabilityUnstable = "unstable"
)

// replicaStdDevLimit is the replica standard deviation above which a
// service counts as unstable.
const replicaStdDevLimit = 1.0

// PerformanceStats scores one service over a window.
type PerformanceStats struct {
	UptimePercentage float64 `json:"uptime_percentage"`
	AvgReplicas      float64 `json:"avg_replicas"`
	ReplicaStability string  `json:"replica_stability"`
	// PerformanceScore is a heuristic composite in [0, 100], not a
	// calibrated metric.
	PerformanceScore float64 `json:"performance_score"`
}

// Stable reports whether the replica count held steady.
func (p PerformanceStats) Stable() bool {
	return p.ReplicaStability == StabilityStable
}

// ServicePerformance scores a service from its running-replica and health
// buckets. Uptime is the mean health sample across the window, weighted by
// each bucket's sample count so buckets of different density agree with
// the raw mean.
func ServicePerformance(replicas, health []Bucket) PerformanceStats {
	stats := PerformanceStats{ReplicaStability: StabilityStable}

	var healthSum float64
	var healthCount int
	for _, b := range health {
		healthSum += b.Value * float64(b.Count)
		healthCount += b.Count
	}
	if healthCount > 0 {
		stats.UptimePercentage = healthSum / float64(healthCount) * 100
	}

	values := bucketValues(replicas)
	if len(values) > 0 {
		stats.AvgReplicas = mean(values)
		if sampleStdDev(values) > replicaStdDevLimit {
			stats.ReplicaStability = StabilityUnstable
		}
	}

	stabilityScore := 100.0
	if !stats.Stable() {
		stabilityScore = 50
	}
	score := (stats.UptimePercentage + stabilityScore) / 2
	if score > 100 {
		score = 100
	}
	stats.PerformanceScore = score
	return stats
}
