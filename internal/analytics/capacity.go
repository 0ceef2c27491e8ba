package analytics

// Utilization classes.
const (
	UtilizationUnknown       = "unknown"
	UtilizationUnderutilized = "underutilized"
	UtilizationOptimal       = "optimal"
	UtilizationOverutilized  = "overutilized"
)

const (
	underutilizedBelow = 30.0
	overutilizedAbove  = 80.0
)

// NodeSeries holds the bucketed series of one node.
type NodeSeries struct {
	CPUCores     []Bucket `json:"cpu_cores"`
	MemoryBytes  []Bucket `json:"memory_bytes"`
	CPUUsage     []Bucket `json:"cpu_usage_percent"`
	MemoryUsage  []Bucket `json:"memory_usage_percent"`
	Availability []Bucket `json:"availability"`
}

// CapacityStats summarises one node's capacity over a window.
type CapacityStats struct {
	CPUCores          float64 `json:"cpu_cores"`
	MemoryBytes       float64 `json:"memory_bytes"`
	CPUUtilization    float64 `json:"cpu_utilization"`
	MemoryUtilization float64 `json:"memory_utilization"`
	Availability      float64 `json:"availability"`
	CapacityTrend     string  `json:"capacity_trend"`
	Utilization       string  `json:"utilization"`
}

// NodeCapacity reduces a node's series to means and a utilization class.
// Availability defaults to 100 when no status samples exist.
func NodeCapacity(s NodeSeries) CapacityStats {
	stats := CapacityStats{
		CPUCores:          mean(bucketValues(s.CPUCores)),
		MemoryBytes:       mean(bucketValues(s.MemoryBytes)),
		CPUUtilization:    mean(bucketValues(s.CPUUsage)),
		MemoryUtilization: mean(bucketValues(s.MemoryUsage)),
		Availability:      100,
		CapacityTrend:     InsufficientData,
		Utilization:       UtilizationUnknown,
	}

	if avail := bucketValues(s.Availability); len(avail) > 0 {
		stats.Availability = mean(avail) * 100
	}
	if t, err := Trend(s.CPUUsage); err == nil {
		stats.CapacityTrend = t.Direction
	}

	if len(bucketValues(s.CPUUsage)) > 0 || len(bucketValues(s.MemoryUsage)) > 0 {
		peak := stats.CPUUtilization
		if stats.MemoryUtilization > peak {
			peak = stats.MemoryUtilization
		}
		switch {
		case peak > overutilizedAbove:
			stats.Utilization = UtilizationOverutilized
		case peak < underutilizedBelow:
			stats.Utilization = UtilizationUnderutilized
		default:
			stats.Utilization = UtilizationOptimal
		}
	}
	return stats
}
