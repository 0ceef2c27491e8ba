package analytics

import (
	"fmt"
	"math"
	"time"
)

// Anomaly kinds.
const (
	AnomalySpike    = "spike"
	AnomalyDrop     = "drop"
	AnomalyFlapping = "flapping"
)

// DefaultZScoreThreshold flags values more than three standard deviations
// from the window mean.
const DefaultZScoreThreshold = 3.0

const (
	minAnomalySamples  = 3
	minFlappingSamples = 5
	flappingRate       = 0.3
)

// Anomaly is a statistically unusual bucket.
type Anomaly struct {
	Type        string    `json:"type"`
	Severity    string    `json:"severity"` // critical, high, medium, low
	Timestamp   time.Time `json:"timestamp"`
	Value       float64   `json:"value"`
	Expected    float64   `json:"expected"`
	ZScore      float64   `json:"z_score"`
	Description string    `json:"description"`
}

// Statistics describes the distribution of a bucketed series.
type Statistics struct {
	Count            int     `json:"count"`
	Mean             float64 `json:"mean"`
	Median           float64 `json:"median"`
	StdDev           float64 `json:"std_dev"`
	Min              float64 `json:"min"`
	Max              float64 `json:"max"`
	P95              float64 `json:"p95"`
	P99              float64 `json:"p99"`
	CoefficientOfVar float64 `json:"coefficient_of_variation"`
}

// Describe computes distribution statistics over the non-empty buckets.
// The standard deviation here is the population one, matching the z-score
// detector.
func Describe(series []Bucket) Statistics {
	values := bucketValues(series)
	if len(values) == 0 {
		return Statistics{}
	}
	sorted := sortedCopy(values)
	m := mean(values)
	std := populationStdDev(values, m)
	cv := 0.0
	if m != 0 {
		cv = std / math.Abs(m)
	}
	return Statistics{
		Count:            len(values),
		Mean:             m,
		Median:           percentile(sorted, 50),
		StdDev:           std,
		Min:              sorted[0],
		Max:              sorted[len(sorted)-1],
		P95:              percentile(sorted, 95),
		P99:              percentile(sorted, 99),
		CoefficientOfVar: cv,
	}
}

func populationStdDev(values []float64, m float64) float64 {
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(values)))
}

// DetectAnomalies flags buckets whose z-score exceeds threshold, plus one
// flapping anomaly when the series oscillates. Fewer than three samples or
// a flat series yield none.
func DetectAnomalies(series []Bucket, threshold float64) []Anomaly {
	series = nonEmpty(series)
	anomalies := []Anomaly{}
	if len(series) < minAnomalySamples {
		return anomalies
	}
	if threshold <= 0 {
		threshold = DefaultZScoreThreshold
	}

	stats := Describe(series)
	if stats.StdDev > 0 {
		for _, b := range series {
			z := (b.Value - stats.Mean) / stats.StdDev
			if math.Abs(z) <= threshold {
				continue
			}
			kind := AnomalySpike
			if z < 0 {
				kind = AnomalyDrop
			}
			anomalies = append(anomalies, Anomaly{
				Type:      kind,
				Severity:  severity(math.Abs(z), threshold),
				Timestamp: b.Timestamp,
				Value:     b.Value,
				Expected:  stats.Mean,
				ZScore:    z,
				Description: fmt.Sprintf("%s detected: value %.2f is %.2f standard deviations from mean %.2f",
					kind, b.Value, math.Abs(z), stats.Mean),
			})
		}
	}

	if a, ok := detectFlapping(series, stats.Mean); ok {
		anomalies = append(anomalies, a)
	}
	return anomalies
}

func severity(z, threshold float64) string {
	ratio := z / threshold
	switch {
	case ratio > 2.0:
		return "critical"
	case ratio > 1.5:
		return "high"
	case ratio > 1.0:
		return "medium"
	}
	return "low"
}

// detectFlapping counts local extrema; more than 30% of points being turns
// means the series is oscillating.
func detectFlapping(series []Bucket, expected float64) (Anomaly, bool) {
	if len(series) < minFlappingSamples {
		return Anomaly{}, false
	}
	turns := 0
	for i := 1; i < len(series)-1; i++ {
		prev, cur, next := series[i-1].Value, series[i].Value, series[i+1].Value
		if (cur > prev && cur > next) || (cur < prev && cur < next) {
			turns++
		}
	}
	rate := float64(turns) / float64(len(series))
	if rate <= flappingRate {
		return Anomaly{}, false
	}
	last := series[len(series)-1]
	return Anomaly{
		Type:        AnomalyFlapping,
		Severity:    "medium",
		Timestamp:   last.Timestamp,
		Value:       last.Value,
		Expected:    expected,
		Description: fmt.Sprintf("Flapping detected: %.1f%% of buckets change direction", rate*100),
	}, true
}
