package analytics

import (
	"errors"
)

// ErrInsufficientData marks a statistic that cannot be computed from the
// samples given. It is distinct from a valid zero result.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientData is the marker reports carry in place of a statistic.
const InsufficientData = "insufficient_data"

// Trend directions.
const (
	DirectionIncreasing = "increasing"
	DirectionDecreasing = "decreasing"
	DirectionStable     = "stable"
)

// slopeThreshold is the per-bucket slope beyond which a series is trending.
const slopeThreshold = 0.1

// TrendResult summarises a bucketed series. Slope is in value per bucket
// index, so it does not depend on the granularity.
type TrendResult struct {
	Direction string  `json:"direction"`
	Slope     float64 `json:"slope"`
	Current   float64 `json:"current"`
	Average   float64 `json:"average"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	StdDev    float64 `json:"std_dev"`
}

// Trend fits an ordinary least squares line through the bucket values
// against their ordinal index. Empty dense buckets are skipped.
func Trend(buckets []Bucket) (TrendResult, error) {
	values := bucketValues(buckets)
	if len(values) < 2 {
		return TrendResult{}, ErrInsufficientData
	}

	slope := olsSlope(values)
	direction := DirectionStable
	switch {
	case slope > slopeThreshold:
		direction = DirectionIncreasing
	case slope < -slopeThreshold:
		direction = DirectionDecreasing
	}

	lo, hi := minMax(values)
	return TrendResult{
		Direction: direction,
		Slope:     slope,
		Current:   values[len(values)-1],
		Average:   mean(values),
		Min:       lo,
		Max:       hi,
		StdDev:    sampleStdDev(values),
	}, nil
}

// TrendEntry is a trend as reported: Status is "ok" or insufficient_data.
type TrendEntry struct {
	Status string       `json:"status"`
	Result *TrendResult `json:"result,omitempty"`
}

func trendEntry(buckets []Bucket) TrendEntry {
	t, err := Trend(buckets)
	if err != nil {
		return TrendEntry{Status: InsufficientData}
	}
	return TrendEntry{Status: "ok", Result: &t}
}
