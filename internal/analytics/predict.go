package analytics

import (
	"math"
	"time"
)

// Prediction constants. These are heuristics kept exactly as published to
// dashboard users; tests pin them.
const (
	DefaultHorizon = 24
	DefaultStep    = time.Hour

	minPredictionSamples = 5
	maxPredictionWindow  = 10
	confidenceDecay      = 0.05
	confidenceFloor      = 0.1

	confidenceSamples    = 20
	minConfidenceSamples = 10
)

// PredictionPoint is one extrapolated value.
type PredictionPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	PredictedValue float64   `json:"predicted_value"`
	Confidence     float64   `json:"confidence"`
}

// Predict extrapolates the recent slope of series for horizon steps after
// its last bucket. It returns nil for fewer than five samples. Predicted
// values are clamped at zero, and confidence decays linearly per step down
// to a floor of 0.1.
func Predict(series []Bucket, step time.Duration, horizon int) []PredictionPoint {
	series = nonEmpty(series)
	if len(series) < minPredictionSamples {
		return nil
	}
	if step <= 0 {
		step = DefaultStep
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	window := len(series) / 2
	if window > maxPredictionWindow {
		window = maxPredictionWindow
	}
	recent := series[len(series)-window:]
	last := recent[len(recent)-1]
	delta := (last.Value - recent[0].Value) / float64(window)

	out := make([]PredictionPoint, 0, horizon)
	for i := 1; i <= horizon; i++ {
		out = append(out, PredictionPoint{
			Timestamp:      last.Timestamp.Add(time.Duration(i) * step),
			PredictedValue: math.Max(0, last.Value+delta*float64(i)),
			Confidence:     stepConfidence(i),
		})
	}
	return out
}

func stepConfidence(step int) float64 {
	return math.Max(confidenceFloor, 1-confidenceDecay*float64(step))
}

// PredictionConfidence scores how steady the trailing 20 samples are:
// max(0.1, 1 - min(1, cv)). A non-positive mean counts as cv=1, and fewer
// than ten samples give the floor.
func PredictionConfidence(series []Bucket) float64 {
	series = nonEmpty(series)
	if len(series) < minConfidenceSamples {
		return confidenceFloor
	}
	values := bucketValues(lastBuckets(series, confidenceSamples))
	m := mean(values)
	cv := 1.0
	if m > 0 {
		cv = sampleStdDev(values) / m
	}
	return math.Max(confidenceFloor, 1-math.Min(1, cv))
}
