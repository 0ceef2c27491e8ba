package analytics

import (
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeHistory serves points from memory the way a storage backend would.
type fakeHistory struct {
	mu     sync.Mutex
	points []models.MetricPoint
	calls  atomic.Int64
}

func (f *fakeHistory) add(p ...models.MetricPoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p...)
}

func (f *fakeHistory) GetHistoricalData(ctx context.Context, measurement string, tags models.TagFilter, start, end time.Time) []models.Row {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	q := models.Query{Measurement: measurement, Tags: tags, Start: start, End: end}
	rows := []models.Row{}
	for _, p := range f.points {
		if p.Measurement == measurement && tags.Matches(p.Tags) && q.Covers(p.Timestamp) {
			rows = append(rows, p.Rows()...)
		}
	}
	return rows
}

func (f *fakeHistory) TagValues(ctx context.Context, measurement, key string, start, end time.Time) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range f.GetHistoricalData(ctx, measurement, nil, start, end) {
		if v, ok := r.Tags[key]; ok && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func newTestEngine(t *testing.T, h HistorySource) *Engine {
	t.Helper()
	e := NewEngine(h, Options{}, nil)
	e.now = func() time.Time { return now }
	t.Cleanup(e.Close)
	return e
}

func series(values ...float64) []Bucket {
	out := make([]Bucket, len(values))
	for i, v := range values {
		out[i] = Bucket{Timestamp: now.Add(time.Duration(i) * time.Hour), Value: v, Min: v, Max: v, Count: 1}
	}
	return out
}

// ─── Duration tokens ──────────────────────────────────────────────────────────

func TestResolveTimeRange(t *testing.T) {
	tests := []struct {
		token  string
		want   time.Duration
		wantOK bool
	}{
		{"1h", time.Hour, true},
		{"36h", 36 * time.Hour, true},
		{"7d", 7 * 24 * time.Hour, true},
		{"2w", 14 * 24 * time.Hour, true},
		{"", 24 * time.Hour, false},
		{"bogus", 24 * time.Hour, false},
		{"10m", 24 * time.Hour, false},
		{"0h", 24 * time.Hour, false},
		{"-3d", 24 * time.Hour, false},
		{"d", 24 * time.Hour, false},
		{"9999999999h", 24 * time.Hour, false},
		{"99999999999w", 24 * time.Hour, false},
		{"2562047h", 2562047 * time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			start, end, ok := ResolveTimeRange(tt.token, now)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, now, end)
			assert.Equal(t, tt.want, end.Sub(start))
		})
	}
}

func TestResolveGranularity(t *testing.T) {
	tests := []struct {
		token  string
		want   time.Duration
		wantOK bool
	}{
		{"1m", time.Minute, true},
		{"15m", 15 * time.Minute, true},
		{"1h", time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 5 * time.Minute, false},
		{"fast", 5 * time.Minute, false},
		{"", 5 * time.Minute, false},
		{"99999999999999m", 5 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := ResolveGranularity(tt.token)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngineTimeRangeWarns(t *testing.T) {
	e := newTestEngine(t, &fakeHistory{})
	_, _, warnings := e.TimeRange("soon")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "soon")

	_, _, warnings = e.TimeRange("6h")
	assert.Empty(t, warnings)
}

// ─── Aggregation ──────────────────────────────────────────────────────────────

func rowsAt(field string, offsets []time.Duration, values []float64) []models.Row {
	rows := make([]models.Row, len(offsets))
	for i := range offsets {
		rows[i] = models.Row{Timestamp: now.Add(offsets[i]), Field: field, Value: values[i]}
	}
	return rows
}

func TestAggregateRowsBoundaries(t *testing.T) {
	rows := rowsAt("v",
		[]time.Duration{0, 4 * time.Minute, 5 * time.Minute, 14*time.Minute + 59*time.Second, 15 * time.Minute, -time.Second},
		[]float64{1, 3, 10, 20, 99, 99})

	buckets := aggregateRows(rows, "", now, now.Add(15*time.Minute), 5*time.Minute, false)
	require.Len(t, buckets, 3)

	assert.Equal(t, now, buckets[0].Timestamp)
	assert.Equal(t, 2.0, buckets[0].Value)
	assert.Equal(t, 1.0, buckets[0].Min)
	assert.Equal(t, 3.0, buckets[0].Max)
	assert.Equal(t, 2, buckets[0].Count)

	assert.Equal(t, 10.0, buckets[1].Value, "a point on a boundary opens the next bucket")
	assert.Equal(t, 20.0, buckets[2].Value)
	for i := 1; i < len(buckets); i++ {
		assert.Equal(t, buckets[i-1].Timestamp.Add(5*time.Minute), buckets[i].Timestamp)
	}
}

func TestAggregateRowsDropsEmptyBuckets(t *testing.T) {
	rows := rowsAt("v", []time.Duration{0, 20 * time.Minute}, []float64{1, 2})

	sparse := aggregateRows(rows, "", now, now.Add(30*time.Minute), 5*time.Minute, false)
	require.Len(t, sparse, 2)
	assert.Equal(t, now.Add(20*time.Minute), sparse[1].Timestamp)

	dense := aggregateRows(rows, "", now, now.Add(30*time.Minute), 5*time.Minute, true)
	require.Len(t, dense, 6)
	assert.Zero(t, dense[1].Count)
	for i := 1; i < len(dense); i++ {
		assert.Equal(t, dense[i-1].Timestamp.Add(5*time.Minute), dense[i].Timestamp)
	}
}

func TestAggregateRowsFieldFilter(t *testing.T) {
	rows := append(rowsAt("a", []time.Duration{0}, []float64{1}), rowsAt("b", []time.Duration{0}, []float64{9})...)
	buckets := aggregateRows(rows, "a", now, now.Add(time.Hour), time.Hour, false)
	require.Len(t, buckets, 1)
	assert.Equal(t, 1.0, buckets[0].Value)
}

func TestAggregateCaches(t *testing.T) {
	h := &fakeHistory{}
	h.add(models.NewPoint("m", map[string]string{"node_id": "n1"}, map[string]float64{"v": 1}, now.Add(-time.Minute)))
	e := newTestEngine(t, h)

	q := AggregateQuery{Measurement: "m", Tags: models.TagFilter{"node_id": "n1"}, Start: now.Add(-time.Hour), End: now}
	first := e.Aggregate(context.Background(), q)
	second := e.Aggregate(context.Background(), q)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), h.calls.Load())

	second[0].Value = 42
	third := e.Aggregate(context.Background(), q)
	assert.Equal(t, 1.0, third[0].Value, "cached buckets are not shared with callers")

	q.Tags = models.TagFilter{"node_id": "n2"}
	assert.Empty(t, e.Aggregate(context.Background(), q))
	assert.Equal(t, int64(2), h.calls.Load())
}

// ctxHistory records whether the context it was queried with was already done.
type ctxHistory struct {
	*fakeHistory
	sawErr error
}

func (c *ctxHistory) GetHistoricalData(ctx context.Context, measurement string, tags models.TagFilter, start, end time.Time) []models.Row {
	c.sawErr = ctx.Err()
	return c.fakeHistory.GetHistoricalData(ctx, measurement, tags, start, end)
}

func TestAggregateIgnoresCallerCancellation(t *testing.T) {
	h := &ctxHistory{fakeHistory: &fakeHistory{}}
	h.add(models.NewPoint("m", nil, map[string]float64{"v": 7}, now.Add(-time.Minute)))
	e := newTestEngine(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buckets := e.Aggregate(ctx, AggregateQuery{Measurement: "m", Start: now.Add(-time.Hour), End: now})
	assert.NoError(t, h.sawErr)
	require.Len(t, buckets, 1)
	assert.Equal(t, 7.0, buckets[0].Value)
}

func TestAggregateTagIsolation(t *testing.T) {
	h := &fakeHistory{}
	h.add(
		models.NewPoint("m", map[string]string{"node_id": "n1"}, map[string]float64{"v": 1}, now.Add(-time.Minute)),
		models.NewPoint("m", map[string]string{"node_id": "n2"}, map[string]float64{"v": 100}, now.Add(-time.Minute)),
	)
	e := newTestEngine(t, h)

	buckets := e.Aggregate(context.Background(), AggregateQuery{
		Measurement: "m", Tags: models.TagFilter{"node_id": "n1"}, Start: now.Add(-time.Hour), End: now,
	})
	require.Len(t, buckets, 1)
	assert.Equal(t, 1.0, buckets[0].Max)
}

// ─── Trend ────────────────────────────────────────────────────────────────────

func TestTrendDirections(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   string
	}{
		{"increasing", []float64{10, 20, 30, 40, 50}, DirectionIncreasing},
		{"decreasing", []float64{50, 40, 30, 20, 10}, DirectionDecreasing},
		{"flat", []float64{30, 30, 30, 30, 30}, DirectionStable},
		{"below threshold", []float64{1, 1.05, 1.1, 1.15}, DirectionStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Trend(series(tt.values...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Direction)
		})
	}
}

func TestTrendStatistics(t *testing.T) {
	got, err := Trend(series(10, 20, 30, 40, 50))
	require.NoError(t, err)
	assert.InDelta(t, 10.0, got.Slope, 1e-9)
	assert.Equal(t, 50.0, got.Current)
	assert.Equal(t, 30.0, got.Average)
	assert.Equal(t, 10.0, got.Min)
	assert.Equal(t, 50.0, got.Max)
	assert.InDelta(t, 15.8113883, got.StdDev, 1e-6)
}

func TestTrendInsufficientData(t *testing.T) {
	_, err := Trend(series(42))
	assert.True(t, errors.Is(err, ErrInsufficientData))

	_, err = Trend(nil)
	assert.True(t, errors.Is(err, ErrInsufficientData))

	entry := trendEntry(series(42))
	assert.Equal(t, InsufficientData, entry.Status)
	assert.Nil(t, entry.Result)
}

// ─── Service performance ──────────────────────────────────────────────────────

func TestUptimeScenario(t *testing.T) {
	h := &fakeHistory{}
	tags := map[string]string{"service_id": "s1"}
	for i, healthy := range []float64{1, 1, 1, 1, 0} {
		h.add(models.NewPoint(models.MeasurementServiceHealth, tags,
			map[string]float64{"healthy": healthy}, now.Add(-time.Duration(i+1)*time.Hour)))
	}
	e := newTestEngine(t, h)

	report := e.ServicePerformanceAnalysis(context.Background(), "s1", "24h")
	require.Contains(t, report.Analysis, "s1")
	stats := report.Analysis["s1"].Stats
	assert.InDelta(t, 80.0, stats.UptimePercentage, 1e-9)
	assert.Equal(t, StabilityStable, stats.ReplicaStability)
	assert.InDelta(t, 90.0, stats.PerformanceScore, 1e-9)
	assert.Equal(t, []string{AlertLowUptime}, report.Analysis["s1"].Alerts)
}

func TestServicePerformanceWeightsByCount(t *testing.T) {
	health := []Bucket{
		{Value: 1, Count: 4},
		{Value: 0, Count: 1},
	}
	stats := ServicePerformance(nil, health)
	assert.InDelta(t, 80.0, stats.UptimePercentage, 1e-9)
}

func TestServicePerformanceUnstable(t *testing.T) {
	stats := ServicePerformance(series(1, 5, 1, 5), series(1, 1, 1, 1))
	assert.Equal(t, StabilityUnstable, stats.ReplicaStability)
	assert.Equal(t, 3.0, stats.AvgReplicas)
	assert.InDelta(t, 75.0, stats.PerformanceScore, 1e-9)
	assert.Equal(t, []string{AlertReplicaFluctuation}, ServiceAlerts(stats))
}

func TestServicePerformanceNoData(t *testing.T) {
	stats := ServicePerformance(nil, nil)
	assert.Zero(t, stats.UptimePercentage)
	assert.InDelta(t, 50.0, stats.PerformanceScore, 1e-9)
	assert.Equal(t, []string{AlertLowUptime, AlertPoorPerformance}, ServiceAlerts(stats))
}

func TestServicePerformanceAnalysisLimitsServices(t *testing.T) {
	h := &fakeHistory{}
	for i := 0; i < 12; i++ {
		id := string(rune('a' + i))
		h.add(models.NewPoint(models.MeasurementServiceReplicas, map[string]string{"service_id": id},
			map[string]float64{"running": 1}, now.Add(-time.Duration(i+1)*time.Minute)))
	}
	e := newTestEngine(t, h)

	report := e.ServicePerformanceAnalysis(context.Background(), "", "1h")
	assert.Equal(t, 10, report.Summary.TotalServices)
	assert.Len(t, report.Analysis, 10)
	assert.Zero(t, report.Summary.HealthyServices, "no health samples scores 50")
	assert.Empty(t, report.Summary.CriticalServices)
}

// ─── Node capacity ────────────────────────────────────────────────────────────

func TestNodeCapacity(t *testing.T) {
	stats := NodeCapacity(NodeSeries{
		CPUUsage:     series(85, 90, 95),
		MemoryUsage:  series(40, 40, 40),
		Availability: series(1, 1, 0, 1),
	})
	assert.InDelta(t, 90.0, stats.CPUUtilization, 1e-9)
	assert.Equal(t, UtilizationOverutilized, stats.Utilization)
	assert.InDelta(t, 75.0, stats.Availability, 1e-9)
	assert.Equal(t, DirectionIncreasing, stats.CapacityTrend)

	recs := NodeRecommendations(stats)
	assert.Contains(t, recs, "Consider load balancing: utilization consistently high")
}

func TestNodeCapacityNoUsage(t *testing.T) {
	stats := NodeCapacity(NodeSeries{CPUCores: series(4)})
	assert.Equal(t, UtilizationUnknown, stats.Utilization)
	assert.Equal(t, 100.0, stats.Availability)
	assert.Equal(t, InsufficientData, stats.CapacityTrend)
	assert.Equal(t, 4.0, stats.CPUCores)
}

// ─── Prediction ───────────────────────────────────────────────────────────────

func TestPredictConstantSeries(t *testing.T) {
	in := series(7, 7, 7, 7, 7, 7, 7, 7, 7, 7)
	preds := Predict(in, time.Hour, DefaultHorizon)
	require.Len(t, preds, 24)

	last := in[len(in)-1].Timestamp
	for i, p := range preds {
		assert.Equal(t, 7.0, p.PredictedValue)
		assert.Equal(t, last.Add(time.Duration(i+1)*time.Hour), p.Timestamp)
		assert.GreaterOrEqual(t, p.Confidence, 0.1)
		if i > 0 {
			assert.LessOrEqual(t, p.Confidence, preds[i-1].Confidence)
		}
	}
	assert.InDelta(t, 0.95, preds[0].Confidence, 1e-9)
	// Confidence falls 0.05 per step until it reaches the floor at step 18.
	for i := 1; i < 18; i++ {
		assert.Less(t, preds[i].Confidence, preds[i-1].Confidence)
	}
	assert.Equal(t, 0.1, preds[17].Confidence)
	assert.Equal(t, 0.1, preds[23].Confidence)
}

func TestPredictLinearAndClamped(t *testing.T) {
	// window = min(10, 12/2) = 6; delta = (12-7)/6
	up := Predict(series(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12), time.Hour, 3)
	require.Len(t, up, 3)
	assert.InDelta(t, 12+5.0/6, up[0].PredictedValue, 1e-9)

	down := Predict(series(50, 40, 30, 20, 10, 5), time.Hour, DefaultHorizon)
	require.Len(t, down, 24)
	assert.Equal(t, 0.0, down[23].PredictedValue)
}

func TestPredictNeedsFiveSamples(t *testing.T) {
	assert.Empty(t, Predict(series(1, 2, 3, 4), time.Hour, DefaultHorizon))
}

func TestPredictionConfidence(t *testing.T) {
	assert.Equal(t, 0.1, PredictionConfidence(series(1, 2, 3)), "fewer than ten samples")

	steady := make([]float64, 25)
	for i := range steady {
		steady[i] = 50
	}
	assert.InDelta(t, 1.0, PredictionConfidence(series(steady...)), 1e-9)

	zeros := make([]float64, 12)
	assert.Equal(t, 0.1, PredictionConfidence(series(zeros...)), "non-positive mean is maximal uncertainty")
}

func TestPredictionRecommendations(t *testing.T) {
	preds := make([]PredictionPoint, 24)
	assert.Empty(t, PredictionRecommendations(preds))

	preds[12].PredictedValue = 95
	assert.Empty(t, PredictionRecommendations(preds), "only the next 12 steps count")

	preds[11].PredictedValue = 81
	assert.Equal(t, []string{RecommendScaling}, PredictionRecommendations(preds))
}

func TestPredictiveAnalytics(t *testing.T) {
	h := &fakeHistory{}
	for i := 0; i < 12; i++ {
		h.add(models.NewPoint(models.MeasurementNodeResources, map[string]string{"node_id": "n1"},
			map[string]float64{"cpu_usage_percent": 60 + float64(i)*2}, now.Add(-time.Duration(12-i)*time.Hour)))
	}
	e := newTestEngine(t, h)

	report, err := e.PredictiveAnalytics(context.Background(), MetricResourceUsage, "1d")
	require.NoError(t, err)
	assert.Len(t, report.Predictions, 24)
	assert.Equal(t, []string{RecommendScaling}, report.Recommendations)
	assert.Greater(t, report.Confidence, 0.1)

	_, err = e.PredictiveAnalytics(context.Background(), MetricServiceHealth, "1d")
	assert.True(t, errors.Is(err, ErrInsufficientData))

	_, err = e.PredictiveAnalytics(context.Background(), "disk", "1d")
	assert.True(t, errors.Is(err, ErrUnknownMetricType))
}

// ─── Alerts ───────────────────────────────────────────────────────────────────

func TestUsageAlert(t *testing.T) {
	msg, ok := UsageAlert("cpu", TrendResult{Direction: DirectionIncreasing, Current: 16, Average: 10})
	assert.True(t, ok)
	assert.Equal(t, "High cpu usage detected", msg)

	_, ok = UsageAlert("cpu", TrendResult{Direction: DirectionIncreasing, Current: 15, Average: 10})
	assert.False(t, ok)

	_, ok = UsageAlert("cpu", TrendResult{Direction: DirectionStable, Current: 50, Average: 10})
	assert.False(t, ok)
}

func TestResourceUsageTrends(t *testing.T) {
	h := &fakeHistory{}
	for i, v := range []float64{1, 1, 1, 1, 10} {
		h.add(models.NewPoint(models.MeasurementSystemResources, map[string]string{"resource": "cpu"},
			map[string]float64{"cores": v}, now.Add(-time.Duration(5-i)*time.Hour)))
	}
	h.add(models.NewPoint(models.MeasurementSystemResources, map[string]string{"resource": "memory"},
		map[string]float64{"bytes": 1e9}, now.Add(-time.Hour)))
	e := newTestEngine(t, h)

	report := e.ResourceUsageTrends(context.Background(), "1d", "1h")
	assert.Empty(t, report.Warnings)
	require.Contains(t, report.Trends, "cpu")
	assert.Equal(t, DirectionIncreasing, report.Trends["cpu"].Result.Direction)
	assert.Equal(t, InsufficientData, report.Trends["memory"].Status)
	assert.NotContains(t, report.Data, "cpu_usage", "resources without data are omitted")
	assert.Equal(t, "warning", report.Summary.OverallStatus)
	assert.Equal(t, []string{"High cpu usage detected"}, report.Summary.Alerts)
}

// ─── Anomalies ────────────────────────────────────────────────────────────────

func TestDetectAnomaliesSpike(t *testing.T) {
	anomalies := DetectAnomalies(series(10, 10, 10, 10, 10, 10, 10, 10, 10, 100), 2.0)
	require.NotEmpty(t, anomalies)
	assert.Equal(t, AnomalySpike, anomalies[0].Type)
	assert.Equal(t, 100.0, anomalies[0].Value)
}

func TestDetectAnomaliesFlatAndShort(t *testing.T) {
	assert.Empty(t, DetectAnomalies(series(5, 5, 5, 5, 5), 2.0))
	assert.Empty(t, DetectAnomalies(series(1, 100), 2.0))
}

func TestDetectFlapping(t *testing.T) {
	anomalies := DetectAnomalies(series(1, 9, 1, 9, 1, 9, 1, 9), 10)
	require.Len(t, anomalies, 1)
	assert.Equal(t, AnomalyFlapping, anomalies[0].Type)
}

// ─── Export ───────────────────────────────────────────────────────────────────

func TestExportCSV(t *testing.T) {
	h := &fakeHistory{}
	for i := 0; i < 3; i++ {
		h.add(models.NewPoint("m", nil, map[string]float64{"a": 1, "b": 2}, now.Add(-time.Duration(i+1)*time.Hour)))
	}
	e := newTestEngine(t, h)

	result, err := e.Export(context.Background(), ExportRequest{Measurements: []string{"m"}, Format: FormatCSV})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalPoints)

	records, err := csv.NewReader(strings.NewReader(result.Data["m"].CSV)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"a", "b"}, records[0])
	for _, row := range records[1:] {
		assert.Equal(t, []string{"1", "2"}, row)
	}

	assert.True(t, strings.HasPrefix(result.CombinedCSV(), "# m\na,b\n"))
}

func TestExportKeepsDuplicateTimestamps(t *testing.T) {
	h := &fakeHistory{}
	tags := map[string]string{"service_id": "s1", "service_name": "web"}
	ts := now.Add(-time.Hour)
	for _, v := range []float64{1, 1, 1, 1, 0} {
		h.add(models.NewPoint(models.MeasurementServiceHealth, tags, map[string]float64{"healthy": v}, ts))
	}
	e := newTestEngine(t, h)

	result, err := e.Export(context.Background(), ExportRequest{
		Measurements: []string{models.MeasurementServiceHealth},
		Format:       FormatCSV,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, result.TotalPoints)
	assert.Equal(t, "healthy\n1\n1\n1\n1\n0\n", result.Data[models.MeasurementServiceHealth].CSV)
}

func TestPivotRowsSplitsRepeatedFields(t *testing.T) {
	ts := now.Add(-time.Hour)
	var rows []models.Row
	for _, v := range []float64{1, 2} {
		rows = append(rows, models.NewPoint("m", nil, map[string]float64{"a": v, "b": v * 10}, ts).Rows()...)
	}
	records := PivotRows(rows)
	require.Len(t, records, 2)
	assert.Equal(t, map[string]float64{"a": 1, "b": 10}, records[0].Fields)
	assert.Equal(t, map[string]float64{"a": 2, "b": 20}, records[1].Fields)
}

func TestRecordsToCSVMissingFields(t *testing.T) {
	text, err := RecordsToCSV([]Record{
		{Fields: map[string]float64{"b": 2, "a": 1.5}},
		{Fields: map[string]float64{"a": 3}},
		{Fields: map[string]float64{"c": 9}},
	})
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1.5,2\n3,\n,\n", text)

	empty, err := RecordsToCSV(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestExportJSONAndErrors(t *testing.T) {
	h := &fakeHistory{}
	h.add(models.NewPoint("m", map[string]string{"k": "v"}, map[string]float64{"a": 1, "b": 2}, now.Add(-time.Hour)))
	e := newTestEngine(t, h)

	result, err := e.Export(context.Background(), ExportRequest{Measurements: []string{"m", "empty"}})
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, result.Format)
	assert.Equal(t, 1, result.TotalPoints)
	require.Len(t, result.Data["m"].Records, 1)
	assert.Equal(t, map[string]float64{"a": 1, "b": 2}, result.Data["m"].Records[0].Fields)
	assert.Equal(t, now.Add(-7*24*time.Hour), result.Start)

	_, err = e.Export(context.Background(), ExportRequest{Measurements: []string{"m"}, Format: "xml"})
	assert.Error(t, err)

	_, err = e.Export(context.Background(), ExportRequest{})
	assert.Error(t, err)
}
