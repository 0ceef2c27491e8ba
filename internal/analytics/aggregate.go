package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-metrics/internal/metrics"
	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

// maxDenseBuckets caps zero-filled output for very wide ranges.
const maxDenseBuckets = 10000

// Bucket is the aggregate of every raw value in
// [Timestamp, Timestamp+interval). Dense output includes empty buckets with
// Count 0.
type Bucket struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Count     int       `json:"count"`
}

// AggregateQuery selects the raw rows to bucket.
type AggregateQuery struct {
	Measurement string
	Tags        models.TagFilter
	// Field restricts aggregation to one field; empty aggregates every field.
	Field    string
	Start    time.Time
	End      time.Time
	Interval time.Duration
	Dense    bool
}

func (q AggregateQuery) key() string {
	return fmt.Sprintf("%s|%s|%s|%d|%d|%d|%t",
		q.Measurement, q.Tags.Key(), q.Field,
		q.Start.UnixNano(), q.End.UnixNano(), int64(q.Interval), q.Dense)
}

// Aggregate buckets the rows selected by q. Results are cached for the
// engine's cache TTL under the full query signature, and concurrent
// identical misses share one backend read.
func (e *Engine) Aggregate(ctx context.Context, q AggregateQuery) []Bucket {
	if q.Interval <= 0 {
		q.Interval = e.defaultInterval
	}
	q.Start, q.End = q.Start.UTC(), q.End.UTC()
	key := q.key()

	if cached, ok := e.cache.Get(key); ok {
		metrics.AggregationCacheHits.Inc()
		return cloneBuckets(cached)
	}

	// The read is shared by every waiter on key, so one caller going away
	// must not cancel it. The history source applies its own timeout.
	shared := context.WithoutCancel(ctx)
	v, _, _ := e.flight.Do(key, func() (interface{}, error) {
		metrics.AggregationCacheMisses.Inc()
		rows := e.history.GetHistoricalData(shared, q.Measurement, q.Tags, q.Start, q.End)
		buckets := aggregateRows(rows, q.Field, q.Start, q.End, q.Interval, q.Dense)
		if len(rows) > 0 {
			e.cache.Set(key, buckets)
		}
		e.logger.Debug("aggregated",
			zap.String("measurement", q.Measurement),
			zap.String("tags", q.Tags.Key()),
			zap.Int("rows", len(rows)),
			zap.Int("buckets", len(buckets)))
		return buckets, nil
	})
	return cloneBuckets(v.([]Bucket))
}

// aggregateRows tiles [start, end) with interval-wide buckets. Rows outside
// the range, or of another field when field is set, are ignored.
func aggregateRows(rows []models.Row, field string, start, end time.Time, interval time.Duration, dense bool) []Bucket {
	if interval <= 0 || !start.Before(end) {
		return []Bucket{}
	}

	type acc struct {
		sum, min, max float64
		count         int
	}
	accs := make(map[int64]*acc)
	for _, r := range rows {
		if field != "" && r.Field != field {
			continue
		}
		if r.Timestamp.Before(start) || !r.Timestamp.Before(end) {
			continue
		}
		i := int64(r.Timestamp.Sub(start) / interval)
		a, ok := accs[i]
		if !ok {
			a = &acc{min: math.Inf(1), max: math.Inf(-1)}
			accs[i] = a
		}
		a.sum += r.Value
		a.min = math.Min(a.min, r.Value)
		a.max = math.Max(a.max, r.Value)
		a.count++
	}

	var indexes []int64
	if dense {
		n := int64(end.Sub(start) / interval)
		if end.Sub(start)%interval != 0 {
			n++
		}
		if n > maxDenseBuckets {
			n = maxDenseBuckets
		}
		indexes = make([]int64, n)
		for i := range indexes {
			indexes[i] = int64(i)
		}
	} else {
		indexes = make([]int64, 0, len(accs))
		for i := range accs {
			indexes = append(indexes, i)
		}
		sort.Slice(indexes, func(a, b int) bool { return indexes[a] < indexes[b] })
	}

	out := make([]Bucket, 0, len(indexes))
	for _, i := range indexes {
		b := Bucket{Timestamp: start.Add(time.Duration(i) * interval)}
		if a, ok := accs[i]; ok {
			b.Value = a.sum / float64(a.count)
			b.Min = a.min
			b.Max = a.max
			b.Count = a.count
		}
		out = append(out, b)
	}
	return out
}

func cloneBuckets(in []Bucket) []Bucket {
	out := make([]Bucket, len(in))
	copy(out, in)
	return out
}

func lastBuckets(in []Bucket, n int) []Bucket {
	if len(in) <= n {
		return in
	}
	return in[len(in)-n:]
}
