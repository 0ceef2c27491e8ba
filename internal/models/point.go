package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Measurement names produced by the collector.
const (
	MeasurementSystemContainers = "system_containers"
	MeasurementSystemResources  = "system_resources"
	MeasurementClusterInfo      = "cluster_info"
	MeasurementServiceReplicas  = "service_replicas"
	MeasurementServiceHealth    = "service_health"
	MeasurementNodeResources    = "node_resources"
	MeasurementNodeStatus       = "node_status"
)

// AllMeasurements lists every measurement in collection order.
var AllMeasurements = []string{
	MeasurementSystemContainers,
	MeasurementSystemResources,
	MeasurementClusterInfo,
	MeasurementServiceReplicas,
	MeasurementServiceHealth,
	MeasurementNodeResources,
	MeasurementNodeStatus,
}

// MetricPoint is one observation of a measurement at a point in time.
// Points are never updated once written.
type MetricPoint struct {
	Measurement string             `json:"measurement"`
	Tags        map[string]string  `json:"tags"`
	Fields      map[string]float64 `json:"fields"`
	Timestamp   time.Time          `json:"timestamp"`
}

// NewPoint builds a point and normalises its timestamp to UTC.
func NewPoint(measurement string, tags map[string]string, fields map[string]float64, ts time.Time) MetricPoint {
	if tags == nil {
		tags = map[string]string{}
	}
	return MetricPoint{
		Measurement: measurement,
		Tags:        tags,
		Fields:      fields,
		Timestamp:   ts.UTC(),
	}
}

// Validate reports why a point cannot be stored.
func (p MetricPoint) Validate() error {
	if p.Measurement == "" {
		return fmt.Errorf("metric point: empty measurement")
	}
	if len(p.Fields) == 0 {
		return fmt.Errorf("metric point %s: no fields", p.Measurement)
	}
	if p.Timestamp.IsZero() {
		return fmt.Errorf("metric point %s: zero timestamp", p.Measurement)
	}
	return nil
}

// FieldNames returns the point's field names in sorted order.
func (p MetricPoint) FieldNames() []string {
	names := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Row is one (timestamp, field, value) triple returned by a storage query.
type Row struct {
	Timestamp time.Time         `json:"timestamp"`
	Field     string            `json:"field"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags"`
}

// Query selects the points of one measurement whose tags match Tags and whose
// timestamp lies in [Start, End], both ends inclusive.
type Query struct {
	Measurement string
	Tags        TagFilter
	Start       time.Time
	End         time.Time
}

// Covers reports whether ts falls inside the query range.
func (q Query) Covers(ts time.Time) bool {
	return !ts.Before(q.Start) && !ts.After(q.End)
}

// Rows expands a point into one row per field, ordered by field name.
func (p MetricPoint) Rows() []Row {
	rows := make([]Row, 0, len(p.Fields))
	for _, name := range p.FieldNames() {
		rows = append(rows, Row{
			Timestamp: p.Timestamp,
			Field:     name,
			Value:     p.Fields[name],
			Tags:      CopyTags(p.Tags),
		})
	}
	return rows
}

// TagFilter is an exact-match conjunction over tag values. Keys absent from
// the filter are unconstrained.
type TagFilter map[string]string

// Matches reports whether every key/value pair of f is present in tags.
func (f TagFilter) Matches(tags map[string]string) bool {
	for k, v := range f {
		if got, ok := tags[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// Key renders the filter deterministically, e.g. "node_id:n1_role:worker".
func (f TagFilter) Key() string {
	return JoinTags(f)
}

// JoinTags renders a tag set as sorted "k:v" pairs joined by "_".
func JoinTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+tags[k])
	}
	return strings.Join(parts, "_")
}

// CopyTags returns a shallow copy of tags that is safe to hand out.
func CopyTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
