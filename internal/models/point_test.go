package models

import (
	"testing"
	"time"
)

func TestTagFilterMatches(t *testing.T) {
	tags := map[string]string{"node_id": "n1", "role": "worker"}

	tests := []struct {
		name   string
		filter TagFilter
		want   bool
	}{
		{"empty filter matches everything", TagFilter{}, true},
		{"nil filter matches everything", nil, true},
		{"single key match", TagFilter{"node_id": "n1"}, true},
		{"conjunction match", TagFilter{"node_id": "n1", "role": "worker"}, true},
		{"value mismatch", TagFilter{"node_id": "n2"}, false},
		{"absent key", TagFilter{"service_id": "s1"}, false},
		{"partial conjunction", TagFilter{"node_id": "n1", "role": "manager"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tags); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJoinTagsIsSorted(t *testing.T) {
	got := JoinTags(map[string]string{"state": "running", "node": "a"})
	if got != "node:a_state:running" {
		t.Errorf("JoinTags = %q", got)
	}
	if JoinTags(nil) != "" {
		t.Errorf("JoinTags(nil) should be empty")
	}
}

func TestNewPointNormalisesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, loc)
	p := NewPoint(MeasurementNodeStatus, nil, map[string]float64{"ready": 1}, ts)

	if p.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp not UTC: %v", p.Timestamp.Location())
	}
	if !p.Timestamp.Equal(ts) {
		t.Errorf("instant changed: %v vs %v", p.Timestamp, ts)
	}
	if p.Tags == nil {
		t.Errorf("tags should default to an empty map")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	ts := time.Now()
	if err := (MetricPoint{Fields: map[string]float64{"v": 1}, Timestamp: ts}).Validate(); err == nil {
		t.Error("expected error for empty measurement")
	}
	if err := (MetricPoint{Measurement: "m", Timestamp: ts}).Validate(); err == nil {
		t.Error("expected error for missing fields")
	}
	if err := (MetricPoint{Measurement: "m", Fields: map[string]float64{"v": 1}}).Validate(); err == nil {
		t.Error("expected error for zero timestamp")
	}
}

func TestRowsExpandFieldsInOrder(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPoint("service_replicas", map[string]string{"service_id": "s1"},
		map[string]float64{"total": 3, "running": 2, "desired": 3}, ts)

	rows := p.Rows()
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	want := []string{"desired", "running", "total"}
	for i, r := range rows {
		if r.Field != want[i] {
			t.Errorf("row %d field = %s, want %s", i, r.Field, want[i])
		}
		if r.Tags["service_id"] != "s1" {
			t.Errorf("row %d lost tags", i)
		}
	}
	rows[0].Tags["service_id"] = "mutated"
	if p.Tags["service_id"] != "s1" {
		t.Error("rows must not alias the point's tag map")
	}
}

func TestQueryCoversIsInclusive(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	q := Query{Start: start, End: end}

	if !q.Covers(start) || !q.Covers(end) {
		t.Error("range must include both ends")
	}
	if q.Covers(start.Add(-time.Nanosecond)) || q.Covers(end.Add(time.Nanosecond)) {
		t.Error("range must exclude points outside")
	}
}
