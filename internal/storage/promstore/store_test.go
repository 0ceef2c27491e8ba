package promstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Namespace == "" {
		cfg.Namespace = "kubilitics"
	}
	s, err := New(cfg, nil)
	require.NoError(t, err)
	return s
}

func gaugeValue(t *testing.T, s *Store, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	families, err := s.Registry().Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if labelsMatch(m, labels) {
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	if len(m.GetLabel()) != len(want) {
		return false
	}
	for _, lp := range m.GetLabel() {
		if want[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}

func TestWriteSetsLatestGaugeValue(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	tags := map[string]string{"service_id": "s1", "service_name": "web"}
	_, err := s.Write(ctx, []models.MetricPoint{
		models.NewPoint("service_replicas", tags, map[string]float64{"running": 2, "desired": 3}, base),
		models.NewPoint("service_replicas", tags, map[string]float64{"running": 3, "desired": 3}, base.Add(time.Minute)),
	})
	require.NoError(t, err)

	v, ok := gaugeValue(t, s, "kubilitics_service_replicas_running", tags)
	require.True(t, ok)
	assert.Equal(t, 3.0, v)

	count, err := testutil.GatherAndCount(s.Registry())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestQueryFromBuffer(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	_, err := s.Write(ctx, []models.MetricPoint{
		models.NewPoint("node_status", map[string]string{"node_id": "n2"}, map[string]float64{"ready": 0}, base.Add(time.Minute)),
		models.NewPoint("node_status", map[string]string{"node_id": "n1"}, map[string]float64{"ready": 1}, base),
		models.NewPoint("node_status", map[string]string{"node_id": "n1"}, map[string]float64{"ready": 1}, base.Add(2*time.Minute)),
	})
	require.NoError(t, err)

	rows, err := s.Query(ctx, models.Query{
		Measurement: "node_status",
		Tags:        models.TagFilter{"node_id": "n1"},
		Start:       base,
		End:         base.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Timestamp.Equal(base))
	assert.True(t, rows[1].Timestamp.Equal(base.Add(2*time.Minute)))
	for _, r := range rows {
		assert.Equal(t, "n1", r.Tags["node_id"])
	}

	rows, err = s.Query(ctx, models.Query{Measurement: "unknown", Start: base, End: base})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBufferIsBounded(t *testing.T) {
	s := newTestStore(t, Config{BufferCapacity: 3})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Write(ctx, []models.MetricPoint{
			models.NewPoint("m", nil, map[string]float64{"v": float64(i)}, base.Add(time.Duration(i)*time.Second)),
		})
		require.NoError(t, err)
	}

	rows, err := s.Query(ctx, models.Query{Measurement: "m", Start: base, End: base.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 2.0, rows[0].Value, "oldest points are overwritten")
	assert.Equal(t, 4.0, rows[2].Value)
}

func TestLabelConflictSkipsGaugeOnly(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	n, err := s.Write(ctx, []models.MetricPoint{
		models.NewPoint("m", map[string]string{"a": "1"}, map[string]float64{"v": 1}, base),
		models.NewPoint("m", map[string]string{"b": "2"}, map[string]float64{"v": 2}, base.Add(time.Second)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok := gaugeValue(t, s, "kubilitics_m_v", map[string]string{"b": "2"})
	assert.False(t, ok)

	rows, err := s.Query(ctx, models.Query{Measurement: "m", Start: base, End: base.Add(time.Minute)})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestInvalidLabelValueDoesNotAbortBatch(t *testing.T) {
	s := newTestStore(t, Config{})
	ctx := context.Background()

	var (
		n   int
		err error
	)
	require.NotPanics(t, func() {
		n, err = s.Write(ctx, []models.MetricPoint{
			models.NewPoint("m", map[string]string{"k": "\xff"}, map[string]float64{"v": 1}, base),
			models.NewPoint("m", map[string]string{"k": "ok"}, map[string]float64{"v": 2}, base.Add(time.Second)),
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, ok := gaugeValue(t, s, "kubilitics_m_v", map[string]string{"k": "ok"})
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	done := make(chan []models.Row, 1)
	go func() {
		rows, _ := s.Query(ctx, models.Query{Measurement: "m", Start: base, End: base.Add(time.Minute)})
		done <- rows
	}()
	select {
	case rows := <-done:
		assert.Len(t, rows, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("query blocked after write")
	}
}

func TestHandlerExposesGauges(t *testing.T) {
	s := newTestStore(t, Config{})
	_, err := s.Write(context.Background(), []models.MetricPoint{
		models.NewPoint("cluster_info", map[string]string{"metric": "nodes"}, map[string]float64{"value": 3}, base),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `kubilitics_cluster_info_value{metric="nodes"} 3`)
}

func TestPushgateway(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	s := newTestStore(t, Config{PushgatewayURL: gw.URL, Job: "collector"})
	_, err := s.Write(context.Background(), []models.MetricPoint{
		models.NewPoint("m", nil, map[string]float64{"v": 1}, base),
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.True(t, strings.HasPrefix(paths[0], "PUT /metrics/job/collector"), paths[0])
}

func TestInvalidPushgatewayURL(t *testing.T) {
	_, err := New(Config{PushgatewayURL: "gateway:9091"}, nil)
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "node_resources", sanitize("node_resources"))
	assert.Equal(t, "cpu_usage_percent", sanitize("cpu.usage-percent"))
	assert.Equal(t, "_5m", sanitize("5m"))
}

func TestDeleteOlderThanIsNoop(t *testing.T) {
	s := newTestStore(t, Config{})
	n, err := s.DeleteOlderThan(context.Background(), base)
	require.NoError(t, err)
	assert.Zero(t, n)
}
