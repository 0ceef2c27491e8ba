package server

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-metrics/internal/analytics"
	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

func TestAggregate(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	do(t, srv, http.MethodPost, "/api/v1/collect", nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/analytics/aggregate?measurement=system_containers&field=value&range=1h&granularity=1m&tags="+url.QueryEscape(`{"state":"running"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "1m0s", body["granularity"])
	buckets := body["buckets"].([]interface{})
	require.Len(t, buckets, 1)
	assert.Equal(t, float64(2), buckets[0].(map[string]interface{})["value"])

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/v1/analytics/aggregate", nil).Code)

	body = decodeJSON(t, do(t, srv, http.MethodGet, "/api/v1/analytics/aggregate?measurement=m&granularity=often", nil))
	assert.Len(t, body["warnings"], 1)
}

func TestReports(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	do(t, srv, http.MethodPost, "/api/v1/collect", nil)

	for _, path := range []string{
		"/api/v1/analytics/trends?range=1h&granularity=1m",
		"/api/v1/analytics/services?range=1h",
		"/api/v1/analytics/services/svc-1?range=1h",
		"/api/v1/analytics/nodes?range=1h",
	} {
		rec := do(t, srv, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, decodeJSON(t, rec), "report", path)
	}

	body := decodeJSON(t, do(t, srv, http.MethodGet, "/api/v1/analytics/services/svc-1?range=1h", nil))
	services := body["report"].(map[string]interface{})["services"].([]interface{})
	assert.Equal(t, []interface{}{"svc-1"}, services)
}

func TestPredict(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/analytics/predict?metric_type=disk", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/analytics/predict?metric_type="+analytics.MetricServiceHealth, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Contains(t, body["note"], "not enough history")
	assert.Empty(t, body["report"].(map[string]interface{})["predictions"])
}

func TestExportJSONAndCSV(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	do(t, srv, http.MethodPost, "/api/v1/collect", nil)

	req := analytics.ExportRequest{Measurements: []string{models.MeasurementSystemContainers}}
	rec := do(t, srv, http.MethodPost, "/api/v1/analytics/export", req)
	require.Equal(t, http.StatusOK, rec.Code)
	export := decodeJSON(t, rec)["export"].(map[string]interface{})
	assert.Equal(t, analytics.FormatJSON, export["format"])
	assert.Equal(t, float64(4), export["total_points"])

	req.Format = analytics.FormatCSV
	rec = do(t, srv, http.MethodPost, "/api/v1/analytics/export", req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment;")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# "+models.MeasurementSystemContainers))

	req.Format = "xml"
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/v1/analytics/export", req).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/v1/analytics/export", analytics.ExportRequest{}).Code)
}

func TestDeleteInvalidatesAggregationCache(t *testing.T) {
	srv := newTestServer(t, testConfig(), nil)
	do(t, srv, http.MethodPost, "/api/v1/collect", nil)
	do(t, srv, http.MethodGet, "/api/v1/analytics/aggregate?measurement=system_containers&range=1h", nil)
	require.Positive(t, srv.deps.Analytics.CacheStats().Entries)

	do(t, srv, http.MethodDelete, "/api/v1/metrics?days=1", nil)
	assert.Zero(t, srv.deps.Analytics.CacheStats().Entries)
}
