package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/kubilitics/kubilitics-metrics/internal/analytics"
	"github.com/kubilitics/kubilitics-metrics/internal/audit"
)

// ─── Analytics Endpoints ──────────────────────────────────────────────────────
//
// GET  /api/v1/analytics/aggregate      — bucketed series of one measurement
// GET  /api/v1/analytics/trends         — cluster resource usage trends
// GET  /api/v1/analytics/services[/id]  — service performance analysis
// GET  /api/v1/analytics/nodes          — node capacity analysis
// GET  /api/v1/analytics/predict        — 24h prediction
// POST /api/v1/analytics/export         — raw data export (json | csv)

// handleAggregate — GET /api/v1/analytics/aggregate
//
//	Query params:
//	  measurement — required
//	  field       — restrict to one field (optional)
//	  tags        — JSON tag filter (optional)
//	  range       — default 24h
//	  granularity — bucket width, default 5m
//	  dense       — include empty buckets
func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	measurement := q.Get("measurement")
	if measurement == "" {
		jsonError(w, http.StatusBadRequest, "measurement is required")
		return
	}
	tags, err := parseTags(q.Get("tags"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	dense, _ := strconv.ParseBool(q.Get("dense"))

	start, end, warnings := s.deps.Analytics.TimeRange(q.Get("range"))
	interval, gw := s.deps.Analytics.Granularity(q.Get("granularity"))
	warnings = append(warnings, gw...)

	buckets := s.deps.Analytics.Aggregate(r.Context(), analytics.AggregateQuery{
		Measurement: measurement,
		Tags:        tags,
		Field:       q.Get("field"),
		Start:       start,
		End:         end,
		Interval:    interval,
		Dense:       dense,
	})

	resp := map[string]interface{}{
		"measurement": measurement,
		"field":       q.Get("field"),
		"start_time":  start,
		"end_time":    end,
		"granularity": interval.String(),
		"buckets":     buckets,
		"count":       len(buckets),
	}
	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	s.withNote(resp)
	jsonOK(w, resp)
}

// handleTrends — GET /api/v1/analytics/trends?range=&granularity=
func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report := s.deps.Analytics.ResourceUsageTrends(r.Context(), q.Get("range"), q.Get("granularity"))
	s.respondReport(w, report)
}

// handleServices — GET /api/v1/analytics/services[/{id}]?range=
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Analytics.ServicePerformanceAnalysis(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("range"))
	s.respondReport(w, report)
}

// handleNodes — GET /api/v1/analytics/nodes?range=
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Analytics.NodeCapacityAnalysis(r.Context(), r.URL.Query().Get("range"))
	s.respondReport(w, report)
}

// handlePredict — GET /api/v1/analytics/predict?metric_type=&range=
//
// Too little history is not an error: the report comes back with no
// predictions and a note.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metricType := q.Get("metric_type")
	if metricType == "" {
		metricType = analytics.MetricResourceUsage
	}
	timeRange := q.Get("range")
	if timeRange == "" {
		timeRange = "7d"
	}

	report, err := s.deps.Analytics.PredictiveAnalytics(r.Context(), metricType, timeRange)
	switch {
	case errors.Is(err, analytics.ErrUnknownMetricType):
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, analytics.ErrInsufficientData):
		jsonOK(w, map[string]interface{}{
			"report": report,
			"note":   "not enough history to predict: at least 10 hourly buckets are needed",
		})
		return
	case err != nil:
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondReport(w, report)
}

// handleExport — POST /api/v1/analytics/export
//
// CSV exports are returned as a text/csv attachment, JSON exports inline.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req analytics.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	result, err := s.deps.Analytics.Export(r.Context(), req)
	s.recordAudit(r, audit.NewEvent(audit.EventExport).
		WithMetadata("measurements", req.Measurements).
		WithMetadata("format", req.Format).
		WithMetadata("points", result.TotalPoints).
		WithError(err))
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if result.Format == analytics.FormatCSV {
		name := fmt.Sprintf("metrics-export-%s.csv", time.Now().UTC().Format("20060102-150405"))
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(result.CombinedCSV()))
		return
	}
	resp := map[string]interface{}{"export": result}
	s.withNote(resp)
	jsonOK(w, resp)
}

func (s *Server) respondReport(w http.ResponseWriter, report interface{}) {
	resp := map[string]interface{}{"report": report}
	s.withNote(resp)
	jsonOK(w, resp)
}

func (s *Server) withNote(resp map[string]interface{}) {
	if note := s.degradedNote(); note != "" {
		resp["note"] = note
	}
}
