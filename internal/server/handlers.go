package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-metrics/internal/audit"
	"github.com/kubilitics/kubilitics-metrics/internal/collector"
	"github.com/kubilitics/kubilitics-metrics/internal/models"
	"github.com/kubilitics/kubilitics-metrics/internal/storage"
)

// CollectRequest optionally restricts a manual collection run.
type CollectRequest struct {
	Measurements []string `json:"measurements,omitempty"`
}

// handleHealth — GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	b := s.backend()
	status := "healthy"
	resp := map[string]interface{}{
		"storage":   b.Name(),
		"cache":     s.deps.Analytics.CacheStats(),
		"timestamp": time.Now().UTC(),
	}
	if degraded, reason := storage.Degraded(b); degraded {
		status = "degraded"
		resp["note"] = fmt.Sprintf("storage degraded: %v", reason)
	} else if err := b.Ping(r.Context()); err != nil {
		status = "degraded"
		resp["note"] = err.Error()
	}
	resp["status"] = status
	jsonOK(w, resp)
}

// handleClusterMetrics — GET /metrics/cluster
//
// Serves the exposition registry of the prometheus storage backend.
func (s *Server) handleClusterMetrics(w http.ResponseWriter, r *http.Request) {
	h, ok := storage.ExpositionHandler(s.backend())
	if !ok {
		jsonError(w, http.StatusNotFound, fmt.Sprintf("storage backend %s has no exposition endpoint", s.backend().Name()))
		return
	}
	h.ServeHTTP(w, r)
}

// handleCollect — POST /api/v1/collect
//
// An empty body collects every measurement.
func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	var req CollectRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
			return
		}
	}

	start := time.Now()
	summary := s.deps.Collector.Collect(r.Context(), collector.CollectOptions{Measurements: req.Measurements})
	status := http.StatusOK
	result := audit.ResultSuccess
	if !summary.Success {
		status = http.StatusInternalServerError
		result = audit.ResultFailure
	} else if len(summary.Errors) > 0 {
		result = audit.ResultPartial
	}
	s.recordAudit(r, audit.NewEvent(audit.EventCollectionRun).
		WithCorrelationID(summary.RunID).
		WithResult(result).
		WithDuration(time.Since(start)).
		WithMetadata("collected", summary.MetricsCollected).
		WithMetadata("written", summary.Written))
	resp := map[string]interface{}{"summary": summary}
	if note := s.degradedNote(); note != "" {
		resp["note"] = note
	}
	writeJSON(w, status, resp)
}

// handleDeleteMetrics — DELETE /api/v1/metrics?days=N
//
// days defaults to the configured retention.
func (s *Server) handleDeleteMetrics(w http.ResponseWriter, r *http.Request) {
	days := s.retentionDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	deleted, err := s.deps.Collector.CleanupOldMetrics(r.Context(), days)
	s.recordAudit(r, audit.NewEvent(audit.EventRetentionDelete).
		WithMetadata("days", days).
		WithMetadata("deleted", deleted).
		WithError(err))
	if err != nil {
		s.logger.Error("cleanup failed", zap.Int("days", days), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.deps.Analytics.InvalidateCache()

	resp := map[string]interface{}{"deleted": deleted, "days": days}
	if note := s.degradedNote(); note != "" {
		resp["note"] = note
	}
	jsonOK(w, resp)
}

// handleHistory — GET /api/v1/metrics/history
//
//	Query params:
//	  measurement — required
//	  tags        — JSON object of exact-match tag filters (optional)
//	  range       — duration token such as 6h, 7d (default 24h)
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
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

	start, end, warnings := s.deps.Analytics.TimeRange(q.Get("range"))
	rows := s.deps.Collector.GetHistoricalData(r.Context(), measurement, tags, start, end)

	resp := map[string]interface{}{
		"measurement": measurement,
		"start_time":  start,
		"end_time":    end,
		"data":        rows,
		"count":       len(rows),
	}
	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	if note := s.degradedNote(); note != "" {
		resp["note"] = note
	}
	jsonOK(w, resp)
}

// handleServiceSummary — GET /api/v1/metrics/services/{id}/summary?hours=24
func (s *Server) handleServiceSummary(w http.ResponseWriter, r *http.Request) {
	hours := parseIntParam(r.URL.Query().Get("hours"), 24)
	if hours == 0 {
		hours = 24
	}
	jsonOK(w, s.deps.Collector.ServiceMetricsSummary(r.Context(), mux.Vars(r)["id"], hours))
}

// handleJobs — GET /api/v1/scheduler/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		jsonOK(w, map[string]interface{}{"jobs": []interface{}{}, "note": "scheduler disabled"})
		return
	}
	jsonOK(w, map[string]interface{}{"jobs": s.deps.Scheduler.Status()})
}

func parseTags(raw string) (models.TagFilter, error) {
	if raw == "" {
		return nil, nil
	}
	var tags models.TagFilter
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("tags must be a JSON object of strings: %v", err)
	}
	return tags, nil
}
