package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kubilitics/kubilitics-metrics/internal/dashboard"
)

// DashboardRequest asks for panel data. Template, when set, supplies the
// panels and the default time range.
type DashboardRequest struct {
	Template  string                  `json:"template,omitempty"`
	Panels    []dashboard.PanelConfig `json:"panels,omitempty"`
	TimeRange string                  `json:"time_range,omitempty"`
}

// resolve fills panels from the named template.
func (req *DashboardRequest) resolve() error {
	if req.Template != "" {
		tpl, ok := findTemplate(req.Template)
		if !ok {
			return fmt.Errorf("unknown template %q", req.Template)
		}
		if len(req.Panels) == 0 {
			req.Panels = tpl.Panels
		}
		if req.TimeRange == "" {
			req.TimeRange = tpl.TimeRange
		}
	}
	if len(req.Panels) == 0 {
		return fmt.Errorf("at least one panel is required")
	}
	if req.TimeRange == "" {
		req.TimeRange = "1h"
	}
	return nil
}

func findTemplate(name string) (dashboard.Template, bool) {
	for _, t := range dashboard.Templates() {
		if t.Name == name {
			return t, true
		}
	}
	return dashboard.Template{}, false
}

// handleDashboardData — POST /api/v1/dashboards/data
func (s *Server) handleDashboardData(w http.ResponseWriter, r *http.Request) {
	var req DashboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if err := req.resolve(); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := map[string]interface{}{
		"dashboard": s.deps.Dashboards.GetDashboardData(r.Context(), req.Panels, req.TimeRange),
	}
	s.withNote(resp)
	jsonOK(w, resp)
}

// handleDashboardTemplates — GET /api/v1/dashboards/templates
func (s *Server) handleDashboardTemplates(w http.ResponseWriter, r *http.Request) {
	templates := dashboard.Templates()
	jsonOK(w, map[string]interface{}{"templates": templates, "count": len(templates)})
}
