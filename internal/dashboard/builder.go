package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubilitics/kubilitics-metrics/internal/analytics"
	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

// Panel kinds.
const (
	PanelLine  = "line"
	PanelBar   = "bar"
	PanelGauge = "gauge"
)

// maxConcurrentPanels bounds the backend reads of one dashboard refresh.
const maxConcurrentPanels = 4

// HistorySource answers raw historical queries.
type HistorySource interface {
	GetHistoricalData(ctx context.Context, measurement string, tags models.TagFilter, start, end time.Time) []models.Row
}

// PanelConfig declares one panel.
type PanelConfig struct {
	Title       string           `json:"title,omitempty"`
	Type        string           `json:"type"`
	Measurement string           `json:"measurement"`
	Tags        models.TagFilter `json:"tags,omitempty"`
	// Field restricts the panel to one field; empty keeps every field.
	Field string `json:"field,omitempty"`
}

// SeriesPoint is one chart coordinate.
type SeriesPoint struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}

// Series is one named line.
type Series struct {
	Name string        `json:"name"`
	Data []SeriesPoint `json:"data"`
}

// Bar is the average value of one tag combination.
type Bar struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// Panel is a shaped panel. Which payload field is set depends on Type;
// Formatted is false when the type is unknown and Raw carries the rows.
type Panel struct {
	Type      string       `json:"type"`
	Title     string       `json:"title"`
	Formatted bool         `json:"formatted"`
	Series    []Series     `json:"series,omitempty"`
	Bars      []Bar        `json:"bars,omitempty"`
	Value     *float64     `json:"value,omitempty"`
	Timestamp *time.Time   `json:"timestamp,omitempty"`
	Raw       []models.Row `json:"raw,omitempty"`
	Config    PanelConfig  `json:"config"`
}

// Dashboard is the data of every requested panel, in request order.
type Dashboard struct {
	TimeRange   string    `json:"time_range"`
	GeneratedAt time.Time `json:"generated_at"`
	Panels      []Panel   `json:"panels"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// Builder shapes historical data for dashboard panels.
type Builder struct {
	history HistorySource
	logger  *zap.Logger
	now     func() time.Time
}

// NewBuilder creates a dashboard builder.
func NewBuilder(history HistorySource, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{history: history, logger: logger.Named("dashboard"), now: time.Now}
}

// GetDashboardData fetches and shapes every panel over timeRange.
func (b *Builder) GetDashboardData(ctx context.Context, panels []PanelConfig, timeRange string) Dashboard {
	start, end, ok := analytics.ResolveTimeRange(timeRange, b.now())
	dash := Dashboard{
		TimeRange:   timeRange,
		GeneratedAt: end,
		Panels:      make([]Panel, len(panels)),
	}
	if !ok {
		b.logger.Warn("time range fallback", zap.String("token", timeRange))
		dash.Warnings = append(dash.Warnings, "unrecognised time range \""+timeRange+"\", using the last 24h")
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentPanels)
	for i, cfg := range panels {
		i, cfg := i, cfg
		g.Go(func() error {
			rows := b.history.GetHistoricalData(ctx, cfg.Measurement, cfg.Tags, start, end)
			dash.Panels[i] = BuildPanel(cfg, filterField(rows, cfg.Field))
			return nil
		})
	}
	_ = g.Wait()
	return dash
}

// BuildPanel shapes rows for the panel's type.
func BuildPanel(cfg PanelConfig, rows []models.Row) Panel {
	if cfg.Type == "" {
		cfg.Type = PanelLine
	}
	switch cfg.Type {
	case PanelLine:
		return Panel{Type: PanelLine, Title: titleOr(cfg, "Chart"), Formatted: true, Series: lineSeries(rows), Config: cfg}
	case PanelBar:
		return Panel{Type: PanelBar, Title: titleOr(cfg, "Chart"), Formatted: true, Bars: bars(rows), Config: cfg}
	case PanelGauge:
		p := Panel{Type: PanelGauge, Title: titleOr(cfg, "Gauge"), Formatted: true, Config: cfg}
		value := 0.0
		if latest, ok := latestRow(rows); ok {
			value = latest.Value
			ts := latest.Timestamp
			p.Timestamp = &ts
		}
		p.Value = &value
		return p
	default:
		if rows == nil {
			rows = []models.Row{}
		}
		return Panel{Type: cfg.Type, Title: cfg.Title, Formatted: false, Raw: rows, Config: cfg}
	}
}

// lineSeries groups rows by field, series in first-seen order.
func lineSeries(rows []models.Row) []Series {
	index := make(map[string]int)
	out := []Series{}
	for _, r := range rows {
		i, ok := index[r.Field]
		if !ok {
			i = len(out)
			index[r.Field] = i
			out = append(out, Series{Name: r.Field, Data: []SeriesPoint{}})
		}
		out[i].Data = append(out[i].Data, SeriesPoint{X: r.Timestamp.UTC().Format(time.RFC3339), Y: r.Value})
	}
	return out
}

// bars averages rows per full tag combination, in first-seen order.
func bars(rows []models.Row) []Bar {
	index := make(map[string]int)
	sums := []float64{}
	out := []Bar{}
	for _, r := range rows {
		key := models.JoinTags(r.Tags)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Bar{Label: key})
			sums = append(sums, 0)
		}
		sums[i] += r.Value
		out[i].Count++
	}
	for i := range out {
		out[i].Value = sums[i] / float64(out[i].Count)
	}
	return out
}

// latestRow picks the row with the greatest timestamp, the first on ties.
func latestRow(rows []models.Row) (models.Row, bool) {
	if len(rows) == 0 {
		return models.Row{}, false
	}
	latest := rows[0]
	for _, r := range rows[1:] {
		if r.Timestamp.After(latest.Timestamp) {
			latest = r
		}
	}
	return latest, true
}

func filterField(rows []models.Row, field string) []models.Row {
	if field == "" {
		return rows
	}
	out := make([]models.Row, 0, len(rows))
	for _, r := range rows {
		if r.Field == field {
			out = append(out, r)
		}
	}
	return out
}

func titleOr(cfg PanelConfig, fallback string) string {
	if cfg.Title != "" {
		return cfg.Title
	}
	return fallback
}
