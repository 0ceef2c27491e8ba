package analytics

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

const defaultExportWindow = 7 * 24 * time.Hour

// ExportRequest selects raw data to export. Zero Start means seven days
// before End, zero End means now.
type ExportRequest struct {
	Measurements []string         `json:"measurements"`
	Tags         models.TagFilter `json:"tags,omitempty"`
	Start        time.Time        `json:"start_time"`
	End          time.Time        `json:"end_time"`
	Format       string           `json:"format"`
}

// Record is one exported point: every field observed for one tag set at
// one timestamp.
type Record struct {
	Timestamp time.Time          `json:"timestamp"`
	Tags      map[string]string  `json:"tags"`
	Fields    map[string]float64 `json:"fields"`
}

// MeasurementExport is the export of one measurement in the requested format.
type MeasurementExport struct {
	Points  int      `json:"points"`
	Records []Record `json:"records,omitempty"`
	CSV     string   `json:"csv,omitempty"`
}

// ExportResult is the outcome of an export.
type ExportResult struct {
	Format       string                       `json:"format"`
	Start        time.Time                    `json:"start_time"`
	End          time.Time                    `json:"end_time"`
	Measurements []string                     `json:"measurements"`
	Data         map[string]MeasurementExport `json:"data"`
	TotalPoints  int                          `json:"total_points"`
}

// CombinedCSV joins the CSV sections of every measurement, each preceded by
// a "# <measurement>" line.
func (r ExportResult) CombinedCSV() string {
	var b strings.Builder
	for _, m := range r.Measurements {
		b.WriteString("# ")
		b.WriteString(m)
		b.WriteString("\n")
		b.WriteString(r.Data[m].CSV)
	}
	return b.String()
}

// Export fetches the raw rows of each measurement and renders them as
// records or CSV.
func (e *Engine) Export(ctx context.Context, req ExportRequest) (ExportResult, error) {
	format := req.Format
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCSV {
		return ExportResult{}, fmt.Errorf("unsupported export format %q", req.Format)
	}
	if len(req.Measurements) == 0 {
		return ExportResult{}, fmt.Errorf("no measurements requested")
	}

	end := req.End
	if end.IsZero() {
		end = e.now()
	}
	start := req.Start
	if start.IsZero() {
		start = end.Add(-defaultExportWindow)
	}

	result := ExportResult{
		Format:       format,
		Start:        start.UTC(),
		End:          end.UTC(),
		Measurements: req.Measurements,
		Data:         make(map[string]MeasurementExport, len(req.Measurements)),
	}
	for _, m := range req.Measurements {
		rows := e.history.GetHistoricalData(ctx, m, req.Tags, start, end)
		records := PivotRows(rows)
		out := MeasurementExport{Points: len(records)}
		if format == FormatCSV {
			text, err := RecordsToCSV(records)
			if err != nil {
				return ExportResult{}, fmt.Errorf("export %s: %w", m, err)
			}
			out.CSV = text
		} else {
			out.Records = records
		}
		result.Data[m] = out
		result.TotalPoints += len(records)
	}
	return result, nil
}

// PivotRows folds per-field rows back into records keyed by timestamp and
// tag set, in first-seen order. A field repeating under the same key starts
// a new record, so duplicate points at one timestamp are all kept.
func PivotRows(rows []models.Row) []Record {
	index := make(map[string]int)
	records := []Record{}
	for _, r := range rows {
		key := strconv.FormatInt(r.Timestamp.UnixNano(), 10) + "|" + models.JoinTags(r.Tags)
		i, ok := index[key]
		if ok {
			if _, dup := records[i].Fields[r.Field]; dup {
				ok = false
			}
		}
		if !ok {
			i = len(records)
			index[key] = i
			records = append(records, Record{
				Timestamp: r.Timestamp,
				Tags:      models.CopyTags(r.Tags),
				Fields:    map[string]float64{},
			})
		}
		records[i].Fields[r.Field] = r.Value
	}
	return records
}

// RecordsToCSV renders records with a header of the first record's sorted
// field names. Fields a later record lacks are left empty; fields the first
// record lacks are not exported.
func RecordsToCSV(records []Record) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	header := models.MetricPoint{Fields: records[0].Fields}.FieldNames()

	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(header); err != nil {
		return "", err
	}
	row := make([]string, len(header))
	for _, rec := range records {
		for i, name := range header {
			if v, ok := rec.Fields[name]; ok {
				row[i] = strconv.FormatFloat(v, 'f', -1, 64)
			} else {
				row[i] = ""
			}
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return b.String(), nil
}
