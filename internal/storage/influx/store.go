package influx

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

// Config locates the InfluxDB bucket.
type Config struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	Timeout time.Duration
}

// Store writes points to an InfluxDB 2.x bucket and reads them back with Flux.
// Retention is the bucket's policy, so DeleteOlderThan is a no-op.
type Store struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
	reader api.QueryAPI
	bucket string
	logger *zap.Logger
}

// New connects to InfluxDB and fails if the server does not answer a ping.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influxdb url and bucket are required")
	}
	opts := influxdb2.DefaultOptions()
	if cfg.Timeout > 0 {
		opts.SetHTTPRequestTimeout(uint(cfg.Timeout.Seconds()))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ok, err := client.Ping(ctx)
	if err != nil || !ok {
		client.Close()
		if err == nil {
			err = fmt.Errorf("server not ready")
		}
		return nil, fmt.Errorf("ping influxdb at %s: %w", cfg.URL, err)
	}

	return &Store{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		reader: client.QueryAPI(cfg.Org),
		bucket: cfg.Bucket,
		logger: logger.Named("influx"),
	}, nil
}

// Name identifies the backend in logs and metrics.
func (s *Store) Name() string { return "influxdb" }

// Ping checks the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("influxdb not ready")
	}
	return nil
}

// Close releases the HTTP client.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// Write sends the batch in one request. If the server rejects it, each point
// is retried on its own so one bad point costs only itself.
func (s *Store) Write(ctx context.Context, points []models.MetricPoint) (int, error) {
	batch := make([]*write.Point, 0, len(points))
	for i, p := range points {
		if err := p.Validate(); err != nil {
			s.logger.Warn("skipping invalid metric point", zap.Int("index", i), zap.Error(err))
			continue
		}
		batch = append(batch, toInfluxPoint(p))
	}
	if len(batch) == 0 {
		return 0, nil
	}

	err := s.writer.WritePoint(ctx, batch...)
	if err == nil {
		return len(batch), nil
	}
	s.logger.Warn("batch write rejected, retrying point by point",
		zap.Int("points", len(batch)), zap.Error(err))

	written := 0
	var lastErr error
	for _, p := range batch {
		if err := s.writer.WritePoint(ctx, p); err != nil {
			lastErr = err
			s.logger.Warn("metric point write failed", zap.String("measurement", p.Name()), zap.Error(err))
			continue
		}
		written++
	}
	if written == 0 && lastErr != nil {
		return 0, fmt.Errorf("write to bucket %s: %w", s.bucket, lastErr)
	}
	return written, nil
}

// Query runs a Flux range query and flattens the result tables into rows
// sorted by timestamp.
func (s *Store) Query(ctx context.Context, q models.Query) ([]models.Row, error) {
	result, err := s.reader.Query(ctx, s.buildFlux(q))
	if err != nil {
		return nil, fmt.Errorf("flux query %s: %w", q.Measurement, err)
	}
	defer result.Close()

	var rows []models.Row
	for result.Next() {
		rec := result.Record()
		v, ok := toFloat(rec.Value())
		if !ok {
			continue
		}
		tags := make(map[string]string)
		for k, raw := range rec.Values() {
			if strings.HasPrefix(k, "_") || k == "result" || k == "table" {
				continue
			}
			if sv, ok := raw.(string); ok {
				tags[k] = sv
			}
		}
		rows = append(rows, models.Row{
			Timestamp: rec.Time().UTC(),
			Field:     rec.Field(),
			Value:     v,
			Tags:      tags,
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read flux result: %w", err)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	return rows, nil
}

// DeleteOlderThan is left to the bucket retention policy.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// buildFlux renders the query. Flux range stop is exclusive, so the end bound
// is pushed out by one nanosecond to keep it inclusive.
func (s *Store) buildFlux(q models.Query) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", fluxString(s.bucket))
	fmt.Fprintf(&b, "  |> range(start: %s, stop: %s)\n",
		q.Start.UTC().Format(time.RFC3339Nano),
		q.End.Add(time.Nanosecond).UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %s)\n", fluxString(q.Measurement))

	keys := make([]string, 0, len(q.Tags))
	for k := range q.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  |> filter(fn: (r) => r[%s] == %s)\n", fluxString(k), fluxString(q.Tags[k]))
	}
	return b.String()
}

var fluxEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "${", `\${`)

func fluxString(s string) string {
	return `"` + fluxEscaper.Replace(s) + `"`
}

func toInfluxPoint(p models.MetricPoint) *write.Point {
	fields := make(map[string]interface{}, len(p.Fields))
	for k, v := range p.Fields {
		fields[k] = v
	}
	return influxdb2.NewPoint(p.Measurement, p.Tags, fields, p.Timestamp)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
