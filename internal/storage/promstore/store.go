package promstore

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

// Config configures the exposition store.
type Config struct {
	Namespace      string
	PushgatewayURL string
	Job            string
	// BufferCapacity bounds the recent points kept per measurement for queries.
	BufferCapacity int
}

type gaugeFamily struct {
	vec    *prometheus.GaugeVec
	labels []string
}

// Store publishes the latest value of every (measurement, field) as a gauge
// on a dedicated registry for scraping. History lives only in a bounded
// in-process ring per measurement; long-term retention is the scraper's job.
type Store struct {
	registry  *prometheus.Registry
	namespace string
	capacity  int
	pusher    *push.Pusher
	logger    *zap.Logger

	mu      sync.Mutex
	gauges  map[string]*gaugeFamily
	buffers map[string]*ring
}

// New creates the store. It never fails for lack of a scraper; a bad
// pushgateway URL is the only construction error.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = 10000
	}
	s := &Store{
		registry:  prometheus.NewRegistry(),
		namespace: sanitize(cfg.Namespace),
		capacity:  cfg.BufferCapacity,
		logger:    logger.Named("promstore"),
		gauges:    make(map[string]*gaugeFamily),
		buffers:   make(map[string]*ring),
	}
	if cfg.PushgatewayURL != "" {
		if !strings.HasPrefix(cfg.PushgatewayURL, "http://") && !strings.HasPrefix(cfg.PushgatewayURL, "https://") {
			return nil, fmt.Errorf("invalid pushgateway url %q", cfg.PushgatewayURL)
		}
		job := cfg.Job
		if job == "" {
			job = "kubilitics_metrics"
		}
		s.pusher = push.New(cfg.PushgatewayURL, job).Gatherer(s.registry)
	}
	return s, nil
}

// Name identifies the backend in logs and metrics.
func (s *Store) Name() string { return "prometheus" }

// Ping always succeeds; the registry is in-process.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Registry exposes the gauges for tests and custom handlers.
func (s *Store) Registry() *prometheus.Registry { return s.registry }

// Handler serves the registry in the exposition format.
func (s *Store) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Write sets one gauge per field and records the point for later queries.
// A field whose gauge cannot take the point (tag keys disagree with the
// registered gauge, or a label value is rejected) is dropped from exposition
// but the point still counts once buffered.
func (s *Store) Write(ctx context.Context, points []models.MetricPoint) (int, error) {
	written := s.record(points)

	if s.pusher != nil && written > 0 {
		if err := s.pusher.PushContext(ctx); err != nil {
			s.logger.Warn("pushgateway push failed", zap.Error(err))
		}
	}
	return written, nil
}

func (s *Store) record(points []models.MetricPoint) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for i, p := range points {
		if err := p.Validate(); err != nil {
			s.logger.Warn("skipping invalid metric point", zap.Int("index", i), zap.Error(err))
			continue
		}
		labels := sanitizeLabels(p.Tags)
		names := sortedKeys(labels)
		for _, field := range p.FieldNames() {
			fam, err := s.familyLocked(p.Measurement, field, names)
			if err != nil {
				s.logger.Warn("gauge unavailable for field",
					zap.String("measurement", p.Measurement),
					zap.String("field", field),
					zap.Error(err))
				continue
			}
			gauge, err := fam.vec.GetMetricWith(labels)
			if err != nil {
				s.logger.Warn("gauge rejected labels",
					zap.String("measurement", p.Measurement),
					zap.String("field", field),
					zap.Error(err))
				continue
			}
			gauge.Set(p.Fields[field])
		}
		s.bufferLocked(p.Measurement).add(p)
		written++
	}
	return written
}

// Query answers from the in-process buffer, so only recent points are
// visible. Rows come back ascending by timestamp.
func (s *Store) Query(ctx context.Context, q models.Query) ([]models.Row, error) {
	s.mu.Lock()
	buf, ok := s.buffers[q.Measurement]
	var points []models.MetricPoint
	if ok {
		points = buf.snapshot()
	}
	s.mu.Unlock()

	var rows []models.Row
	for _, p := range points {
		if !q.Covers(p.Timestamp) || !q.Tags.Matches(p.Tags) {
			continue
		}
		rows = append(rows, p.Rows()...)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	return rows, nil
}

// DeleteOlderThan is left to the scraper's retention.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (s *Store) familyLocked(measurement, field string, labelNames []string) (*gaugeFamily, error) {
	name := s.metricName(measurement, field)
	if fam, ok := s.gauges[name]; ok {
		if !equalStrings(fam.labels, labelNames) {
			return nil, fmt.Errorf("gauge %s has labels %v, point has %v", name, fam.labels, labelNames)
		}
		return fam, nil
	}

	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: fmt.Sprintf("Latest %s.%s observation", measurement, field),
	}, labelNames)
	if err := s.registry.Register(vec); err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	fam := &gaugeFamily{vec: vec, labels: labelNames}
	s.gauges[name] = fam
	return fam, nil
}

func (s *Store) bufferLocked(measurement string) *ring {
	buf, ok := s.buffers[measurement]
	if !ok {
		buf = newRing(s.capacity)
		s.buffers[measurement] = buf
	}
	return buf
}

func (s *Store) metricName(measurement, field string) string {
	parts := []string{sanitize(measurement), sanitize(field)}
	if s.namespace != "" {
		parts = append([]string{s.namespace}, parts...)
	}
	return strings.Join(parts, "_")
}

// sanitize maps arbitrary text onto the [a-zA-Z0-9_] metric name alphabet.
func sanitize(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func sanitizeLabels(tags map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(tags))
	for k, v := range tags {
		k = sanitize(k)
		if k == "" || strings.HasPrefix(k, "__") {
			continue
		}
		out[k] = v
	}
	return out
}

func sortedKeys(m prometheus.Labels) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
