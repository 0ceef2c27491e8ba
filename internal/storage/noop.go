package storage

import (
	"context"
	"time"

	"github.com/kubilitics/kubilitics-metrics/internal/models"
)

// Noop swallows writes and answers every query with nothing.
type Noop struct {
	name   string
	reason error
}

// NewNoop returns a no-op backend standing in for name; reason may be nil.
func NewNoop(name string, reason error) *Noop {
	return &Noop{name: name, reason: reason}
}

func (n *Noop) Name() string  { return "noop(" + n.name + ")" }
func (n *Noop) Reason() error { return n.reason }

func (n *Noop) Write(ctx context.Context, points []models.MetricPoint) (int, error) {
	return 0, nil
}

func (n *Noop) Query(ctx context.Context, q models.Query) ([]models.Row, error) {
	return []models.Row{}, nil
}

func (n *Noop) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (n *Noop) Ping(ctx context.Context) error { return n.reason }
func (n *Noop) Close() error                   { return nil }
