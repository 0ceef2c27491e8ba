package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/kubilitics/kubilitics-metrics/internal/collector"
	"github.com/kubilitics/kubilitics-metrics/internal/config"
)

// Job names.
const (
	JobCollect = "collect"
	JobCleanup = "cleanup"
)

// Collector is the part of the collector the jobs drive.
type Collector interface {
	Collect(ctx context.Context, opts collector.CollectOptions) collector.Summary
	CleanupOldMetrics(ctx context.Context, days int) (int64, error)
}

// CollectionJob collects every interval. A run may take at most one interval.
func CollectionJob(c Collector, interval time.Duration, measurements []string) Job {
	return Job{
		Name:    JobCollect,
		Spec:    fmt.Sprintf("@every %s", interval),
		Timeout: interval,
		Run: func(ctx context.Context) error {
			summary := c.Collect(ctx, collector.CollectOptions{Measurements: measurements})
			if !summary.Success {
				return fmt.Errorf("collection run %s failed: %v", summary.RunID, summary.Errors)
			}
			return nil
		},
	}
}

// CleanupJob enforces retention on schedule.
func CleanupJob(c Collector, schedule string, retentionDays int) Job {
	return Job{
		Name:    JobCleanup,
		Spec:    schedule,
		Timeout: 10 * time.Minute,
		Run: func(ctx context.Context) error {
			_, err := c.CleanupOldMetrics(ctx, retentionDays)
			return err
		},
	}
}

// Register adds the jobs the collection config enables.
func Register(s *Scheduler, c Collector, cfg config.CollectionConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if err := s.Add(CollectionJob(c, cfg.Interval(), cfg.Measurements)); err != nil {
		return err
	}
	if cfg.RetentionDays > 0 && cfg.CleanupSchedule != "" {
		if err := s.Add(CleanupJob(c, cfg.CleanupSchedule, cfg.RetentionDays)); err != nil {
			return err
		}
	}
	return nil
}
