package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-metrics/internal/collector"
	"github.com/kubilitics/kubilitics-metrics/internal/config"
)

type fakeCollector struct {
	collects atomic.Int32
	cleanups atomic.Int32
	fail     bool
	days     atomic.Int32
}

func (f *fakeCollector) Collect(ctx context.Context, opts collector.CollectOptions) collector.Summary {
	f.collects.Add(1)
	return collector.Summary{Success: !f.fail, RunID: "run"}
}

func (f *fakeCollector) CleanupOldMetrics(ctx context.Context, days int) (int64, error) {
	f.cleanups.Add(1)
	f.days.Store(int32(days))
	return 0, nil
}

func TestAddRejectsDuplicatesAndBadSpecs(t *testing.T) {
	s := New(nil)
	job := Job{Name: "a", Spec: "@every 1h", Run: func(context.Context) error { return nil }}
	require.NoError(t, s.Add(job))
	assert.Error(t, s.Add(job))

	assert.Error(t, s.Add(Job{Name: "b", Spec: "not a spec", Run: job.Run}))
	assert.Error(t, s.Add(Job{Name: "c", Spec: "@hourly"}))
}

func TestTriggerRecordsStatus(t *testing.T) {
	s := New(nil)
	fc := &fakeCollector{fail: true}
	require.NoError(t, s.Add(CollectionJob(fc, time.Hour, nil)))

	err := s.Trigger(context.Background(), JobCollect)
	assert.Error(t, err)
	assert.Equal(t, int32(1), fc.collects.Load())

	status := s.Status()
	require.Len(t, status, 1)
	assert.Equal(t, int64(1), status[0].Runs)
	assert.Equal(t, int64(1), status[0].Failures)
	assert.Contains(t, status[0].LastError, "failed")

	assert.Error(t, s.Trigger(context.Background(), "missing"))
}

func TestCollectionJobRunsOnSchedule(t *testing.T) {
	s := New(nil)
	fc := &fakeCollector{}
	require.NoError(t, s.Add(CollectionJob(fc, time.Second, nil)))
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	assert.Eventually(t, func() bool { return fc.collects.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Error(t, s.Stop(ctx))
}

func TestSkipIfStillRunning(t *testing.T) {
	s := New(nil)
	var running, overlaps atomic.Int32
	release := make(chan struct{})
	require.NoError(t, s.Add(Job{
		Name: "slow",
		Spec: "@every 1s",
		Run: func(ctx context.Context) error {
			if running.Add(1) > 1 {
				overlaps.Add(1)
			}
			defer running.Add(-1)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
	}))
	require.NoError(t, s.Start())
	time.Sleep(2500 * time.Millisecond)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Zero(t, overlaps.Load())
}

func TestRegister(t *testing.T) {
	cfg := config.DefaultConfig().Collection
	fc := &fakeCollector{}

	s := New(nil)
	require.NoError(t, Register(s, fc, cfg))
	names := []string{}
	for _, st := range s.Status() {
		names = append(names, st.Name)
	}
	assert.Equal(t, []string{JobCleanup, JobCollect}, names)

	require.NoError(t, s.Trigger(context.Background(), JobCleanup))
	assert.Equal(t, int32(cfg.RetentionDays), fc.days.Load())

	cfg.Enabled = false
	disabled := New(nil)
	require.NoError(t, Register(disabled, fc, cfg))
	assert.Empty(t, disabled.Status())
}

func TestCronLoggerAppendsError(t *testing.T) {
	s := New(nil)
	l := cronLogger{s.logger.Sugar()}
	l.Info("tick", "entry", 1)
	l.Error(errors.New("boom"), "panic recovered")
}
