package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a named recurring task.
type Job struct {
	Name string
	// Spec is a standard cron expression or descriptor ("@every 30s", "@daily").
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// JobStatus reports the history of one job.
type JobStatus struct {
	Name         string        `json:"name"`
	Spec         string        `json:"spec"`
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitempty"`
}

// Scheduler runs jobs on cron schedules. A job never overlaps with itself:
// a tick that arrives while the previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.RWMutex
	jobs    map[string]Job
	entries map[string]cron.EntryID
	status  map[string]*JobStatus

	running int32
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a stopped scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
		status:  make(map[string]*JobStatus),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	id, err := s.cron.AddFunc(job.Spec, func() { s.execute(s.ctx, job) })
	if err != nil {
		return fmt.Errorf("schedule %q (%s): %w", job.Name, job.Spec, err)
	}
	s.jobs[job.Name] = job
	s.entries[job.Name] = id
	s.status[job.Name] = &JobStatus{Name: job.Name, Spec: job.Spec}
	s.logger.Info("job registered", zap.String("job", job.Name), zap.String("spec", job.Spec))
	return nil
}

// Start begins firing jobs.
func (s *Scheduler) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return fmt.Errorf("scheduler already running")
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop cancels in-flight runs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return fmt.Errorf("scheduler not running")
	}
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running jobs: %w", ctx.Err())
	}
}

// Trigger runs a job immediately on the caller's goroutine.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	return s.execute(ctx, job)
}

// Status returns every job's status sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobStatus, 0, len(s.status))
	for name, st := range s.status {
		cp := *st
		if id, ok := s.entries[name]; ok {
			cp.NextRun = s.cron.Entry(id).Next
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	st := s.status[job.Name]
	st.Runs++
	st.LastRun = start
	st.LastDuration = elapsed
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", zap.String("job", job.Name), zap.Duration("duration", elapsed), zap.Error(err))
		return err
	}
	s.logger.Debug("job finished", zap.String("job", job.Name), zap.Duration("duration", elapsed))
	return nil
}

// cronLogger routes robfig/cron's logging through zap. Scheduling chatter
// goes to debug.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
