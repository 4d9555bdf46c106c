// Package scheduler runs the workspace's cron-driven maintenance jobs:
// periodic autosave and store compaction.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/lienzo/internal/logging"
)

// DefaultTick is how often due jobs are checked.
const DefaultTick = 15 * time.Second

// Job is one named cron job.
type Job struct {
	Name string
	Cron string
	Run  func(ctx context.Context) error
}

// JobStatus is a snapshot of a job's schedule and last run.
type JobStatus struct {
	Name          string     `json:"name"`
	Cron          string     `json:"cron"`
	NextRunAt     time.Time  `json:"next_run_at"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

type entry struct {
	job      Job
	schedule cron.Schedule
	status   JobStatus
}

// Scheduler checks registered jobs on a ticker and runs those that are due.
// A job never runs concurrently with itself.
type Scheduler struct {
	parser cron.Parser
	logger *slog.Logger
	tick   time.Duration
	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	jobsMu sync.Mutex
	jobs   map[string]*entry

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job names currently executing (dedup)
}

// NewScheduler creates a scheduler. A non-positive tick uses DefaultTick.
func NewScheduler(tick time.Duration, logger *slog.Logger) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   logging.OrDefault(logger),
		tick:     tick,
		now:      func() time.Time { return time.Now().UTC() },
		jobs:     make(map[string]*entry),
		inflight: make(map[string]struct{}),
	}
}

// Add registers a job. An empty cron expression disables it.
func (s *Scheduler) Add(job Job) error {
	if job.Cron == "" {
		s.logger.Info("scheduled job disabled", slog.String("job", job.Name))
		return nil
	}
	schedule, err := s.parser.Parse(job.Cron)
	if err != nil {
		return fmt.Errorf("parse cron expression %q for job %q: %w", job.Cron, job.Name, err)
	}
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	s.jobs[job.Name] = &entry{
		job:      job,
		schedule: schedule,
		status:   JobStatus{Name: job.Name, Cron: job.Cron, NextRunAt: schedule.Next(s.now())},
	}
	return nil
}

// Jobs returns a snapshot of every registered job sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.Jobs())))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue runs every job whose next run time has passed.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()
	s.jobsMu.Lock()
	var due []string
	for name, e := range s.jobs {
		if !e.status.NextRunAt.After(now) {
			due = append(due, name)
		}
	}
	s.jobsMu.Unlock()
	sort.Strings(due)

	for _, name := range due {
		if _, err := s.RunNow(ctx, name); err != nil {
			s.logger.Error("scheduled job failed",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// RunNow runs job name immediately and reschedules it from now. It reports
// false without running when the job is already in flight.
func (s *Scheduler) RunNow(ctx context.Context, name string) (bool, error) {
	s.jobsMu.Lock()
	e, ok := s.jobs[name]
	s.jobsMu.Unlock()
	if !ok {
		return false, fmt.Errorf("unknown job %q", name)
	}
	if !s.tryAcquire(name) {
		s.logger.Debug("scheduled job still running", slog.String("job", name))
		return false, nil
	}
	defer s.releaseJob(name)

	s.logger.Debug("running scheduled job", slog.String("job", name))
	err := e.job.Run(ctx)

	now := s.now()
	s.jobsMu.Lock()
	e.status.LastRunAt = &now
	e.status.NextRunAt = e.schedule.Next(now)
	e.status.LastRunStatus = "success"
	e.status.LastError = ""
	if err != nil {
		e.status.LastRunStatus = "error"
		e.status.LastError = err.Error()
	}
	s.jobsMu.Unlock()
	return true, err
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler, waiting for the loop to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
