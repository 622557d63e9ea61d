package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Stats are cumulative counters for one job.
type Stats struct {
	Runs     uint64
	Failures uint64
	Skipped  uint64
}

type entry struct {
	job  Job
	lock sync.Mutex

	runs     atomic.Uint64
	failures atomic.Uint64
	skipped  atomic.Uint64
}

// Scheduler runs registered jobs on their schedules. A job never runs in
// parallel with itself; a tick that finds it still running is skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]*entry
	order   []string
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		entries: make(map[string]*entry),
		logger:  logger.With("component", "cron"),
	}
}

// Register adds a job. It fails on a duplicate name or an invalid schedule.
func (s *Scheduler) Register(j Job) error {
	if err := ValidateSchedule(j.Schedule()); err != nil {
		return fmt.Errorf("cron: job %q: %w", j.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	s.entries[name] = &entry{job: j}
	s.order = append(s.order, name)
	return nil
}

// Start schedules every registered job. Jobs receive a context derived
// from ctx that is canceled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("cron: scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New(cron.WithParser(parser))

	for _, name := range s.order {
		e := s.entries[name]
		if _, err := s.cron.AddFunc(e.job.Schedule(), func() { s.tick(e) }); err != nil {
			s.cancel()
			s.cron = nil
			return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
		}
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.order))
	return nil
}

// Trigger runs the named job now on the calling goroutine.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	if !e.lock.TryLock() {
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	defer e.lock.Unlock()
	return s.run(ctx, e)
}

// Stats returns the counters of the named job.
func (s *Scheduler) Stats(name string) (Stats, bool) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return Stats{}, false
	}
	return Stats{
		Runs:     e.runs.Load(),
		Failures: e.failures.Load(),
		Skipped:  e.skipped.Load(),
	}, true
}

// Stop cancels running jobs and waits for them to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: stop: %w", ctx.Err())
	}
}

func (s *Scheduler) tick(e *entry) {
	if !e.lock.TryLock() {
		e.skipped.Add(1)
		s.logger.Warn("cron: job still running, skipping tick", "job", e.job.Name())
		return
	}
	defer e.lock.Unlock()
	_ = s.run(s.ctx, e)
}

// run executes e with its lock held.
func (s *Scheduler) run(ctx context.Context, e *entry) error {
	start := time.Now()
	e.runs.Add(1)

	err := e.job.Run(ctx)
	if err != nil {
		e.failures.Add(1)
		s.logger.Error("cron: job failed",
			"job", e.job.Name(),
			"duration", time.Since(start),
			"error", err,
		)
		return err
	}
	s.logger.Debug("cron: job completed", "job", e.job.Name(), "duration", time.Since(start))
	return nil
}
