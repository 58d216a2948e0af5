package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler prunes a Recorder on a cron schedule, removing results older
// than the retention window
type Scheduler struct {
	recorder  Recorder
	schedule  string
	retention time.Duration
	now       func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler creates a scheduler for r. schedule uses standard five
// field cron syntax, for example "0 3 * * *" for daily at 3 AM.
func NewScheduler(r Recorder, schedule string, retentionDays int) *Scheduler {
	return &Scheduler{
		recorder:  r,
		schedule:  schedule,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		cron:      cron.New(),
		logger:    slog.Default().With("component", "recorder.scheduler"),
	}
}

// Start registers the pruning job and starts the cron runner. An empty
// schedule or a zero retention leaves the scheduler stopped. The scheduler
// stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" || s.retention <= 0 {
		s.logger.Info("retention not configured, skipping scheduler")
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("retention scheduler started",
		"schedule", s.schedule,
		"retention_days", int(s.retention.Hours()/24),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunOnce prunes results older than the retention window
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	deleted, err := s.recorder.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("scheduled pruning completed", "deleted_count", deleted, "cutoff", cutoff)
	} else {
		s.logger.Debug("scheduled pruning completed, no results deleted")
	}
	return deleted, nil
}

// Stop stops the cron runner and waits for a running job to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("retention scheduler stopped")
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled pruning time, or nil when nothing is
// scheduled
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
