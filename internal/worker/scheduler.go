package worker

import (
	"context"
	"log/slog"
	"time"

	"costwatch/internal/core"
)

// Runner performs one reminder run.
type Runner interface {
	Run(ctx context.Context) core.ReminderRunResult
}

// Scheduler triggers a Runner immediately and then on every tick until the
// context is cancelled.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	onResult func(core.ReminderRunResult)
}

func NewScheduler(runner Runner, interval time.Duration) *Scheduler {
	return &Scheduler{runner: runner, interval: interval}
}

// OnResult registers a callback invoked after every run.
func (s *Scheduler) OnResult(fn func(core.ReminderRunResult)) {
	s.onResult = fn
}

// RunOnce performs a single run.
func (s *Scheduler) RunOnce(ctx context.Context) core.ReminderRunResult {
	res := s.runner.Run(ctx)
	if s.onResult != nil {
		s.onResult(res)
	}
	return res
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	slog.InfoContext(ctx, "Reminder scheduler started", "interval", s.interval)
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Reminder scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
