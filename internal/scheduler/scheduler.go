package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
	"github.com/mpontes/lexgate/internal/config"
	"github.com/mpontes/lexgate/internal/worker"
)

// Scheduler sweeps the task queue on a cron cadence. Each due tick runs a
// bounded batch of worker cycles so a flooded queue cannot starve the
// poll loop.
type Scheduler struct {
	worker       *worker.Worker
	cronExpr     string
	pollInterval time.Duration
	batchSize    int
	reloadCh     chan struct{}
	nextRun      time.Time
}

func New(w *worker.Worker, cfg config.SchedulerConfig) (*Scheduler, error) {
	if !gronx.New().IsValid(cfg.CronExpr) {
		return nil, fmt.Errorf("invalid cron expression %q", cfg.CronExpr)
	}
	return &Scheduler{
		worker:       w,
		cronExpr:     cfg.CronExpr,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		reloadCh:     make(chan struct{}, 1),
	}, nil
}

// UpdateConfig swaps the cron expression and batch size, then signals the
// run loop to recompute its next due time. Invalid expressions are
// rejected without touching the running schedule.
func (s *Scheduler) UpdateConfig(cronExpr string, batchSize int) error {
	if !gronx.New().IsValid(cronExpr) {
		return fmt.Errorf("invalid cron expression %q", cronExpr)
	}
	s.cronExpr = cronExpr
	s.batchSize = batchSize
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
	return nil
}

func nextAfter(expr string, t time.Time) (time.Time, error) {
	next, err := gronx.NextTickAfter(expr, t, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("next tick: %w", err)
	}
	return next, nil
}

func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	next, err := nextAfter(s.cronExpr, time.Now())
	if err != nil {
		slog.Error("scheduler stopped: bad cron expression", "expr", s.cronExpr, "error", err)
		return
	}
	s.nextRun = next
	slog.Info("scheduler started", "cron", s.cronExpr, "next_run", s.nextRun)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-s.reloadCh:
			if next, err := nextAfter(s.cronExpr, time.Now()); err == nil {
				s.nextRun = next
			}
			slog.Info("scheduler config reloaded", "cron", s.cronExpr, "next_run", s.nextRun)
		case <-ticker.C:
			if time.Now().Before(s.nextRun) {
				continue
			}
			s.sweep(ctx)
			if next, err := nextAfter(s.cronExpr, time.Now()); err == nil {
				s.nextRun = next
			}
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	if n, err := s.worker.ReleaseStale(); err != nil {
		slog.Error("release stale claims failed", "error", err)
	} else if n > 0 {
		slog.Warn("requeued stale claims", "count", n)
	}

	processed := 0
	for processed < s.batchSize {
		n, _, err := s.worker.ProcessOne(ctx)
		if err != nil {
			slog.Error("queue sweep cycle failed", "error", err)
			return
		}
		if n == 0 {
			break
		}
		processed += n
	}
	if processed > 0 {
		slog.Info("queue sweep finished", "processed", processed)
	}
}
