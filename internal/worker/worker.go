package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mpontes/lexgate/internal/config"
	"github.com/mpontes/lexgate/internal/dispatch"
	"github.com/mpontes/lexgate/internal/natsbus"
	"github.com/mpontes/lexgate/internal/resilience"
	"github.com/mpontes/lexgate/internal/store"
	"github.com/mpontes/lexgate/internal/task"
)

// Worker drains the task queue one claim at a time. Multiple workers can
// run against the same store; the claim is atomic so a task is processed
// by at most one of them.
type Worker struct {
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	nc         *natsbus.Client

	pollInterval time.Duration
	taskTimeout  time.Duration
	retry        resilience.Policy
}

func New(s *store.Store, d *dispatch.Dispatcher, nc *natsbus.Client, cfg config.WorkerConfig) *Worker {
	return &Worker{
		store:        s,
		dispatcher:   d,
		nc:           nc,
		pollInterval: cfg.PollInterval,
		taskTimeout:  cfg.TaskTimeout,
		retry:        resilience.FixedPolicy(cfg.RetryAttempts, cfg.RetryDelay),
	}
}

// ProcessOne claims and finalizes at most one task. Returns (0, nil, nil)
// when the queue is empty. A dispatch result with Success:false is a
// business outcome, not an error: the task is archived with it and the
// cycle reports processed.
func (w *Worker) ProcessOne(ctx context.Context) (int, *task.AnalysisResult, error) {
	t, err := w.store.ClaimOldest()
	if err != nil {
		return 0, nil, fmt.Errorf("claim: %w", err)
	}
	if t == nil {
		return 0, nil, nil
	}

	w.publish(natsbus.TopicTaskClaimed(t.ID), t)
	slog.Info("task claimed", "task", t.ID, "type", t.Type, "agent", t.AgentID)

	if disabled, derr := w.agentDisabled(t.AgentID); derr == nil && disabled {
		errMsg := fmt.Sprintf("agente %s desabilitado", t.AgentID)
		if err := w.store.Archive(t, &task.AnalysisResult{Success: false, Error: errMsg}, errMsg); err != nil {
			return 0, nil, fmt.Errorf("archive: %w", err)
		}
		w.publish(natsbus.TopicTaskFailed(t.ID), t)
		return 1, &task.AnalysisResult{Success: false, Error: errMsg}, nil
	}

	// Timeout wraps the whole retried dispatch: exhausting 45s fails the
	// task even if attempts remain.
	result, err := resilience.WithTimeout(ctx, w.taskTimeout, func(ctx context.Context) (task.AnalysisResult, error) {
		var res task.AnalysisResult
		rerr := w.retry.Do(ctx, func(ctx context.Context) error {
			res = w.dispatcher.Dispatch(ctx, t)
			return ctx.Err()
		})
		return res, rerr
	})
	if err != nil {
		slog.Error("task dispatch failed", "task", t.ID, "error", err)
		if aerr := w.store.Archive(t, nil, err.Error()); aerr != nil {
			return 0, nil, fmt.Errorf("archive: %w", aerr)
		}
		w.publish(natsbus.TopicTaskFailed(t.ID), t)
		return 1, &task.AnalysisResult{Success: false, Error: err.Error()}, nil
	}

	if err := w.store.Archive(t, &result, result.Error); err != nil {
		return 0, nil, fmt.Errorf("archive: %w", err)
	}

	if result.Success {
		slog.Info("task completed", "task", t.ID, "type", t.Type)
		w.publish(natsbus.TopicTaskCompleted(t.ID), t)
		w.enqueueChained(t, result)
	} else {
		slog.Warn("task failed", "task", t.ID, "error", result.Error)
		w.publish(natsbus.TopicTaskFailed(t.ID), t)
	}

	return 1, &result, nil
}

// ProcessQueue runs claim cycles until the queue is empty, a cycle fails
// or ctx is cancelled. Returns the number of tasks processed.
func (w *Worker) ProcessQueue(ctx context.Context) (int, error) {
	total := 0
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, _, err := w.ProcessOne(ctx)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
	}
}

// A processing claim may outlive the task timeout by this factor before
// it is assumed orphaned by a dead worker.
const staleClaimFactor = 2

// ReleaseStale requeues claims older than twice the task timeout so tasks
// orphaned by a crashed worker are picked up again.
func (w *Worker) ReleaseStale() (int, error) {
	return w.store.ReleaseStale(staleClaimFactor * w.taskTimeout)
}

// Run polls the queue at the configured interval until ctx is cancelled.
// Claims left over from a previous crashed run are requeued first.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("worker started", "poll_interval", w.pollInterval)
	if n, err := w.ReleaseStale(); err != nil {
		slog.Error("release stale claims failed", "error", err)
	} else if n > 0 {
		slog.Warn("requeued stale claims", "count", n)
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessQueue(ctx); err != nil && ctx.Err() == nil {
				slog.Error("queue cycle failed", "error", err)
			}
		}
	}
}

func (w *Worker) agentDisabled(agentID string) (bool, error) {
	a, err := w.store.GetAgent(agentID)
	if err != nil {
		return false, err
	}
	// Unknown agents are not gated; the agents table is optional.
	return a != nil && !a.Enabled, nil
}

func (w *Worker) enqueueChained(t *task.Task, result task.AnalysisResult) {
	for _, next := range dispatch.ChainedTasks(t, result) {
		if err := w.store.Enqueue(&next); err != nil {
			slog.Error("enqueue chained task failed", "source", t.ID, "type", next.Type, "error", err)
			continue
		}
		slog.Info("chained task enqueued", "source", t.ID, "task", next.ID, "type", next.Type)
		w.publish(natsbus.TopicTaskEnqueued(next.ID), &next)
	}
}

func (w *Worker) publish(topic string, t *task.Task) {
	if w.nc == nil {
		return
	}
	if err := w.nc.PublishJSON(topic, t); err != nil {
		slog.Warn("publish event failed", "topic", topic, "error", err)
	}
}
