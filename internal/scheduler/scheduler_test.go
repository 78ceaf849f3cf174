package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mpontes/lexgate/internal/config"
	"github.com/mpontes/lexgate/internal/dispatch"
	"github.com/mpontes/lexgate/internal/store"
	"github.com/mpontes/lexgate/internal/task"
	"github.com/mpontes/lexgate/internal/worker"
)

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(ctx context.Context, text, taskContext string) (string, error) {
	return `{"summary":"ok"}`, nil
}

func newTestScheduler(t *testing.T, batchSize int) (*Scheduler, *store.Store) {
	t.Helper()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	w := worker.New(s, dispatch.New(fakeAnalyzer{}), nil, config.WorkerConfig{
		PollInterval:  time.Second,
		TaskTimeout:   5 * time.Second,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	})
	sched, err := New(w, config.SchedulerConfig{
		CronExpr:     "*/5 * * * *",
		PollInterval: 10 * time.Millisecond,
		BatchSize:    batchSize,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return sched, s
}

func TestNewRejectsInvalidCron(t *testing.T) {
	_, err := New(nil, config.SchedulerConfig{CronExpr: "not a cron"})
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestUpdateConfigRejectsInvalidCron(t *testing.T) {
	sched, _ := newTestScheduler(t, 5)

	if err := sched.UpdateConfig("61 * * * *", 5); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
	if sched.cronExpr != "*/5 * * * *" {
		t.Errorf("running schedule must be untouched, got %q", sched.cronExpr)
	}

	if err := sched.UpdateConfig("*/10 * * * *", 3); err != nil {
		t.Fatalf("valid update rejected: %v", err)
	}
	if sched.cronExpr != "*/10 * * * *" || sched.batchSize != 3 {
		t.Errorf("update not applied: %q %d", sched.cronExpr, sched.batchSize)
	}
}

func TestNextAfterTickMath(t *testing.T) {
	ref := time.Date(2026, 3, 2, 10, 2, 30, 0, time.UTC)
	next, err := nextAfter("*/5 * * * *", ref)
	if err != nil {
		t.Fatalf("next after: %v", err)
	}
	want := time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next tick = %v, want %v", next, want)
	}

	// Exactly on a tick, non-inclusive: roll to the next one.
	next, err = nextAfter("*/5 * * * *", want)
	if err != nil {
		t.Fatalf("next after: %v", err)
	}
	if !next.Equal(want.Add(5 * time.Minute)) {
		t.Errorf("next tick on boundary = %v, want %v", next, want.Add(5*time.Minute))
	}
}

func TestSweepBounded(t *testing.T) {
	sched, s := newTestScheduler(t, 5)

	for i := 0; i < 7; i++ {
		data, _ := json.Marshal(map[string]string{"text": strings.Repeat("x", 60)})
		err := s.Enqueue(&task.Task{
			ID:        fmt.Sprintf("t%d", i),
			AgentID:   "analyzer",
			Type:      task.TypeAnalyzeIntimation,
			Data:      data,
			CreatedAt: time.Date(2026, 3, 1, 10, 0, i, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	sched.sweep(context.Background())

	counts, err := s.CountTasks()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Completed != 5 {
		t.Errorf("expected 5 processed in one sweep, got %d", counts.Completed)
	}
	if counts.Queued != 2 {
		t.Errorf("expected 2 left queued, got %d", counts.Queued)
	}
}

func TestSweepRecoversStaleClaims(t *testing.T) {
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	taskTimeout := 50 * time.Millisecond
	w := worker.New(s, dispatch.New(fakeAnalyzer{}), nil, config.WorkerConfig{
		PollInterval:  time.Second,
		TaskTimeout:   taskTimeout,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	})
	sched, err := New(w, config.SchedulerConfig{
		CronExpr:     "*/5 * * * *",
		PollInterval: 10 * time.Millisecond,
		BatchSize:    5,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	data, _ := json.Marshal(map[string]string{"text": strings.Repeat("x", 60)})
	if err := s.Enqueue(&task.Task{
		ID:      "t1",
		AgentID: "analyzer",
		Type:    task.TypeAnalyzeIntimation,
		Data:    data,
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// A worker claimed and died; its claim outlives the stale threshold
	if claimed, err := s.ClaimOldest(); err != nil || claimed == nil {
		t.Fatalf("claim: %v (%+v)", err, claimed)
	}
	time.Sleep(10 * taskTimeout)

	sched.sweep(context.Background())

	counts, err := s.CountTasks()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Completed != 1 || counts.Processing != 0 || counts.Queued != 0 {
		t.Errorf("orphaned claim not recovered by sweep: %+v", counts)
	}
}
