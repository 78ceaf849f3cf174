package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mpontes/lexgate/internal/task"
)

// Enqueue inserts a task into the queue with status queued. The task's
// CreatedAt is set if zero so FIFO claim ordering is stable.
func (s *Store) Enqueue(t *task.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.Status = task.StatusQueued
	_, err := s.db.Exec(`
		INSERT INTO task_queue (id, agent_id, type, priority, status, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AgentID, string(t.Type), string(t.Priority), string(t.Status),
		rawToString(t.Data), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// ClaimOldest atomically transitions the oldest queued task to processing
// and returns it. The conditional UPDATE guarantees at most one claimer
// wins even with concurrent workers. Returns nil when the queue is empty.
func (s *Store) ClaimOldest() (*task.Task, error) {
	row := s.db.QueryRow(`
		UPDATE task_queue
		SET status = 'processing', started_at = ?
		WHERE id = (
			SELECT id FROM task_queue
			WHERE status = 'queued'
			ORDER BY created_at, id
			LIMIT 1
		) AND status = 'queued'
		RETURNING id, agent_id, type, priority, status, data, created_at, started_at`,
		time.Now().UTC())

	t, err := scanQueued(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return t, nil
}

// Archive moves a finished task from the queue to completed_tasks in a
// single transaction so the task is never visible in both tables. On
// commit the passed task is updated to mirror the archived row (status,
// result, error, completedAt), so callers can publish it as-is.
func (s *Store) Archive(t *task.Task, result *task.AnalysisResult, errMsg string) error {
	status := task.StatusCompleted
	if errMsg != "" || (result != nil && !result.Success) {
		status = task.StatusFailed
	}
	completedAt := time.Now().UTC()

	var resultJSON *string
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		s := string(b)
		resultJSON = &s
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO completed_tasks (id, agent_id, type, priority, status, data, result, error, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AgentID, string(t.Type), string(t.Priority), string(status),
		rawToString(t.Data), resultJSON, nullIfEmpty(errMsg),
		t.CreatedAt, t.StartedAt, completedAt); err != nil {
		return fmt.Errorf("insert completed: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM task_queue WHERE id = ?`, t.ID); err != nil {
		return fmt.Errorf("delete queued: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	t.Status = status
	t.Result = result
	t.Error = errMsg
	t.CompletedAt = &completedAt
	return nil
}

func (s *Store) GetQueued(id string) (*task.Task, error) {
	row := s.db.QueryRow(`
		SELECT id, agent_id, type, priority, status, data, created_at, started_at
		FROM task_queue WHERE id = ?`, id)
	t, err := scanQueued(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queued task: %w", err)
	}
	return t, nil
}

func (s *Store) ListQueued(limit int) ([]task.Task, error) {
	rows, err := s.db.Query(`
		SELECT id, agent_id, type, priority, status, data, created_at, started_at
		FROM task_queue ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanQueued(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queued: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *Store) ListCompleted(limit int) ([]task.Task, error) {
	rows, err := s.db.Query(`
		SELECT id, agent_id, type, priority, status, data, result, error, created_at, started_at, completed_at
		FROM completed_tasks ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanCompleted(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completed: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *Store) GetCompleted(id string) (*task.Task, error) {
	row := s.db.QueryRow(`
		SELECT id, agent_id, type, priority, status, data, result, error, created_at, started_at, completed_at
		FROM completed_tasks WHERE id = ?`, id)
	t, err := scanCompleted(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completed task: %w", err)
	}
	return t, nil
}

// Dequeue removes a task from the queue without archiving it.
func (s *Store) Dequeue(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM task_queue WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("dequeue task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type QueueCounts struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

func (s *Store) CountTasks() (QueueCounts, error) {
	var c QueueCounts
	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM task_queue WHERE status = 'queued'),
			(SELECT COUNT(*) FROM task_queue WHERE status = 'processing'),
			(SELECT COUNT(*) FROM completed_tasks WHERE status = 'completed'),
			(SELECT COUNT(*) FROM completed_tasks WHERE status = 'failed')`).
		Scan(&c.Queued, &c.Processing, &c.Completed, &c.Failed)
	if err != nil {
		return c, fmt.Errorf("count tasks: %w", err)
	}
	return c, nil
}

// ReleaseStale requeues processing tasks whose claim is older than maxAge.
// Covers workers that died mid-task without archiving.
func (s *Store) ReleaseStale(maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := s.db.Exec(`
		UPDATE task_queue
		SET status = 'queued', started_at = NULL
		WHERE status = 'processing' AND started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQueued(sc scanner) (*task.Task, error) {
	t := &task.Task{}
	var typ, priority, status string
	var data sql.NullString
	var startedAt sql.NullTime
	err := sc.Scan(&t.ID, &t.AgentID, &typ, &priority, &status, &data, &t.CreatedAt, &startedAt)
	if err != nil {
		return nil, err
	}
	t.Type = task.Type(typ)
	t.Priority = task.Priority(priority)
	t.Status = task.Status(status)
	if data.Valid {
		t.Data = json.RawMessage(data.String)
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	return t, nil
}

func scanCompleted(sc scanner) (*task.Task, error) {
	t := &task.Task{}
	var typ, priority, status string
	var data, result, errMsg sql.NullString
	var startedAt sql.NullTime
	var completedAt time.Time
	err := sc.Scan(&t.ID, &t.AgentID, &typ, &priority, &status, &data, &result, &errMsg,
		&t.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	t.Type = task.Type(typ)
	t.Priority = task.Priority(priority)
	t.Status = task.Status(status)
	if data.Valid {
		t.Data = json.RawMessage(data.String)
	}
	if result.Valid {
		var r task.AnalysisResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		t.Result = &r
	}
	t.Error = errMsg.String
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	t.CompletedAt = &completedAt
	return t, nil
}

func rawToString(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
