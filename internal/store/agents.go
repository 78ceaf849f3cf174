package store

import (
	"database/sql"
	"fmt"

	"github.com/mpontes/lexgate/internal/task"
)

func (s *Store) SaveAgent(a *task.Agent) error {
	_, err := s.db.Exec(`
		INSERT INTO agents (id, name, type, status, enabled)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			status = excluded.status,
			enabled = excluded.enabled,
			updated_at = CURRENT_TIMESTAMP`,
		a.ID, a.Name, a.Type, a.Status, boolToInt(a.Enabled))
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

func (s *Store) GetAgent(id string) (*task.Agent, error) {
	a := &task.Agent{}
	var enabled int
	err := s.db.QueryRow(`SELECT id, name, type, status, enabled FROM agents WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Type, &a.Status, &enabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	a.Enabled = enabled == 1
	return a, nil
}

func (s *Store) ListAgents() ([]task.Agent, error) {
	rows, err := s.db.Query(`SELECT id, name, type, status, enabled FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []task.Agent
	for rows.Next() {
		var a task.Agent
		var enabled int
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.Status, &enabled); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.Enabled = enabled == 1
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *Store) SetAgentStatus(id string, status string) error {
	_, err := s.db.Exec(`UPDATE agents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	return err
}

func (s *Store) SetAgentEnabled(id string, enabled bool) error {
	_, err := s.db.Exec(`UPDATE agents SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, boolToInt(enabled), id)
	return err
}

func (s *Store) DeleteAgent(id string) error {
	_, err := s.db.Exec(`DELETE FROM agents WHERE id = ?`, id)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
