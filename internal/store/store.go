package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mpontes/lexgate/internal/config"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(cfg config.StoreConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	// Enable WAL mode for concurrent read/write access and set a busy
	// timeout so writers retry instead of immediately returning SQLITE_BUSY.
	// The pragmas go in the DSN so they apply to every pooled connection,
	// not just the one that would run a PRAGMA statement.
	dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS task_queue (
			id          TEXT PRIMARY KEY,
			agent_id    TEXT NOT NULL,
			type        TEXT NOT NULL,
			priority    TEXT NOT NULL DEFAULT 'medium',
			status      TEXT NOT NULL DEFAULT 'queued',
			data        TEXT,
			created_at  DATETIME NOT NULL,
			started_at  DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_claim ON task_queue(status, created_at)`,
		`CREATE TABLE IF NOT EXISTS completed_tasks (
			id           TEXT PRIMARY KEY,
			agent_id     TEXT NOT NULL,
			type         TEXT NOT NULL,
			priority     TEXT NOT NULL,
			status       TEXT NOT NULL,
			data         TEXT,
			result       TEXT,
			error        TEXT,
			created_at   DATETIME NOT NULL,
			started_at   DATETIME,
			completed_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_completed_at ON completed_tasks(completed_at)`,
		`CREATE TABLE IF NOT EXISTS agents (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			type        TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'idle',
			enabled     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS secrets (
			name        TEXT PRIMARY KEY,
			value       TEXT NOT NULL,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}
