package database

import (
	"context"
	"fmt"
)

// migrate creates the schema at boot. Statements are idempotent so restarts
// are safe.
func (db *DB) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			title TEXT NOT NULL,
			section TEXT NOT NULL,
			date TEXT NOT NULL,
			start_time JSONB NOT NULL,
			end_time JSONB,
			priority TEXT,
			recurring TEXT,
			collaborators JSONB NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'Pending',
			created_by TEXT NOT NULL,
			deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_date ON tasks (user_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_deleted ON tasks (user_id, deleted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_date_active ON tasks (date) WHERE deleted_at IS NULL`,
		`CREATE TABLE IF NOT EXISTS reminder_log (
			key TEXT PRIMARY KEY,
			task_id UUID NOT NULL,
			kind TEXT NOT NULL,
			sent_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminder_log_sent_at ON reminder_log (sent_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
