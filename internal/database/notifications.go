package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReminderLogRepository records which reminders have been sent. The key is
// {taskID}_{date}_{kind}_UTC{offset}, so the same reminder never fires twice
// for one task, day, and zone.
type ReminderLogRepository struct {
	db *DB
}

// NewReminderLogRepository creates a new reminder log repository
func NewReminderLogRepository(db *DB) *ReminderLogRepository {
	return &ReminderLogRepository{db: db}
}

// MarkSent records a reminder key. Returns false when the key was already
// present, which is how callers detect a duplicate send.
func (r *ReminderLogRepository) MarkSent(ctx context.Context, key string, taskID uuid.UUID, kind string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO reminder_log (key, task_id, kind) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
		key, taskID, kind)
	if err != nil {
		return false, fmt.Errorf("failed to record reminder: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check reminder insert: %w", err)
	}
	return n > 0, nil
}

// CountSince returns how many reminders were sent since the given time.
func (r *ReminderLogRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminder_log WHERE sent_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reminders: %w", err)
	}
	return count, nil
}

// CountByKind returns reminder counts grouped by kind.
func (r *ReminderLogRepository) CountByKind(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM reminder_log GROUP BY kind ORDER BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reminders by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan reminder count: %w", err)
		}
		counts[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminder counts: %w", err)
	}
	return counts, nil
}

// PurgeBefore removes log entries older than the cutoff.
func (r *ReminderLogRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM reminder_log WHERE sent_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge reminder log: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged reminders: %w", err)
	}
	return n, nil
}
