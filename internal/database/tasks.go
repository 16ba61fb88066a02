package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/taskmateai/taskmate/internal/models"
	"github.com/taskmateai/taskmate/internal/timeutil"
)

// TaskRepository handles task database operations
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, user_id, title, section, date, start_time, end_time, priority, recurring, collaborators, status, created_by, deleted_at, created_at, updated_at`

// Insert creates a new task
func (r *TaskRepository) Insert(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (id, user_id, title, section, date, start_time, end_time, priority, recurring, collaborators, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	startJSON, err := json.Marshal(task.StartTime)
	if err != nil {
		return fmt.Errorf("failed to marshal start time: %w", err)
	}
	endJSON, err := marshalNullable(task.EndTime)
	if err != nil {
		return fmt.Errorf("failed to marshal end time: %w", err)
	}
	collabJSON, err := json.Marshal(emptyIfNil(task.Collaborators))
	if err != nil {
		return fmt.Errorf("failed to marshal collaborators: %w", err)
	}

	now := time.Now()
	err = r.db.QueryRowContext(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		task.Section,
		task.Date,
		startJSON,
		endJSON,
		nullableString((*string)(task.Priority)),
		nullableString((*string)(task.Recurring)),
		collabJSON,
		task.Status,
		task.CreatedBy,
		now,
		now,
	).Scan(&task.CreatedAt, &task.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	return nil
}

// ByID retrieves a task owned by the user
func (r *TaskRepository) ByID(ctx context.Context, userID, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`
	row := r.db.QueryRowContext(ctx, query, id, userID)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ActiveByDate retrieves non-archived tasks for a calendar day, optionally
// filtered by section.
func (r *TaskRepository) ActiveByDate(ctx context.Context, userID uuid.UUID, date, section string) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 AND date = $2 AND deleted_at IS NULL`
	args := []any{userID, date}
	if section != "" {
		query += ` AND section = $3`
		args = append(args, section)
	}
	query += ` ORDER BY created_at DESC`
	return r.queryTasks(ctx, query, args...)
}

// Active retrieves all non-archived tasks, optionally filtered by section.
func (r *TaskRepository) Active(ctx context.Context, userID uuid.UUID, section string) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 AND deleted_at IS NULL`
	args := []any{userID}
	if section != "" {
		query += ` AND section = $2`
		args = append(args, section)
	}
	query += ` ORDER BY created_at DESC`
	return r.queryTasks(ctx, query, args...)
}

// Archived retrieves the user's soft-deleted tasks, most recently deleted
// first.
func (r *TaskRepository) Archived(ctx context.Context, userID uuid.UUID) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 AND deleted_at IS NOT NULL ORDER BY deleted_at DESC`
	return r.queryTasks(ctx, query, userID)
}

// ByIDs retrieves the user's tasks matching the given ids, archived or not.
func (r *TaskRepository) ByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 AND id = ANY($2)`
	return r.queryTasks(ctx, query, userID, pq.Array(ids))
}

// AllActiveByDate retrieves every user's non-archived, non-complete tasks for
// a calendar day. Used by the reminder scanner.
func (r *TaskRepository) AllActiveByDate(ctx context.Context, date string) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE date = $1 AND deleted_at IS NULL AND status NOT IN ('Complete', 'Deleted')`
	return r.queryTasks(ctx, query, date)
}

// FindDuplicate looks for a non-archived task with the same title, section,
// date, and time range. Time triples are compared by minute value, not raw
// JSON, so "9:00 AM" and "09:00 am" collide as they should. Returns nil when
// no duplicate exists; excludeID skips the task being edited.
func (r *TaskRepository) FindDuplicate(ctx context.Context, userID uuid.UUID, title, section, date string, start models.TimeOfDay, end *models.TimeOfDay, excludeID uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 AND date = $2 AND section = $3 AND deleted_at IS NULL AND lower(title) = lower($4)`
	candidates, err := r.queryTasks(ctx, query, userID, date, section, strings.TrimSpace(title))
	if err != nil {
		return nil, err
	}
	wantStart := timeutil.ToMinutes(start)
	wantEnd := -1
	if end != nil {
		wantEnd = timeutil.ToMinutes(*end)
	}
	for i := range candidates {
		c := &candidates[i]
		if c.ID == excludeID {
			continue
		}
		gotEnd := -1
		if c.EndTime != nil {
			gotEnd = timeutil.ToMinutes(*c.EndTime)
		}
		if timeutil.ToMinutes(c.StartTime) == wantStart && gotEnd == wantEnd {
			return c, nil
		}
	}
	return nil, nil
}

// SoftDeleteByIDs archives the user's tasks with the given ids. Returns the
// titles actually affected.
func (r *TaskRepository) SoftDeleteByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		UPDATE tasks
		SET status = 'Deleted', deleted_at = now(), updated_at = now()
		WHERE user_id = $1 AND id = ANY($2) AND deleted_at IS NULL
		RETURNING title
	`
	return r.queryTitles(ctx, query, userID, pq.Array(ids))
}

// SoftDeleteBySection archives every non-archived task in a section.
func (r *TaskRepository) SoftDeleteBySection(ctx context.Context, userID uuid.UUID, section string) ([]string, error) {
	query := `
		UPDATE tasks
		SET status = 'Deleted', deleted_at = now(), updated_at = now()
		WHERE user_id = $1 AND section = $2 AND deleted_at IS NULL
		RETURNING title
	`
	return r.queryTitles(ctx, query, userID, section)
}

// Restore brings archived tasks back: deleted_at cleared, status reset to
// Pending. Only archived rows are touched.
func (r *TaskRepository) Restore(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		UPDATE tasks
		SET status = 'Pending', deleted_at = NULL, updated_at = now()
		WHERE user_id = $1 AND id = ANY($2) AND deleted_at IS NOT NULL
		RETURNING title
	`
	return r.queryTitles(ctx, query, userID, pq.Array(ids))
}

// Update rewrites a task row
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks
		SET title = $2, section = $3, date = $4, start_time = $5, end_time = $6,
		    priority = $7, recurring = $8, collaborators = $9, status = $10, updated_at = $11
		WHERE id = $1
		RETURNING updated_at
	`

	startJSON, err := json.Marshal(task.StartTime)
	if err != nil {
		return fmt.Errorf("failed to marshal start time: %w", err)
	}
	endJSON, err := marshalNullable(task.EndTime)
	if err != nil {
		return fmt.Errorf("failed to marshal end time: %w", err)
	}
	collabJSON, err := json.Marshal(emptyIfNil(task.Collaborators))
	if err != nil {
		return fmt.Errorf("failed to marshal collaborators: %w", err)
	}

	err = r.db.QueryRowContext(ctx, query,
		task.ID,
		task.Title,
		task.Section,
		task.Date,
		startJSON,
		endJSON,
		nullableString((*string)(task.Priority)),
		nullableString((*string)(task.Recurring)),
		collabJSON,
		task.Status,
		time.Now(),
	).Scan(&task.UpdatedAt)

	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// PurgeArchivedBefore permanently deletes tasks archived before the cutoff.
// Admin retention operation only; nothing in the chat path reaches this.
func (r *TaskRepository) PurgeArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge archived tasks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged tasks: %w", err)
	}
	return n, nil
}

func (r *TaskRepository) queryTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) queryTitles(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update tasks: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating titles: %w", err)
	}
	return titles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var startJSON, collabJSON []byte
	var endJSON []byte
	var priority, recurring sql.NullString
	var deletedAt sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Section,
		&task.Date,
		&startJSON,
		&endJSON,
		&priority,
		&recurring,
		&collabJSON,
		&task.Status,
		&task.CreatedBy,
		&deletedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(startJSON, &task.StartTime); err != nil {
		return nil, fmt.Errorf("failed to unmarshal start time: %w", err)
	}
	if len(endJSON) > 0 {
		var end models.TimeOfDay
		if err := json.Unmarshal(endJSON, &end); err != nil {
			return nil, fmt.Errorf("failed to unmarshal end time: %w", err)
		}
		task.EndTime = &end
	}
	if err := json.Unmarshal(collabJSON, &task.Collaborators); err != nil {
		return nil, fmt.Errorf("failed to unmarshal collaborators: %w", err)
	}

	if priority.Valid {
		p := models.Priority(priority.String)
		task.Priority = &p
	}
	if recurring.Valid {
		rec := models.Recurring(recurring.String)
		task.Recurring = &rec
	}
	if deletedAt.Valid {
		task.DeletedAt = &deletedAt.Time
	}

	return task, nil
}

func marshalNullable(t *models.TimeOfDay) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
