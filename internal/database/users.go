package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskmateai/taskmate/internal/models"
)

// UserRepository handles user directory operations
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// List returns every known user. The directory is small; collaborator
// resolution matches against it in memory.
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, email, name FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		var name sql.NullString
		if err := rows.Scan(&user.ID, &user.Email, &name); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if name.Valid {
			user.Name = &name.String
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// ByID retrieves a single user
func (r *UserRepository) ByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	var name sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT id, email, name FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Email, &name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if name.Valid {
		user.Name = &name.String
	}
	return &user, nil
}

// Upsert ensures a user row exists for an authenticated identity.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET name = COALESCE(EXCLUDED.name, users.name)
	`
	var name any
	if user.Name != nil {
		name = *user.Name
	}
	if _, err := r.db.ExecContext(ctx, query, user.ID, user.Email, name); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}
