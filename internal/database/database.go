// Package database holds the Postgres repositories. Time-of-day triples and
// collaborator sets are stored as JSONB so the wire shape survives storage
// unchanged.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Postgres driver
	_ "github.com/lib/pq"
)

var (
	// ErrNotFound indicates the requested row does not exist
	ErrNotFound = errors.New("not found")
)

// DB wraps the sql connection pool.
type DB struct {
	*sql.DB
}

// Connect opens the Postgres pool, verifies connectivity, and runs boot
// migrations.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{DB: sqlDB}
	if err := db.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
