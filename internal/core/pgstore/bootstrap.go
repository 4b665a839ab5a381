// Package pgstore bootstraps the shared Postgres schema (job store, access
// store, distributed rate-limit counter) and provides the advisory-lock
// helper every Postgres-backed component needs for safe concurrent setup.
// Grounded on the teacher's internal/core/database/bootstrap.go
// (go:embed + version-row-guarded bootstrap) and OneBook-AI's
// pkg/store/gorm_store.go (pg_advisory_lock/unlock around schema changes).
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// bootstrapLockID is an arbitrary fixed key for the schema-bootstrap
// advisory lock; it must never collide with the rate limiter's lock IDs,
// which are derived from a hash of the window key.
const bootstrapLockID int64 = 84173201

// EnsureBootstrapped runs scripts/initdb.sql exactly once, guarded by an
// advisory lock so concurrent process starts don't race on DDL.
func EnsureBootstrapped(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	return WithAdvisoryLock(ctx, db, bootstrapLockID, func(conn *sql.Conn) error {
		var exists bool
		if err := conn.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'docsearch_meta')
		`).Scan(&exists); err != nil {
			return fmt.Errorf("meta table check: %w", err)
		}
		if exists {
			return nil
		}

		sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
		if err != nil {
			return fmt.Errorf("read initdb.sql: %w", err)
		}
		if _, err := conn.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("exec bootstrap: %w", err)
		}
		return nil
	})
}

// WithAdvisoryLock runs fn while holding a session-level Postgres advisory
// lock on lockID, releasing it afterward even if fn fails.
func WithAdvisoryLock(ctx context.Context, db *sql.DB, lockID int64, fn func(*sql.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		return fmt.Errorf("acquire advisory lock %d: %w", lockID, err)
	}
	defer conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)

	return fn(conn)
}
