// Package migrate applies the embedded SQL schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// lockKey serializes concurrent Run calls from replicas starting together.
const lockKey = 0x77616c6c // "wall"

const (
	createTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	appliedSQL = `SELECT version FROM schema_migrations`
	lockSQL    = `SELECT pg_advisory_xact_lock($1)`
	recheckSQL = `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`
	recordSQL  = `INSERT INTO schema_migrations (version) VALUES ($1)`
)

// Versions lists the embedded migration files in apply order.
func Versions() ([]string, error) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	for i, n := range names {
		names[i] = strings.TrimPrefix(n, "migrations/")
	}
	slices.Sort(names)
	return names, nil
}

// Run applies every embedded migration not yet recorded in schema_migrations.
// Each migration runs in its own transaction. A nil logger uses slog.Default().
func Run(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "migrations")

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	files, err := Versions()
	if err != nil {
		return err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	pending := 0
	for _, file := range files {
		version := strings.TrimSuffix(file, ".sql")
		if applied[version] {
			continue
		}
		ran, err := apply(ctx, db, file, version)
		if err != nil {
			return err
		}
		if ran {
			pending++
			logger.InfoContext(ctx, "applied migration", "version", version)
		}
	}
	logger.DebugContext(ctx, "migrations up to date", "total", len(files), "applied_now", pending)
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, appliedSQL)
	if err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		out[v] = true
	}
	return out, rows.Err()
}

// apply runs one migration under the advisory lock. It reports false when
// another process recorded the version while this one waited for the lock.
func apply(ctx context.Context, db *sql.DB, file, version string) (ran bool, err error) {
	body, err := migrationsFS.ReadFile("migrations/" + file)
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", file, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin migration %s: %w", file, err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback migration %s: %w", file, rbErr))
		}
	}()

	if _, err := tx.ExecContext(ctx, lockSQL, lockKey); err != nil {
		return false, fmt.Errorf("lock migrations: %w", err)
	}
	var done bool
	if err := tx.QueryRowContext(ctx, recheckSQL, version).Scan(&done); err != nil {
		return false, fmt.Errorf("check migration %s: %w", file, err)
	}
	if done {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return false, fmt.Errorf("exec migration %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, recordSQL, version); err != nil {
		return false, fmt.Errorf("record migration %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", file, err)
	}
	return true, nil
}
