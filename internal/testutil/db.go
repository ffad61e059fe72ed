package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/wallmag/wallmag-api/internal/migrate"
)

// TestDBConfig locates the integration-test Postgres.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig reads TEST_DB_*. The defaults match the compose test
// profile, which publishes Postgres on 55432; CI sets TEST_DB_PORT=5432.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "wallmag"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "wallmag"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "wallmag"),
	}
}

// DSN builds a pgx URL for cfg.
func (cfg TestDBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password),
		net.JoinHostPort(cfg.Host, cfg.Port), cfg.DBName,
		getEnvOrDefault("DB_SSL_MODE", "disable"))
}

func open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SkipIfNoTestDB skips t when the test database does not answer.
func SkipIfNoTestDB(t testing.TB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	db, err := open(ctx, DefaultTestDBConfig().DSN())
	if err != nil {
		if requireDB() {
			t.Fatalf("test database not available: %v", err)
		}
		t.Skipf("test database not available: %v", err)
	}
	_ = db.Close()
}

// WithAutoDB runs fn against a migrated database private to t: a fresh schema
// that is dropped when t finishes, so tests may run in parallel.
func WithAutoDB(t testing.TB, fn func(*sql.DB)) {
	t.Helper()
	fn(NewSchemaDB(t))
}

// NewSchemaDB creates a schema named after a random token, migrates it and
// returns a pool whose search_path points there.
func NewSchemaDB(t testing.TB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	base := DefaultTestDBConfig().DSN()
	admin, err := open(ctx, base)
	if err != nil {
		t.Fatalf("open admin connection: %v", err)
	}
	schema := "t_" + strings.ToLower(rand.Text())
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}

	u, err := url.Parse(base)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	q := u.Query()
	q.Set("search_path", schema+",public")
	u.RawQuery = q.Encode()

	db, err := open(ctx, u.String())
	if err != nil {
		_ = admin.Close()
		t.Fatalf("open schema connection: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		if _, err := admin.ExecContext(cctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		_ = admin.Close()
	})

	if err := migrate.Run(ctx, db, DiscardLogger()); err != nil {
		t.Fatalf("migrate schema %s: %v", schema, err)
	}
	return db
}
