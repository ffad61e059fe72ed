// Package pgxutil runs native pgx queries against a database/sql pool.
//
// Repositories keep a *sql.DB for sqlmock-friendly wiring and migrations but
// scan rows with pgx's struct mapping, which needs the underlying *pgx.Conn.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

// ErrNotPgx is returned when the pool was not opened with the pgx stdlib driver.
var ErrNotPgx = errors.New("pgxutil: driver connection is not *stdlib.Conn")

// WithConn borrows one connection from db for the duration of fn.
func WithConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	if db == nil {
		return errors.New("pgxutil: nil database")
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return ErrNotPgx
		}
		return fn(std.Conn())
	})
}

// QueryOne runs query and maps exactly one row onto T by column name.
// It returns pgx.ErrNoRows when the query matches nothing.
func QueryOne[T any](ctx context.Context, db *sql.DB, query string, args ...any) (T, error) {
	var out T
	err := WithConn(ctx, db, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
		return err
	})
	return out, err
}

// QueryAll runs query and maps every row onto T by column name.
func QueryAll[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	var out []T
	err := WithConn(ctx, db, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[T])
		return err
	})
	return out, err
}

// Exec runs a statement and returns the number of rows it touched.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (int64, error) {
	var tag pgconn.CommandTag
	err := WithConn(ctx, db, func(conn *pgx.Conn) error {
		var err error
		tag, err = conn.Exec(ctx, query, args...)
		return err
	})
	return tag.RowsAffected(), err
}
