package infra

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"
)

// RowScanner is the part of a single-row result the stores consume.
type RowScanner interface {
	Scan(dest ...any) error
}

// SQLiteRunner applies the SQLRunner marker discipline to a database/sql
// handle backed by go-sqlite3.
type SQLiteRunner struct {
	DB     *sql.DB
	Logger zerolog.Logger
}

func NewSQLiteRunner(db *sql.DB, logger zerolog.Logger) *SQLiteRunner {
	return &SQLiteRunner{DB: db, Logger: logger}
}

func (r *SQLiteRunner) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	marker, trimmed, err := ExtractMarker(query)
	if err != nil {
		return nil, err
	}
	trace := startTrace(r.Logger, marker, "exec")
	res, err := r.DB.ExecContext(ctx, trimmed, args...)
	var affected int64
	if err == nil {
		affected, _ = res.RowsAffected()
	}
	trace.done(err, affected)
	return res, err
}

func (r *SQLiteRunner) QueryRow(ctx context.Context, query string, args ...any) RowScanner {
	marker, trimmed, err := ExtractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	trace := startTrace(r.Logger, marker, "query_row")
	return sqliteRow{row: r.DB.QueryRowContext(ctx, trimmed, args...), trace: trace}
}

// Query traces only the statement start; callers own the *sql.Rows.
func (r *SQLiteRunner) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	marker, trimmed, err := ExtractMarker(query)
	if err != nil {
		return nil, err
	}
	trace := startTrace(r.Logger, marker, "query")
	rows, err := r.DB.QueryContext(ctx, trimmed, args...)
	trace.done(err, 0)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type sqliteRow struct {
	row   *sql.Row
	trace sqlTrace
}

func (l sqliteRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	l.trace.scanned(err)
	return err
}
