package infra

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is the postgres surface the media store depends on.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// SQLRunner executes marker-tagged statements against postgres. Every call is
// traced under its marker with the elapsed time.
type SQLRunner struct {
	Pool   *pgxpool.Pool
	Logger zerolog.Logger
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{Pool: pool, Logger: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, trimmed, err := ExtractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	trace := startTrace(r.Logger, marker, "exec")
	tag, err := r.Pool.Exec(ctx, trimmed, args...)
	trace.done(err, tag.RowsAffected())
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, trimmed, err := ExtractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	trace := startTrace(r.Logger, marker, "query_row")
	return tracedRow{row: r.Pool.QueryRow(ctx, trimmed, args...), trace: trace}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, trimmed, err := ExtractMarker(query)
	if err != nil {
		return nil, err
	}
	trace := startTrace(r.Logger, marker, "query")
	rows, err := r.Pool.Query(ctx, trimmed, args...)
	if err != nil {
		trace.done(err, 0)
		return nil, err
	}
	return &tracedRows{Rows: rows, trace: trace}, nil
}

// sqlTrace logs one statement when it finishes.
type sqlTrace struct {
	logger zerolog.Logger
	marker string
	op     string
	start  time.Time
}

func startTrace(logger zerolog.Logger, marker, op string) sqlTrace {
	return sqlTrace{logger: logger, marker: marker, op: op, start: time.Now()}
}

func (t sqlTrace) done(err error, rows int64) {
	ev := t.logger.Debug()
	if err != nil {
		ev = t.logger.Error().Err(err)
	}
	ev.Str("marker", t.marker).
		Str("op", t.op).
		Int64("rows", rows).
		Dur("elapsed", time.Since(t.start)).
		Msg("sql")
}

// scanned finishes a single-row trace; a missing row is a result, not a
// failure.
func (t sqlTrace) scanned(err error) {
	switch {
	case err == nil:
		t.done(nil, 1)
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, sql.ErrNoRows):
		t.done(nil, 0)
	default:
		t.done(err, 0)
	}
}

type tracedRow struct {
	row   pgx.Row
	trace sqlTrace
}

func (l tracedRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	l.trace.scanned(err)
	return err
}

type tracedRows struct {
	pgx.Rows
	trace sqlTrace
	n     int64
}

func (l *tracedRows) Next() bool {
	if l.Rows.Next() {
		l.n++
		return true
	}
	return false
}

func (l *tracedRows) Close() {
	l.Rows.Close()
	l.trace.done(l.Rows.Err(), l.n)
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

// ExtractMarker splits the mandatory "--sql <uuid>" first line from query and
// returns the marker and the remaining statement.
func ExtractMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	lines := strings.Split(trimmed, "\n")
	if len(lines) == 0 {
		return "", "", errors.New("empty query")
	}
	markerLine := strings.TrimSpace(lines[0])
	if !markerRegexp.MatchString(markerLine) {
		return "", "", errors.New("sql marker missing or invalid")
	}
	return strings.TrimSpace(strings.TrimPrefix(markerLine, "--sql ")), strings.Join(lines[1:], "\n"), nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
