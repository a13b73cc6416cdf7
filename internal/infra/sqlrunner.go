package infra

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor runs marker-tagged queries. Every query must start with a
// "--sql <uuid>" line; the marker is logged and stripped before execution.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// SQLRunner executes against the pool outside of any transaction.
type SQLRunner struct {
	markedExecutor
	pool *pgxpool.Pool
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{markedExecutor: markedExecutor{db: pool, logger: logger}, pool: pool}
}

// InTx runs fn inside a read-committed transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
func (r *SQLRunner) InTx(ctx context.Context, fn func(SQLExecutor) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.logger.Error().Err(rbErr).Msg("sql: rollback failed")
		}
	}()
	if err = fn(markedExecutor{db: tx, logger: r.logger}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type markedExecutor struct {
	db     queryer
	logger zerolog.Logger
}

func (m markedExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	started := time.Now()
	tag, err := m.db.Exec(ctx, body, args...)
	if err != nil {
		m.logger.Error().Err(err).Str("sql", marker).Msg("sql: exec failed")
		return tag, err
	}
	m.logger.Debug().Str("sql", marker).Int64("rows", tag.RowsAffected()).Dur("took", time.Since(started)).Msg("sql: exec")
	return tag, nil
}

func (m markedExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, body, err := extractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	m.logger.Debug().Str("sql", marker).Msg("sql: query row")
	return loggingRow{row: m.db.QueryRow(ctx, body, args...), logger: m.logger, marker: marker}
}

func (m markedExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return nil, err
	}
	rows, err := m.db.Query(ctx, body, args...)
	if err != nil {
		m.logger.Error().Err(err).Str("sql", marker).Msg("sql: query failed")
		return nil, err
	}
	return &loggingRows{Rows: rows, logger: m.logger, marker: marker, started: time.Now()}, nil
}

type loggingRow struct {
	row    pgx.Row
	logger zerolog.Logger
	marker string
}

// Scan logs failures other than an empty result.
func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		l.logger.Error().Err(err).Str("sql", l.marker).Msg("sql: scan failed")
	}
	return err
}

type loggingRows struct {
	pgx.Rows
	logger  zerolog.Logger
	marker  string
	started time.Time
	n       int
}

func (l *loggingRows) Next() bool {
	ok := l.Rows.Next()
	if ok {
		l.n++
	}
	return ok
}

func (l *loggingRows) Close() {
	l.Rows.Close()
	if err := l.Rows.Err(); err != nil {
		l.logger.Error().Err(err).Str("sql", l.marker).Msg("sql: rows failed")
		return
	}
	l.logger.Debug().Str("sql", l.marker).Int("rows", l.n).Dur("took", time.Since(l.started)).Msg("sql: query")
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(...any) error {
	return e.err
}

func extractMarker(query string) (string, string, error) {
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

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports whether err is a unique or exclusion constraint
// failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
