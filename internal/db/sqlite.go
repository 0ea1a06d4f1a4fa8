package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteAdapter is the embedded single-file engine. It owns the dialect
// and placeholder rewrites; callers keep writing canonical PostgreSQL.
type sqliteAdapter struct {
	db     *sql.DB
	logger *slog.Logger
}

func openSQLite(ctx context.Context, path string, logger *slog.Logger) (*sqliteAdapter, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", abs)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	a := &sqliteAdapter{db: sqlDB, logger: logger}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	logger.Info("connected to sqlite database", "path", abs)
	return a, nil
}

func (a *sqliteAdapter) Kind() string { return "sqlite" }

func (a *sqliteAdapter) Close() error { return a.db.Close() }

// Query rewrites the canonical statement for SQLite and routes it by
// statement class: reads and RETURNING writes go through the row path,
// plain writes report affected count and last insert id.
func (a *sqliteAdapter) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	rewritten := rewriteDialect(rewritePlaceholders(query))
	bound, err := encodeSQLiteArgs(args)
	if err != nil {
		return nil, err
	}

	var res *Result
	err = retryOnBusy(ctx, 5, func() error {
		var execErr error
		switch {
		case isSelect(rewritten):
			res, execErr = a.queryRows(ctx, rewritten, bound, 0)
		case hasReturning(rewritten):
			res, execErr = a.queryRows(ctx, rewritten, bound, 1)
		default:
			res, execErr = a.exec(ctx, rewritten, bound)
		}
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite query: %w", err)
	}
	return res, nil
}

func (a *sqliteAdapter) queryRows(ctx context.Context, query string, args []any, limit int) (*Result, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	res := &Result{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		res.Rows = append(res.Rows, normalizeRow(row, a.logger))
		if limit > 0 && len(res.Rows) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	res.Affected = int64(len(res.Rows))
	return res, nil
}

func (a *sqliteAdapter) exec(ctx context.Context, query string, args []any) (*Result, error) {
	info, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	affected, _ := info.RowsAffected()
	lastID, _ := info.LastInsertId()
	return &Result{Affected: affected, LastInsertID: lastID}, nil
}

// RunMigration executes the schema script fragment by fragment, skipping
// constructs that have no SQLite equivalent and tolerating re-runs.
func (a *sqliteAdapter) RunMigration(ctx context.Context, script string) error {
	for _, stmt := range splitStatements(script) {
		converted := rewriteDialect(stmt)
		if unsupportedBySQLite(converted) {
			a.logger.Info("skipping statement with no sqlite equivalent", "statement", firstLine(converted))
			continue
		}
		if _, err := a.db.ExecContext(ctx, converted); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return fmt.Errorf("migration statement %q: %w", firstLine(converted), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// retryOnBusy retries f when SQLite reports BUSY or LOCKED, with
// exponential backoff and bounded jitter on top of the driver's own
// busy_timeout.
func retryOnBusy(ctx context.Context, maxRetries int, f func() error) error {
	const baseDelay = 50 * time.Millisecond
	const maxDelay = 500 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = f()
		if err == nil || !isSQLiteBusy(err) || attempt == maxRetries {
			return err
		}
		delay := baseDelay << uint(attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		jitter := time.Duration(rand.IntN(int(delay / 2)))
		delay = delay - delay/4 + jitter

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
