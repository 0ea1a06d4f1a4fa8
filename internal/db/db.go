// Package db provides uniform query execution over either an embedded
// SQLite database or a client/server PostgreSQL database. Queries are
// written once against the canonical PostgreSQL dialect ($n placeholders,
// NOW(), SERIAL, TEXT[]); the SQLite adapter rewrites them textually
// before execution so both engines return the same row shape.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Row is a single result row keyed by column name.
type Row = map[string]any

// Result is the uniform outcome of executing one statement.
// Rows is populated for SELECTs and writes with a RETURNING clause;
// Affected and LastInsertID for plain writes.
type Result struct {
	Rows         []Row
	Affected     int64
	LastInsertID int64
}

// Adapter executes canonical-dialect SQL against a concrete engine.
// Engine selection happens once in Open and is fixed for the process
// lifetime.
type Adapter interface {
	// Query executes one statement with ordered parameters bound to
	// $1, $2, ... placeholders.
	Query(ctx context.Context, query string, args ...any) (*Result, error)

	// RunMigration executes a multi-statement schema script. Re-running
	// the same script must be a no-op ("already exists" is not an error).
	RunMigration(ctx context.Context, script string) error

	// Kind reports the backing engine, "sqlite" or "postgres".
	Kind() string

	Close() error
}

// sqliteScheme prefixes connection descriptors that select the embedded
// engine, e.g. "sqlite:./data/claw.db". Anything else is handed to the
// PostgreSQL driver unchanged.
const sqliteScheme = "sqlite:"

// Open connects to the engine selected by the connection descriptor.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.HasPrefix(databaseURL, sqliteScheme) {
		return openSQLite(ctx, strings.TrimPrefix(databaseURL, sqliteScheme), logger)
	}
	return openPostgres(ctx, databaseURL, logger)
}

// tagsColumn is the column conventionally holding an ordered tag list.
// SQLite stores it as a JSON-encoded TEXT column; PostgreSQL as TEXT[].
const tagsColumn = "tags"

// normalizeRow decodes the tags column into a native []string regardless
// of how the engine returned it. A malformed value decodes to an empty
// list rather than failing the read; this is a deliberate lossy-but-safe
// policy, so the drop is logged loudly.
func normalizeRow(row Row, logger *slog.Logger) Row {
	v, ok := row[tagsColumn]
	if !ok {
		return row
	}
	row[tagsColumn] = normalizeTags(v, logger)
	return row
}

func normalizeTags(v any, logger *slog.Logger) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case []byte:
		return decodeTagsJSON(string(t), logger)
	case string:
		return decodeTagsJSON(t, logger)
	default:
		logger.Warn("tags column has unexpected type, dropping value", "type", fmt.Sprintf("%T", v))
		return []string{}
	}
}

func decodeTagsJSON(s string, logger *slog.Logger) []string {
	if s == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		// Known data-loss risk: the stored blob is unreadable and the
		// caller gets an empty list instead of an error.
		logger.Warn("malformed tags value dropped", "value", s, "error", err)
		return []string{}
	}
	return tags
}

// encodeSQLiteArgs converts parameter values the embedded engine cannot
// bind natively. String slices become JSON text, mirroring the TEXT
// storage of array columns.
func encodeSQLiteArgs(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		switch t := a.(type) {
		case []string:
			b, err := json.Marshal(t)
			if err != nil {
				return nil, fmt.Errorf("encode arg %d: %w", i+1, err)
			}
			out[i] = string(b)
		case *[]string:
			if t == nil {
				out[i] = nil
				continue
			}
			b, err := json.Marshal(*t)
			if err != nil {
				return nil, fmt.Errorf("encode arg %d: %w", i+1, err)
			}
			out[i] = string(b)
		default:
			out[i] = a
		}
	}
	return out, nil
}
