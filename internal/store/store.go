// Package store provides typed operations on the three kanban entities
// (Task, Agent, Message) on top of the engine-neutral db.Adapter. All
// queries are written in the canonical dialect; the adapter handles the
// engine differences.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/buddybot89/claw-control/internal/db"
)

// ErrNotFound marks update/delete targets that do not exist. No partial
// effect has taken place when it is returned.
var ErrNotFound = errors.New("not found")

// ErrCompleted marks an advance request against a terminal task.
var ErrCompleted = errors.New("task already completed")

// ValidationError rejects a mutation before it touches storage.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// Task is a kanban card. Tags preserve insertion order; AgentID is a
// weak reference with no cascading delete.
type Task struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	Tags        []string `json:"tags"`
	AgentID     *int64   `json:"agent_id"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// Agent is a board member. Name is the natural key used by config
// reload; the schema declares it UNIQUE.
type Agent struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// Message is a log line optionally attributed to an agent. AgentName is
// a read-time join for display, not an ownership relation.
type Message struct {
	ID        int64  `json:"id"`
	AgentID   *int64 `json:"agent_id"`
	Message   string `json:"message"`
	AgentName string `json:"agent_name,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Store executes the domain operations. It carries no state beyond the
// adapter handle; every mutation is a single independent statement.
type Store struct {
	db     db.Adapter
	logger *slog.Logger
}

func New(adapter db.Adapter, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: adapter, logger: logger}
}

// Adapter exposes the underlying engine handle, mainly for health checks.
func (s *Store) Adapter() db.Adapter { return s.db }

// Migrate applies the schema. Safe to re-run.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.RunMigration(ctx, schema)
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.db.Query(ctx, "SELECT 1 AS ok")
	return err
}

// schema is written once in the canonical dialect. The embedded engine
// receives it through the adapter's textual translation; the DO block
// and the introspection-dependent statements only run on PostgreSQL.
const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id SERIAL PRIMARY KEY,
	title VARCHAR(255) NOT NULL,
	description TEXT,
	status VARCHAR(50) DEFAULT 'backlog',
	tags TEXT[] DEFAULT '{}',
	agent_id INTEGER,
	created_at TIMESTAMP DEFAULT NOW(),
	updated_at TIMESTAMP DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS agents (
	id SERIAL PRIMARY KEY,
	name VARCHAR(255) NOT NULL UNIQUE,
	description TEXT,
	role VARCHAR(100) DEFAULT 'Agent',
	status VARCHAR(50) DEFAULT 'idle',
	created_at TIMESTAMP DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS agent_messages (
	id SERIAL PRIMARY KEY,
	agent_id INTEGER,
	message TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT NOW()
);

DO $$
BEGIN
	ALTER TABLE tasks ADD CONSTRAINT tasks_status_chk
		CHECK (status IN ('backlog', 'todo', 'in_progress', 'review', 'completed'));
EXCEPTION WHEN duplicate_object THEN null;
END $$;

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_agent ON tasks(agent_id);
CREATE INDEX IF NOT EXISTS idx_messages_agent ON agent_messages(agent_id);
`

// Row conversion helpers. SQLite hands back TEXT timestamps and int64
// ids; PostgreSQL hands back time.Time and int32. Both are flattened to
// the wire representation here.

func rowInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func rowInt64Ptr(v any) *int64 {
	if v == nil {
		return nil
	}
	n := rowInt64(v)
	return &n
}

func rowString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// rowTime renders a timestamp column as RFC 3339 UTC regardless of how
// the engine returned it.
func rowTime(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC().Format(time.RFC3339)
			}
		}
		return t
	default:
		return fmt.Sprint(t)
	}
}

func rowTags(v any) []string {
	if tags, ok := v.([]string); ok {
		return tags
	}
	return []string{}
}

func taskFromRow(r db.Row) Task {
	return Task{
		ID:          rowInt64(r["id"]),
		Title:       rowString(r["title"]),
		Description: rowString(r["description"]),
		Status:      Status(rowString(r["status"])),
		Tags:        rowTags(r["tags"]),
		AgentID:     rowInt64Ptr(r["agent_id"]),
		CreatedAt:   rowTime(r["created_at"]),
		UpdatedAt:   rowTime(r["updated_at"]),
	}
}

func agentFromRow(r db.Row) Agent {
	return Agent{
		ID:          rowInt64(r["id"]),
		Name:        rowString(r["name"]),
		Description: rowString(r["description"]),
		Role:        rowString(r["role"]),
		Status:      rowString(r["status"]),
		CreatedAt:   rowTime(r["created_at"]),
	}
}

func messageFromRow(r db.Row) Message {
	return Message{
		ID:        rowInt64(r["id"]),
		AgentID:   rowInt64Ptr(r["agent_id"]),
		Message:   rowString(r["message"]),
		AgentName: rowString(r["agent_name"]),
		CreatedAt: rowTime(r["created_at"]),
	}
}
