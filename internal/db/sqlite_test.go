package db

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
)

const testSchema = `
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

DO $$
BEGIN
	ALTER TABLE tasks ADD CONSTRAINT tasks_status_chk CHECK (status <> '');
EXCEPTION WHEN duplicate_object THEN null;
END $$;

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
`

func openTestAdapter(t *testing.T) Adapter {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "claw.db")
	a, err := Open(ctx, "sqlite:"+dbPath, slog.Default())
	if err != nil {
		t.Fatalf("open adapter: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if err := a.RunMigration(ctx, testSchema); err != nil {
		t.Fatalf("run migration: %v", err)
	}
	return a
}

func TestSQLite_EngineSelection(t *testing.T) {
	a := openTestAdapter(t)
	if a.Kind() != "sqlite" {
		t.Fatalf("Kind() = %q, want sqlite", a.Kind())
	}
}

func TestSQLite_MigrationIdempotent(t *testing.T) {
	a := openTestAdapter(t)
	// Second run must be a clean no-op.
	if err := a.RunMigration(context.Background(), testSchema); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
}

func TestSQLite_InsertReturningAndTagsRoundTrip(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	res, err := a.Query(ctx,
		`INSERT INTO tasks (title, description, status, tags, agent_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING *`,
		"Fix bug", nil, "backlog", []string{"a", "b"}, nil)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("insert returned %d rows, want 1", len(res.Rows))
	}
	row := res.Rows[0]
	if row["title"] != "Fix bug" {
		t.Fatalf("title = %v, want Fix bug", row["title"])
	}
	tags, ok := row["tags"].([]string)
	if !ok {
		t.Fatalf("tags type = %T, want []string", row["tags"])
	}
	if !reflect.DeepEqual(tags, []string{"a", "b"}) {
		t.Fatalf("tags = %v, want [a b] in insertion order", tags)
	}

	// Read back through the row path.
	sel, err := a.Query(ctx, `SELECT * FROM tasks WHERE status = $1 ORDER BY created_at DESC`, "backlog")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(sel.Rows) != 1 {
		t.Fatalf("select returned %d rows, want 1", len(sel.Rows))
	}
	if got := sel.Rows[0]["tags"].([]string); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("round-trip tags = %v, want [a b]", got)
	}
}

func TestSQLite_PlainWriteReportsAffectedAndLastID(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	res, err := a.Query(ctx, `INSERT INTO tasks (title) VALUES ($1)`, "one")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if res.Affected != 1 {
		t.Fatalf("affected = %d, want 1", res.Affected)
	}
	if res.LastInsertID == 0 {
		t.Fatal("last insert id not reported")
	}

	upd, err := a.Query(ctx, `UPDATE tasks SET status = $1 WHERE id = $2`, "todo", res.LastInsertID)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Affected != 1 {
		t.Fatalf("update affected = %d, want 1", upd.Affected)
	}
	if len(upd.Rows) != 0 {
		t.Fatalf("plain write returned %d rows, want 0", len(upd.Rows))
	}
}

func TestSQLite_MalformedTagsDecodeToEmpty(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	if _, err := a.Query(ctx, `INSERT INTO tasks (title, tags) VALUES ($1, $2)`, "broken", "{not json"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	res, err := a.Query(ctx, `SELECT * FROM tasks WHERE title = $1`, "broken")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	tags, ok := res.Rows[0]["tags"].([]string)
	if !ok {
		t.Fatalf("tags type = %T, want []string", res.Rows[0]["tags"])
	}
	if len(tags) != 0 {
		t.Fatalf("malformed tags = %v, want empty", tags)
	}
}

func TestSQLite_UnsupportedMigrationStatementsSkipped(t *testing.T) {
	a := openTestAdapter(t)
	script := testSchema + `
SELECT column_name FROM information_schema.columns WHERE table_name = 'tasks';
ALTER TABLE tasks ADD COLUMN priority INTEGER;
`
	// Skipped, not failed.
	if err := a.RunMigration(context.Background(), script); err != nil {
		t.Fatalf("migration with unsupported statements: %v", err)
	}
}
