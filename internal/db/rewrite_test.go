package db

import (
	"reflect"
	"testing"
)

func TestRewritePlaceholders(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single", "SELECT * FROM tasks WHERE id = $1", "SELECT * FROM tasks WHERE id = ?"},
		{"ordered", "UPDATE tasks SET title = $1, status = $2 WHERE id = $3", "UPDATE tasks SET title = ?, status = ? WHERE id = ?"},
		{"double digit", "INSERT INTO t VALUES ($9, $10, $11)", "INSERT INTO t VALUES (?, ?, ?)"},
		{"none", "SELECT COUNT(*) FROM agents", "SELECT COUNT(*) FROM agents"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rewritePlaceholders(tt.in); got != tt.want {
				t.Fatalf("rewritePlaceholders(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRewriteDialect(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"now",
			"UPDATE tasks SET updated_at = NOW() WHERE id = ?",
			"UPDATE tasks SET updated_at = (datetime('now')) WHERE id = ?",
		},
		{
			"serial pk",
			"CREATE TABLE t (id SERIAL PRIMARY KEY)",
			"CREATE TABLE t (id INTEGER PRIMARY KEY AUTOINCREMENT)",
		},
		{
			"array column with default",
			"tags TEXT[] DEFAULT '{}'",
			"tags TEXT DEFAULT '[]'",
		},
		{
			"varchar widened",
			"title VARCHAR(255) NOT NULL",
			"title TEXT NOT NULL",
		},
		{
			"timestamp to text",
			"created_at TIMESTAMP DEFAULT NOW()",
			"created_at TEXT DEFAULT (datetime('now'))",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rewriteDialect(tt.in); got != tt.want {
				t.Fatalf("rewriteDialect(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStatementClassification(t *testing.T) {
	if !isSelect("  select * from tasks") {
		t.Fatal("lowercase select not classified as read")
	}
	if !isSelect("WITH t AS (SELECT 1) SELECT * FROM t") {
		t.Fatal("CTE not classified as read")
	}
	if isSelect("INSERT INTO tasks DEFAULT VALUES") {
		t.Fatal("insert classified as read")
	}
	if !hasReturning("DELETE FROM tasks WHERE id = ? RETURNING *") {
		t.Fatal("returning clause not detected")
	}
	if hasReturning("DELETE FROM tasks WHERE id = ?") {
		t.Fatal("returning detected where absent")
	}
}

func TestSplitStatements(t *testing.T) {
	script := `
CREATE TABLE a (id SERIAL PRIMARY KEY);

DO $$
BEGIN
	ALTER TABLE a ADD CONSTRAINT chk CHECK (id > 0);
EXCEPTION WHEN duplicate_object THEN null;
END $$;

CREATE INDEX IF NOT EXISTS idx_a ON a(id);
`
	got := splitStatements(script)
	want := []string{
		"CREATE TABLE a (id SERIAL PRIMARY KEY)",
		"CREATE INDEX IF NOT EXISTS idx_a ON a(id)",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitStatements = %#v, want %#v", got, want)
	}
}

func TestUnsupportedBySQLite(t *testing.T) {
	if !unsupportedBySQLite("SELECT column_name FROM information_schema.columns") {
		t.Fatal("introspection query not flagged")
	}
	if !unsupportedBySQLite("ALTER TABLE tasks ADD COLUMN x TEXT") {
		t.Fatal("alter table not flagged")
	}
	if unsupportedBySQLite("CREATE TABLE tasks (id SERIAL PRIMARY KEY)") {
		t.Fatal("create table flagged as unsupported")
	}
}
