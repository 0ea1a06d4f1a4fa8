package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// Cross-engine conformance: the same canonical queries must yield rows of
// identical logical shape on both backends. The PostgreSQL side needs a
// reachable server, so it is gated on CLAW_TEST_DATABASE_URL; without it
// the test skips rather than failing the run.
func TestConformance_SameLogicalResultsAcrossEngines(t *testing.T) {
	pgURL := os.Getenv("CLAW_TEST_DATABASE_URL")
	if pgURL == "" {
		t.Skip("CLAW_TEST_DATABASE_URL not set, skipping postgres conformance test")
	}
	ctx := context.Background()

	sqliteA, err := Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "conf.db"), slog.Default())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer sqliteA.Close()

	pgA, err := Open(ctx, pgURL, slog.Default())
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer pgA.Close()

	// Isolate the postgres side in a throwaway table name.
	table := fmt.Sprintf("conf_tasks_%d", time.Now().UnixNano())
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id SERIAL PRIMARY KEY,
	title VARCHAR(255) NOT NULL,
	status VARCHAR(50) DEFAULT 'backlog',
	tags TEXT[] DEFAULT '{}',
	created_at TIMESTAMP DEFAULT NOW()
);`, table)

	for _, a := range []Adapter{sqliteA, pgA} {
		if err := a.RunMigration(ctx, schema); err != nil {
			t.Fatalf("%s migration: %v", a.Kind(), err)
		}
	}
	defer pgA.Query(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table))

	insert := fmt.Sprintf(`INSERT INTO %s (title, status, tags) VALUES ($1, $2, $3) RETURNING *`, table)
	sel := fmt.Sprintf(`SELECT title, status, tags FROM %s WHERE status = $1 ORDER BY created_at DESC`, table)

	for _, a := range []Adapter{sqliteA, pgA} {
		res, err := a.Query(ctx, insert, "Conformance", "backlog", []string{"x", "y"})
		if err != nil {
			t.Fatalf("%s insert: %v", a.Kind(), err)
		}
		if len(res.Rows) != 1 {
			t.Fatalf("%s insert returned %d rows, want 1", a.Kind(), len(res.Rows))
		}
	}

	var shapes []Row
	for _, a := range []Adapter{sqliteA, pgA} {
		res, err := a.Query(ctx, sel, "backlog")
		if err != nil {
			t.Fatalf("%s select: %v", a.Kind(), err)
		}
		if len(res.Rows) != 1 {
			t.Fatalf("%s select returned %d rows, want 1", a.Kind(), len(res.Rows))
		}
		shapes = append(shapes, res.Rows[0])
	}

	for _, col := range []string{"title", "status", "tags"} {
		if !reflect.DeepEqual(shapes[0][col], shapes[1][col]) {
			t.Fatalf("column %s differs across engines: sqlite=%v postgres=%v", col, shapes[0][col], shapes[1][col])
		}
	}
}
