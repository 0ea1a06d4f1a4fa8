package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresAdapter is the client/server engine. The canonical dialect is
// native here, so statements pass through unchanged.
type postgresAdapter struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func openPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*postgresAdapter, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	// Ping to fail fast.
	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	defer cancelPing()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("connected to postgres database")
	return &postgresAdapter{pool: pool, logger: logger}, nil
}

func (a *postgresAdapter) Kind() string { return "postgres" }

func (a *postgresAdapter) Close() error {
	a.pool.Close()
	return nil
}

func (a *postgresAdapter) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres query: %w", err)
	}
	defer rows.Close()

	res := &Result{}
	var fields []pgconn.FieldDescription
	for rows.Next() {
		if fields == nil {
			fields = rows.FieldDescriptions()
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		res.Rows = append(res.Rows, normalizeRow(row, a.logger))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres rows: %w", err)
	}
	res.Affected = rows.CommandTag().RowsAffected()
	return res, nil
}

// RunMigration executes the script verbatim; procedural blocks and DDL
// guards are native to this engine.
func (a *postgresAdapter) RunMigration(ctx context.Context, script string) error {
	if _, err := a.pool.Exec(ctx, script); err != nil {
		return fmt.Errorf("postgres migration: %w", err)
	}
	return nil
}
