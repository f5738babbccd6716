// Package db bootstraps the Postgres connection pool the rest of the engine
// runs its transactions against. Query logic itself lives in internal/ledger;
// this package only owns the pool lifecycle and schema loading, the split
// the teacher drew between its PostgresStore's connection plumbing and its
// domain-specific SQL.
package db

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool and verifies it with a ping.
func Connect(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	log.Println("moodring: connected to Postgres")
	return pool, nil
}

// InitSchema loads and executes schema.sql against the pool. Every
// statement in schema.sql uses CREATE ... IF NOT EXISTS, so re-running it
// against an already-initialized database is a no-op.
func InitSchema(ctx context.Context, pool *pgxpool.Pool, schemaPath string) error {
	schemaBytes, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := pool.Exec(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	log.Println("moodring: schema initialized")
	return nil
}
