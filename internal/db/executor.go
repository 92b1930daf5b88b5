package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor runs a read-only query and returns raw row values in select order.
// Implementations must honour ctx cancellation.
type Executor interface {
	Dialect() Dialect
	Query(ctx context.Context, query string, args ...any) ([][]any, error)
}

// PostgresExecutor executes queries on a pgx pool.
type PostgresExecutor struct {
	pool *pgxpool.Pool
}

// NewPostgresExecutor wraps a pool.
func NewPostgresExecutor(pool *pgxpool.Pool) *PostgresExecutor {
	return &PostgresExecutor{pool: pool}
}

// Dialect implements Executor.
func (e *PostgresExecutor) Dialect() Dialect {
	return Dialect{name: DialectPostgres}
}

// Query implements Executor.
func (e *PostgresExecutor) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	var result [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
