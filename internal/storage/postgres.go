package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createPostgresSchemaSQL = `
CREATE TABLE IF NOT EXISTS request_log (
    id BIGSERIAL PRIMARY KEY,
    log_key TEXT NOT NULL,
    entry TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_request_log_key_id ON request_log(log_key, id);
`

// PostgresLog implements TimestampLog on a PostgreSQL table using a pgx
// connection pool. Insertion order is tracked by a BIGSERIAL id.
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog creates a new PostgreSQL timestamp log and ensures its schema.
func NewPostgresLog(config Config) (*PostgresLog, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns, ok := config.Options["max_open_conns"].(int); ok && maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createPostgresSchemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create request_log table: %w", err)
	}

	return &PostgresLog{pool: pool}, nil
}

// Read returns the entries for key, oldest first
func (ps *PostgresLog) Read(ctx context.Context, key string) ([]string, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	rows, err := ps.pool.Query(ctx,
		`SELECT entry FROM request_log WHERE log_key = $1 ORDER BY id ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := []string{}
	for rows.Next() {
		var entry string
		if err := rows.Scan(&entry); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	return entries, nil
}

// Append adds entry at the tail of the log for key
func (ps *PostgresLog) Append(ctx context.Context, key, entry string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if _, err := ps.pool.Exec(ctx,
		`INSERT INTO request_log (log_key, entry) VALUES ($1, $2)`, key, entry); err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// PopOldest removes the head entry for key
func (ps *PostgresLog) PopOldest(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if _, err := ps.pool.Exec(ctx,
		`DELETE FROM request_log WHERE id = (SELECT MIN(id) FROM request_log WHERE log_key = $1)`, key); err != nil {
		return fmt.Errorf("failed to pop oldest entry: %w", err)
	}
	return nil
}

// Clear removes every entry for key
func (ps *PostgresLog) Clear(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if _, err := ps.pool.Exec(ctx, `DELETE FROM request_log WHERE log_key = $1`, key); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	return nil
}

// Ping verifies the storage backend is reachable and operational.
func (ps *PostgresLog) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the storage connection.
func (ps *PostgresLog) Close() error {
	ps.pool.Close()
	return nil
}
