package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createSQLiteSchemaSQL = `
CREATE TABLE IF NOT EXISTS request_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    log_key TEXT NOT NULL,
    entry TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_request_log_key_id ON request_log(log_key, id);
`

// SQLiteLog implements TimestampLog on an SQLite table. Insertion order is
// tracked by an autoincrement id, so the head of a log is its smallest id.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog opens the database named by the connection string and creates
// the request_log table if it does not exist.
func NewSQLiteLog(config Config) (*SQLiteLog, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers anyway; a single connection also keeps
	// ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteLog{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteLog) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createSQLiteSchemaSQL); err != nil {
		return fmt.Errorf("failed to create request_log table: %w", err)
	}
	return nil
}

// Read returns the entries for key, oldest first
func (s *SQLiteLog) Read(ctx context.Context, key string) ([]string, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entry FROM request_log WHERE log_key = ? ORDER BY id ASC`, key)
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
func (s *SQLiteLog) Append(ctx context.Context, key, entry string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO request_log (log_key, entry) VALUES (?, ?)`, key, entry); err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// PopOldest removes the head entry for key
func (s *SQLiteLog) PopOldest(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM request_log WHERE id = (SELECT MIN(id) FROM request_log WHERE log_key = ?)`, key); err != nil {
		return fmt.Errorf("failed to pop oldest entry: %w", err)
	}
	return nil
}

// Clear removes every entry for key
func (s *SQLiteLog) Clear(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM request_log WHERE log_key = ?`, key); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable
func (s *SQLiteLog) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteLog) Close() error {
	return s.db.Close()
}
