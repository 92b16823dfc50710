package storage

import (
	"context"
	"time"
)

// TimestampLog is an ordered list of request timestamps per key. Entries are
// appended at the tail and removed from the head, so the oldest entry is always
// first. Entries are opaque strings to the storage layer; interpreting them as
// timestamps is the caller's job.
//
// Implementations must be safe for concurrent use. Each call is individually
// consistent for its key; no cross-call transaction is implied.
type TimestampLog interface {
	// Read returns every entry for key, oldest first. It never mutates the log.
	// A key with no entries yields an empty slice.
	Read(ctx context.Context, key string) ([]string, error)

	// Append adds entry at the tail of the log for key, creating the log if needed.
	Append(ctx context.Context, key, entry string) error

	// PopOldest removes the head entry for key. It is a no-op on an empty log.
	PopOldest(ctx context.Context, key string) error

	// Clear removes every entry for key.
	Clear(ctx context.Context, key string) error

	// Ping verifies the backend is reachable and operational.
	Ping(ctx context.Context) error

	// Close releases connections and other resources.
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (memory, json, sqlite, postgres, redis)
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// Redis holds connection settings for the redis backend
	Redis RedisOptions `json:"redis,omitempty" yaml:"redis,omitempty"`

	// Additional options for specific backends
	Options map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`
}

// RedisOptions configures the redis backend.
type RedisOptions struct {
	Addr     string        `json:"addr" yaml:"addr"`
	Password string        `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int           `json:"db" yaml:"db"`
	PoolSize int           `json:"pool_size,omitempty" yaml:"pool_size,omitempty"`
	KeyTTL   time.Duration `json:"key_ttl,omitempty" yaml:"key_ttl,omitempty"` // refreshed on every append; 0 disables expiry
}
