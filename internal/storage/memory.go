package storage

import (
	"context"
	"sync"
)

// MemoryLog implements TimestampLog using in-memory slices.
// This provider is ideal for development, testing, and single-instance
// deployments where losing request history on restart is acceptable.
type MemoryLog struct {
	mu      sync.RWMutex
	entries map[string][]string
}

// NewMemoryLog creates a new memory-based timestamp log
func NewMemoryLog(config Config) (*MemoryLog, error) {
	return &MemoryLog{
		entries: make(map[string][]string),
	}, nil
}

// Read returns a copy of the entries for key, oldest first
func (m *MemoryLog) Read(ctx context.Context, key string) ([]string, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent external modification
	result := make([]string, len(m.entries[key]))
	copy(result, m.entries[key])
	return result, nil
}

// Append adds entry at the tail of the log for key
func (m *MemoryLog) Append(ctx context.Context, key, entry string) error {
	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = append(m.entries[key], entry)
	return nil
}

// PopOldest removes the head entry for key
func (m *MemoryLog) PopOldest(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.entries[key]
	switch len(list) {
	case 0:
		return nil
	case 1:
		delete(m.entries, key)
	default:
		m.entries[key] = list[1:]
	}
	return nil
}

// Clear removes every entry for key
func (m *MemoryLog) Clear(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Ping always succeeds for memory storage
func (m *MemoryLog) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for memory storage
func (m *MemoryLog) Close() error {
	return nil
}

// Len returns the number of keys currently holding entries.
func (m *MemoryLog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
