package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONLog implements TimestampLog on top of a single JSON file.
// All entries are held in memory and the file is rewritten after every
// mutation. It suits single-process deployments that want request history to
// survive a restart without running a database.
type JSONLog struct {
	filePath     string
	mu           sync.RWMutex
	data         *JSONData
	lastModified time.Time
}

// JSONData represents the structure of data stored in JSON format
type JSONData struct {
	Logs        map[string][]string `json:"logs"`
	LastUpdated time.Time           `json:"last_updated"`
}

// NewJSONLog creates a new JSON file-based timestamp log
func NewJSONLog(config Config) (*JSONLog, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("path is required for JSON storage")
	}

	storage := &JSONLog{
		filePath: config.Path,
	}

	// Initialize with empty data if file doesn't exist
	if err := storage.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}

	if err := storage.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load initial data: %w", err)
	}

	return storage, nil
}

// ensureFileExists creates the JSON file with empty data if it doesn't exist
func (j *JSONLog) ensureFileExists() error {
	if _, err := os.Stat(j.filePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return j.saveData(&JSONData{Logs: map[string][]string{}})
	}
	return nil
}

// loadData reloads the file when it changed on disk since the last load.
// Callers must not hold j.mu.
func (j *JSONLog) loadData() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	info, err := os.Stat(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	if j.data != nil && !info.ModTime().After(j.lastModified) {
		return nil
	}

	fileData, err := os.ReadFile(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var data JSONData
	if err := json.Unmarshal(fileData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if data.Logs == nil {
		data.Logs = map[string][]string{}
	}

	j.data = &data
	j.lastModified = info.ModTime()
	return nil
}

// saveData writes data to a temporary file and renames it over the target so a
// crash mid-write never leaves a truncated file behind. Callers hold j.mu.
func (j *JSONLog) saveData(data *JSONData) error {
	data.LastUpdated = time.Now()

	fileData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmp := j.filePath + ".tmp"
	if err := os.WriteFile(tmp, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, j.filePath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}

	if info, err := os.Stat(j.filePath); err == nil {
		j.lastModified = info.ModTime()
	}
	return nil
}

// Read returns the entries for key, oldest first
func (j *JSONLog) Read(ctx context.Context, key string) ([]string, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if err := j.loadData(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	result := make([]string, len(j.data.Logs[key]))
	copy(result, j.data.Logs[key])
	return result, nil
}

// Append adds entry at the tail of the log for key
func (j *JSONLog) Append(ctx context.Context, key, entry string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.data.Logs[key] = append(j.data.Logs[key], entry)
	return j.saveData(j.data)
}

// PopOldest removes the head entry for key
func (j *JSONLog) PopOldest(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	list := j.data.Logs[key]
	if len(list) == 0 {
		return nil
	}
	if len(list) == 1 {
		delete(j.data.Logs, key)
	} else {
		j.data.Logs[key] = list[1:]
	}
	return j.saveData(j.data)
}

// Clear removes every entry for key
func (j *JSONLog) Clear(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.data.Logs[key]; !ok {
		return nil
	}
	delete(j.data.Logs, key)
	return j.saveData(j.data)
}

// Ping verifies the backing file is still accessible
func (j *JSONLog) Ping(ctx context.Context) error {
	if _, err := os.Stat(j.filePath); err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	return nil
}

// Close is a no-op; every mutation is already persisted
func (j *JSONLog) Close() error {
	return nil
}
