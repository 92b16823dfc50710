package ratelimit

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrUnknownCategory is returned when a category has no configured quota.
	ErrUnknownCategory = errors.New("unknown request category")

	// ErrStore is matched by every error raised by the timestamp log.
	ErrStore = errors.New("timestamp log failure")

	// ErrCorruptEntry is matched by every log entry that is not a timestamp.
	ErrCorruptEntry = errors.New("log entry is not a timestamp")

	// ErrEmptyClient is returned when a request carries no client id.
	ErrEmptyClient = errors.New("empty client id")

	// ErrInvalidConfig is returned when a limiter or quota table cannot be built.
	ErrInvalidConfig = errors.New("invalid rate limiter configuration")
)

// ConfigurationError reports a category with no configured quota. It points at
// a deployment bug rather than a client error and is never defaulted.
type ConfigurationError struct {
	Category Category
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no quota configured for category %q", string(e.Category))
}

func (e *ConfigurationError) Unwrap() error {
	return ErrUnknownCategory
}

// StoreError wraps a failure of the timestamp log. Op names the log operation
// that failed (read, append, pop_oldest, clear).
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("timestamp log %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStore, e.Err}
}

// DataCorruptionError reports a stored entry that cannot be parsed as a
// timestamp. Index is the entry's position in the log, oldest first.
type DataCorruptionError struct {
	Key   string
	Index int
	Value string
	Err   error
}

func (e *DataCorruptionError) Error() string {
	return fmt.Sprintf("corrupt entry %d in log %s: %q: %v", e.Index, e.Key, e.Value, e.Err)
}

func (e *DataCorruptionError) Unwrap() []error {
	return []error{ErrCorruptEntry, e.Err}
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsStoreError reports whether err is, or wraps, a StoreError.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStore)
}

// IsDataCorruptionError reports whether err is, or wraps, a DataCorruptionError.
func IsDataCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruptEntry)
}
