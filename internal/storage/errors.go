package storage

import "errors"

// ErrEmptyKey is returned when an operation is attempted with an empty log key.
var ErrEmptyKey = errors.New("empty log key")
