package ratelimit

import (
	"fmt"
	"sort"
)

// Category identifies a kind of request, e.g. "Login" or "Message". The set is
// open: any category with a configured quota is valid.
type Category string

// Quotas is the immutable category -> per-minute quota table the limiter
// reads from. Build it once with NewQuotas.
type Quotas struct {
	limits map[Category]int
}

// NewQuotas copies limits into a new table. Every category must be non-empty
// and every quota positive.
func NewQuotas(limits map[string]int) (*Quotas, error) {
	if len(limits) == 0 {
		return nil, fmt.Errorf("at least one category is required: %w", ErrInvalidConfig)
	}

	q := &Quotas{limits: make(map[Category]int, len(limits))}
	for name, quota := range limits {
		if name == "" {
			return nil, fmt.Errorf("category name cannot be empty: %w", ErrInvalidConfig)
		}
		if quota <= 0 {
			return nil, fmt.Errorf("quota for %q must be positive, got %d: %w", name, quota, ErrInvalidConfig)
		}
		q.limits[Category(name)] = quota
	}
	return q, nil
}

// Quota returns the per-minute quota for category, or a *ConfigurationError
// when none is configured.
func (q *Quotas) Quota(category Category) (int, error) {
	quota, ok := q.limits[category]
	if !ok {
		return 0, &ConfigurationError{Category: category}
	}
	return quota, nil
}

// Categories returns the configured categories in lexical order.
func (q *Quotas) Categories() []Category {
	out := make([]Category, 0, len(q.limits))
	for c := range q.limits {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Map returns a copy of the table keyed by category name.
func (q *Quotas) Map() map[string]int {
	out := make(map[string]int, len(q.limits))
	for c, quota := range q.limits {
		out[string(c)] = quota
	}
	return out
}

// Len returns the number of configured categories.
func (q *Quotas) Len() int {
	return len(q.limits)
}

// LogKey derives the storage key holding the request log of one client for one
// category. The category length prefix keeps the encoding injective even when
// either part contains the separator.
func LogKey(category Category, clientID string) string {
	return fmt.Sprintf("ratelimit:%d:%s:%s", len(category), category, clientID)
}
