// Package ratelimit implements per-category, per-client admission control with
// a weighted sliding-window counter over a persisted log of request timestamps.
//
// Each (category, client) pair owns one ordered log. On every request the
// limiter drops entries older than one minute from the head of the log, splits
// the rest into the current calendar minute and the previous one, and estimates
// the request rate as
//
//	current + previous * (1 - secondOfMinute/60)
//
// A request is admitted, and its timestamp appended, only while that estimate
// is strictly below the category quota.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"ratelimiter/internal/storage"
)

// Window is the length of the sliding window and of one counting bucket.
const Window = time.Minute

// Decision is the outcome of one admission check.
type Decision int

const (
	// Drop rejects the request. It is the zero value.
	Drop Decision = iota
	// Admit lets the request through and records it.
	Admit
)

func (d Decision) String() string {
	if d == Admit {
		return "admit"
	}
	return "drop"
}

// Result describes a decision together with the numbers that produced it.
type Result struct {
	Decision Decision
	Category Category
	ClientID string

	Quota    int
	Estimate float64
	Current  int
	Previous int

	// Remaining is how many further requests would be admitted right now.
	Remaining int
	// ResetAt is when the oldest retained entry leaves the window.
	ResetAt time.Time
	// RetryAfter is the wait until the next admission; zero on Admit.
	RetryAfter time.Duration
}

// Allowed reports whether the request was admitted.
func (r Result) Allowed() bool {
	return r.Decision == Admit
}

// Limiter makes admission decisions against a shared timestamp log. It holds
// no mutable state of its own and is safe for concurrent use. Concurrent
// requests for the same client may over-admit slightly because the
// read-prune-append sequence is not atomic.
type Limiter struct {
	log    storage.TimestampLog
	quotas *Quotas
	now    func() time.Time
	logger *slog.Logger
	meter  metric.Meter

	decisions metric.Int64Counter
	pruned    metric.Int64Counter
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now as the limiter's clock.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger used for decision and corruption events.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMeter sets the meter decision counters are registered on. The global
// meter provider is used otherwise.
func WithMeter(meter metric.Meter) Option {
	return func(l *Limiter) {
		if meter != nil {
			l.meter = meter
		}
	}
}

// NewLimiter creates a limiter reading and writing request logs through log.
func NewLimiter(log storage.TimestampLog, quotas *Quotas, opts ...Option) (*Limiter, error) {
	if log == nil {
		return nil, fmt.Errorf("timestamp log is required: %w", ErrInvalidConfig)
	}
	if quotas == nil || quotas.Len() == 0 {
		return nil, fmt.Errorf("quota table is required: %w", ErrInvalidConfig)
	}

	l := &Limiter{
		log:    log,
		quotas: quotas,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.meter == nil {
		l.meter = otel.Meter("ratelimiter/ratelimit")
	}

	var err error
	l.decisions, err = l.meter.Int64Counter("ratelimit.decisions",
		metric.WithDescription("Admission decisions by category and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}
	l.pruned, err = l.meter.Int64Counter("ratelimit.pruned_entries",
		metric.WithDescription("Log entries removed for falling out of the window"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pruned entries counter: %w", err)
	}

	return l, nil
}

// Quotas returns the limiter's quota table.
func (l *Limiter) Quotas() *Quotas {
	return l.quotas
}

// RecvRequest decides whether one request of category from clientID is
// admitted. Admitted requests are recorded; dropped ones are not.
func (l *Limiter) RecvRequest(ctx context.Context, category Category, clientID string) (Decision, error) {
	res, err := l.Evaluate(ctx, category, clientID)
	if err != nil {
		return Drop, err
	}
	return res.Decision, nil
}

// Evaluate is RecvRequest with the full decision detail.
func (l *Limiter) Evaluate(ctx context.Context, category Category, clientID string) (Result, error) {
	if clientID == "" {
		return Result{}, ErrEmptyClient
	}
	key := LogKey(category, clientID)

	quota, err := l.quotas.Quota(category)
	if err != nil {
		return Result{}, err
	}

	now := l.now().UTC()

	pruned, err := l.prune(ctx, key, now)
	if pruned > 0 {
		l.pruned.Add(ctx, int64(pruned), metric.WithAttributes(attribute.String("category", string(category))))
	}
	if err != nil {
		return Result{}, l.failed(category, key, err)
	}

	times, err := l.readTimes(ctx, key)
	if err != nil {
		return Result{}, l.failed(category, key, err)
	}

	current, previous := partition(times, now)
	estimate := weightedEstimate(current, previous, elapsedFraction(now))

	res := Result{
		Decision: Drop,
		Category: category,
		ClientID: clientID,
		Quota:    quota,
		Estimate: estimate,
		Current:  current,
		Previous: previous,
	}

	if estimate < float64(quota) {
		stamp := now
		if n := len(times); n > 0 && times[n-1].After(stamp) {
			stamp = times[n-1]
			if ahead := stamp.Sub(now); ahead > Window {
				l.logger.Warn("Rate limit log has entries ahead of the clock",
					"category", string(category),
					"client_id", clientID,
					"newest", stamp.Format(time.RFC3339Nano),
					"ahead", ahead.String(),
				)
			}
		}
		if err := l.log.Append(ctx, key, formatEntry(stamp)); err != nil {
			return Result{}, l.failed(category, key, &StoreError{Op: "append", Key: key, Err: err})
		}
		times = append(times, stamp)
		res.Decision = Admit
		res.Remaining = remaining(quota, estimate+1)
	} else {
		res.RetryAfter = retryAfter(times, quota, now)
	}

	res.ResetAt = now
	if len(times) > 0 {
		res.ResetAt = times[0].Add(Window)
	}

	l.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", string(category)),
		attribute.String("decision", res.Decision.String()),
	))
	l.logger.Debug("Rate limit decision",
		"category", string(category),
		"client_id", clientID,
		"decision", res.Decision.String(),
		"estimate", estimate,
		"quota", quota,
		"current", current,
		"previous", previous,
	)

	return res, nil
}

// Reset removes every recorded request of clientID for category.
func (l *Limiter) Reset(ctx context.Context, category Category, clientID string) error {
	if clientID == "" {
		return ErrEmptyClient
	}
	if _, err := l.quotas.Quota(category); err != nil {
		return err
	}
	key := LogKey(category, clientID)
	if err := l.log.Clear(ctx, key); err != nil {
		return &StoreError{Op: "clear", Key: key, Err: err}
	}
	l.logger.Info("Rate limit log cleared", "category", string(category), "client_id", clientID)
	return nil
}

// History returns the recorded request times of clientID for category, oldest
// first. Entries are not pruned.
func (l *Limiter) History(ctx context.Context, category Category, clientID string) ([]time.Time, error) {
	if clientID == "" {
		return nil, ErrEmptyClient
	}
	if _, err := l.quotas.Quota(category); err != nil {
		return nil, err
	}
	return l.readTimes(ctx, LogKey(category, clientID))
}

// prune pops entries from the head of the log while they are strictly older
// than now-Window. It stops at the first entry inside the window; anything
// behind it is left alone even if out of order.
func (l *Limiter) prune(ctx context.Context, key string, now time.Time) (int, error) {
	entries, err := l.log.Read(ctx, key)
	if err != nil {
		return 0, &StoreError{Op: "read", Key: key, Err: err}
	}

	cutoff := now.Add(-Window)
	pruned := 0
	for i, raw := range entries {
		ts, err := parseEntry(raw)
		if err != nil {
			return pruned, &DataCorruptionError{Key: key, Index: i, Value: raw, Err: err}
		}
		if !ts.Before(cutoff) {
			break
		}
		if err := l.log.PopOldest(ctx, key); err != nil {
			return pruned, &StoreError{Op: "pop_oldest", Key: key, Err: err}
		}
		pruned++
	}
	return pruned, nil
}

func (l *Limiter) readTimes(ctx context.Context, key string) ([]time.Time, error) {
	entries, err := l.log.Read(ctx, key)
	if err != nil {
		return nil, &StoreError{Op: "read", Key: key, Err: err}
	}

	times := make([]time.Time, 0, len(entries))
	for i, raw := range entries {
		ts, err := parseEntry(raw)
		if err != nil {
			return nil, &DataCorruptionError{Key: key, Index: i, Value: raw, Err: err}
		}
		times = append(times, ts)
	}
	return times, nil
}

func (l *Limiter) failed(category Category, key string, err error) error {
	if IsDataCorruptionError(err) {
		l.logger.Error("Corrupt rate limit log", "category", string(category), "key", key, "error", err)
	} else {
		l.logger.Warn("Rate limit check failed", "category", string(category), "key", key, "error", err)
	}
	return err
}

// remaining is how many more requests fit before the estimate reaches quota.
func remaining(quota int, estimate float64) int {
	left := math.Ceil(float64(quota) - estimate)
	if left < 0 {
		return 0
	}
	return int(left)
}
