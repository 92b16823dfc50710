package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ratelimiter/internal/storage"
)

// InstrumentedLog wraps a storage.TimestampLog with OpenTelemetry tracing and
// metrics. Span names are "timestamp_log.<op>"; metrics are labelled by
// operation only, never by key, to keep cardinality bounded.
type InstrumentedLog struct {
	inner    storage.TimestampLog
	backend  string
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ storage.TimestampLog = (*InstrumentedLog)(nil)

// NewInstrumentedLog wraps inner using the global tracer and meter providers.
// backend names the storage type and is attached to every measurement.
func NewInstrumentedLog(inner storage.TimestampLog, backend string) (*InstrumentedLog, error) {
	return NewInstrumentedLogWithMeter(inner, backend, otel.Meter("ratelimiter/storage"))
}

// NewInstrumentedLogWithMeter is NewInstrumentedLog with an explicit meter.
func NewInstrumentedLogWithMeter(inner storage.TimestampLog, backend string, meter metric.Meter) (*InstrumentedLog, error) {
	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of timestamp log operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of timestamp log operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	return &InstrumentedLog{
		inner:    inner,
		backend:  backend,
		tracer:   otel.Tracer("ratelimiter/storage"),
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (l *InstrumentedLog) startSpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("storage.operation", operation),
		attribute.String("storage.backend", l.backend),
	}
	if key != "" {
		attrs = append(attrs, attribute.String("storage.key", key))
	}
	return l.tracer.Start(ctx, "timestamp_log."+operation, trace.WithAttributes(attrs...))
}

func (l *InstrumentedLog) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("backend", l.backend),
	)

	l.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		l.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (l *InstrumentedLog) Read(ctx context.Context, key string) ([]string, error) {
	ctx, span := l.startSpan(ctx, "read", key)
	start := time.Now()
	entries, err := l.inner.Read(ctx, key)
	span.SetAttributes(attribute.Int("storage.entries", len(entries)))
	l.record(ctx, span, "read", start, err)
	return entries, err
}

func (l *InstrumentedLog) Append(ctx context.Context, key, entry string) error {
	ctx, span := l.startSpan(ctx, "append", key)
	start := time.Now()
	err := l.inner.Append(ctx, key, entry)
	l.record(ctx, span, "append", start, err)
	return err
}

func (l *InstrumentedLog) PopOldest(ctx context.Context, key string) error {
	ctx, span := l.startSpan(ctx, "pop_oldest", key)
	start := time.Now()
	err := l.inner.PopOldest(ctx, key)
	l.record(ctx, span, "pop_oldest", start, err)
	return err
}

func (l *InstrumentedLog) Clear(ctx context.Context, key string) error {
	ctx, span := l.startSpan(ctx, "clear", key)
	start := time.Now()
	err := l.inner.Clear(ctx, key)
	l.record(ctx, span, "clear", start, err)
	return err
}

func (l *InstrumentedLog) Ping(ctx context.Context) error {
	ctx, span := l.startSpan(ctx, "ping", "")
	start := time.Now()
	err := l.inner.Ping(ctx)
	l.record(ctx, span, "ping", start, err)
	return err
}

func (l *InstrumentedLog) Close() error {
	return l.inner.Close()
}
