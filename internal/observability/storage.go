package observability

import (
	"context"
	"errors"
	"time"

	"opsportal/internal/models"
	"opsportal/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
// A nil meter falls back to the global meter provider.
func NewInstrumentedStorage(inner storage.Storage, meter metric.Meter) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("opsportal/storage")
	if meter == nil {
		meter = otel.Meter("opsportal/storage")
	}

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
}

// record ends the span. ErrNotFound is an answer, not a failure, so it is
// neither counted nor marked on the span.
func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	switch {
	case err == nil, errors.Is(err, storage.ErrNotFound):
		span.SetStatus(codes.Ok, "")
	default:
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) GetUserByOpsID(ctx context.Context, opsID string) (*models.User, error) {
	ctx, span := s.startSpan(ctx, "GetUserByOpsID", attribute.String("ops_id", opsID))
	start := time.Now()
	result, err := s.inner.GetUserByOpsID(ctx, opsID)
	s.record(ctx, span, "GetUserByOpsID", start, err)
	return result, err
}

func (s *InstrumentedStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, span := s.startSpan(ctx, "GetUserByEmail")
	start := time.Now()
	result, err := s.inner.GetUserByEmail(ctx, email)
	s.record(ctx, span, "GetUserByEmail", start, err)
	return result, err
}

func (s *InstrumentedStorage) ListProcessors(ctx context.Context, query models.ProcessorQuery) ([]*models.User, error) {
	ctx, span := s.startSpan(ctx, "ListProcessors",
		attribute.Bool("filtered", query.Query != ""),
		attribute.Int("limit", query.Limit),
	)
	start := time.Now()
	result, err := s.inner.ListProcessors(ctx, query)
	s.record(ctx, span, "ListProcessors", start, err)
	return result, err
}

func (s *InstrumentedStorage) SaveUser(ctx context.Context, user *models.User) error {
	ctx, span := s.startSpan(ctx, "SaveUser", attribute.String("ops_id", user.OpsID))
	start := time.Now()
	err := s.inner.SaveUser(ctx, user)
	s.record(ctx, span, "SaveUser", start, err)
	return err
}

// Session ids are credentials and never become span attributes.

func (s *InstrumentedStorage) GetSession(ctx context.Context, id string) (*models.Session, error) {
	ctx, span := s.startSpan(ctx, "GetSession")
	start := time.Now()
	result, err := s.inner.GetSession(ctx, id)
	s.record(ctx, span, "GetSession", start, err)
	return result, err
}

func (s *InstrumentedStorage) SaveSession(ctx context.Context, session *models.Session) error {
	ctx, span := s.startSpan(ctx, "SaveSession", attribute.String("ops_id", session.OpsID))
	start := time.Now()
	err := s.inner.SaveSession(ctx, session)
	s.record(ctx, span, "SaveSession", start, err)
	return err
}

func (s *InstrumentedStorage) GetSessionRateLimit(ctx context.Context, sessionID string) (*models.RateLimitRecord, error) {
	ctx, span := s.startSpan(ctx, "GetSessionRateLimit")
	start := time.Now()
	result, err := s.inner.GetSessionRateLimit(ctx, sessionID)
	s.record(ctx, span, "GetSessionRateLimit", start, err)
	return result, err
}

func (s *InstrumentedStorage) ResetSessionRateLimit(ctx context.Context, sessionID string) error {
	ctx, span := s.startSpan(ctx, "ResetSessionRateLimit")
	start := time.Now()
	err := s.inner.ResetSessionRateLimit(ctx, sessionID)
	s.record(ctx, span, "ResetSessionRateLimit", start, err)
	return err
}

func (s *InstrumentedStorage) IncrementSessionRateLimit(ctx context.Context, sessionID string, window time.Duration, now time.Time) (*models.RateLimitRecord, error) {
	ctx, span := s.startSpan(ctx, "IncrementSessionRateLimit",
		attribute.Int64("window_ms", window.Milliseconds()),
	)
	start := time.Now()
	result, err := s.inner.IncrementSessionRateLimit(ctx, sessionID, window, now)
	s.record(ctx, span, "IncrementSessionRateLimit", start, err)
	return result, err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
