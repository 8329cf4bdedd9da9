// Package errreport forwards unhandled request failures to an error sink.
// Reporting is fire-and-forget: nothing a reporter does can fail or panic
// back into request handling.
package errreport

import (
	"context"
	"log/slog"

	"opsportal/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

// Context identifies the request a failure belongs to.
type Context struct {
	RequestID string
	Route     string
	Method    string
}

// Reporter receives unhandled failures.
type Reporter interface {
	CaptureException(ctx context.Context, err error, rc Context)
}

// Nop discards every report.
type Nop struct{}

func (Nop) CaptureException(context.Context, error, Context) {}

// LogReporter writes failures as structured error logs and marks the active
// trace span. A token bucket caps log volume during error storms; reports
// over the cap are counted and the count is attached to the next log line.
type LogReporter struct {
	logger  *slog.Logger
	limiter *rate.Limiter
	dropped atomic.Int64
}

// New returns a LogReporter, or Nop when reporting is disabled.
func New(cfg models.ErrorReportingConfig, logger *slog.Logger) Reporter {
	if !cfg.Enabled {
		return Nop{}
	}
	return NewLogReporter(cfg, logger)
}

// NewLogReporter creates a reporter allowing cfg.MaxPerSecond reports with
// bursts of cfg.Burst. A non-positive rate disables throttling.
func NewLogReporter(cfg models.ErrorReportingConfig, logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.MaxPerSecond > 0 {
		limit = rate.Limit(cfg.MaxPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &LogReporter{
		logger:  logger.With("component", "errreport"),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// CaptureException records err. It never panics.
func (r *LogReporter) CaptureException(ctx context.Context, err error, rc Context) {
	if err == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Warn("Error reporter panicked", "panic", p)
		}
	}()

	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(
		attribute.String("request.id", rc.RequestID),
		attribute.String("http.route", rc.Route),
	))
	span.SetStatus(codes.Error, "unhandled error")

	if !r.limiter.Allow() {
		r.dropped.Inc()
		return
	}

	attrs := []any{
		"error", err.Error(),
		"request_id", rc.RequestID,
		"route", rc.Route,
		"method", rc.Method,
	}
	if n := r.dropped.Swap(0); n > 0 {
		attrs = append(attrs, "suppressed", n)
	}
	r.logger.ErrorContext(ctx, "Unhandled request error", attrs...)
}

// Dropped returns reports suppressed since the last emitted log line.
func (r *LogReporter) Dropped() int64 {
	return r.dropped.Load()
}
