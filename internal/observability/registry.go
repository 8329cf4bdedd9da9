package observability

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/atomic"
)

// Snapshot is a point-in-time copy of the registry counters.
type Snapshot struct {
	StartedAt     time.Time
	UptimeSeconds int64
	RequestsTotal int64
	ErrorsTotal   int64
}

// RequestObservation describes one completed request.
type RequestObservation struct {
	Route    string
	Method   string
	Status   int
	Duration time.Duration
}

// Registry holds the process-wide request counters. Counters only grow and
// are safe for concurrent use; when a meter is supplied every observation is
// also exported as OpenTelemetry instruments.
type Registry struct {
	startedAt time.Time
	now       func() time.Time

	requests atomic.Int64
	errors   atomic.Int64

	requestCounter metric.Int64Counter
	errorCounter   metric.Int64Counter
	duration       metric.Float64Histogram
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryClock overrides the time source used for uptime.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry whose uptime starts now. A nil meter
// disables the OpenTelemetry mirror.
func NewRegistry(meter metric.Meter, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startedAt = r.now()

	if meter == nil {
		meter = noop.NewMeterProvider().Meter(instrumentationName)
	}

	var err error
	r.requestCounter, err = meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Number of API requests handled"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	r.errorCounter, err = meter.Int64Counter(
		"http.server.errors",
		metric.WithDescription("Number of API requests answered with a 5xx status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	r.duration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("Duration of API requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"process.uptime",
		metric.WithDescription("Seconds since the registry was created"),
		metric.WithUnit("s"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.uptimeSeconds())
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// RecordRequest counts one request. Statuses of 500 and above also count
// as errors.
func (r *Registry) RecordRequest(status int) {
	r.requests.Inc()
	if status >= http.StatusInternalServerError {
		r.errors.Inc()
	}
}

// Observe records a completed request in the counters and the exported
// instruments.
func (r *Registry) Observe(ctx context.Context, obs RequestObservation) {
	r.RecordRequest(obs.Status)

	attrs := metric.WithAttributes(
		attribute.String("http.route", obs.Route),
		attribute.String("http.request.method", obs.Method),
		attribute.Int("http.response.status_code", obs.Status),
	)
	r.requestCounter.Add(ctx, 1, attrs)
	if obs.Status >= http.StatusInternalServerError {
		r.errorCounter.Add(ctx, 1, attrs)
	}
	r.duration.Record(ctx, obs.Duration.Seconds(), attrs)
}

// Snapshot returns the current counters.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		StartedAt:     r.startedAt,
		UptimeSeconds: r.uptimeSeconds(),
		RequestsTotal: r.requests.Load(),
		ErrorsTotal:   r.errors.Load(),
	}
}

func (r *Registry) uptimeSeconds() int64 {
	up := r.now().Sub(r.startedAt)
	if up < 0 {
		return 0
	}
	return int64(up / time.Second)
}
