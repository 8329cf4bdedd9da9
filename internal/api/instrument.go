package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"opsportal/internal/errreport"
	"opsportal/internal/models"
	"opsportal/internal/observability"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLen = 128

// HandlerFunc is an HTTP handler that may fail. Handlers translate expected
// outcomes (400, 401, 404, 410) themselves and return an error only for
// failures that should become a 500.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Middleware decorates a HandlerFunc.
type Middleware func(HandlerFunc) HandlerFunc

// Chain applies middlewares so the first one listed runs first.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// FromHTTP adapts net/http middleware so errors returned by the wrapped
// handler still reach the instrumentation wrapper.
func FromHTTP(mw func(http.Handler) http.Handler) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) error {
			var err error
			mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				err = next(w, r)
			})).ServeHTTP(w, r)
			return err
		}
	}
}

// Instrumenter is the single top-level boundary for API handlers: it assigns
// the request id, logs start and end, records the outcome in the registry,
// reports failures and turns them into a generic 500.
type Instrumenter struct {
	registry *observability.Registry
	reporter errreport.Reporter
	logger   *slog.Logger
	now      func() time.Time
}

// InstrumenterOption configures an Instrumenter.
type InstrumenterOption func(*Instrumenter)

// WithLogger sets the logger used for request records.
func WithLogger(l *slog.Logger) InstrumenterOption {
	return func(in *Instrumenter) { in.logger = l }
}

// WithInstrumenterClock overrides the clock used for durations.
func WithInstrumenterClock(now func() time.Time) InstrumenterOption {
	return func(in *Instrumenter) { in.now = now }
}

// NewInstrumenter creates an Instrumenter. A nil reporter discards reports.
func NewInstrumenter(registry *observability.Registry, reporter errreport.Reporter, opts ...InstrumenterOption) *Instrumenter {
	if reporter == nil {
		reporter = errreport.Nop{}
	}
	in := &Instrumenter{
		registry: registry,
		reporter: reporter,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Wrap returns h as an http.Handler named route.
func (in *Instrumenter) Wrap(route string, h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestID(r)
		w.Header().Set(HeaderRequestID, id)

		info := RequestInfo{ID: id, Route: route, Method: r.Method}
		ctx := withRequestInfo(r.Context(), info)
		r = r.WithContext(ctx)

		start := in.now()
		in.logger.InfoContext(ctx, "Request started",
			"request_id", id,
			"route", route,
			"method", r.Method,
			"path", r.URL.Path,
		)

		rec := &responseState{}
		err := invoke(h, rec.wrap(w), r)

		status := rec.status
		if !rec.wrote {
			status = http.StatusOK
		}

		if err != nil {
			status = http.StatusInternalServerError
			in.logger.ErrorContext(ctx, "Request failed",
				"request_id", id,
				"route", route,
				"method", r.Method,
				"error", err,
			)
			in.reporter.CaptureException(ctx, err, errreport.Context{RequestID: id, Route: route, Method: r.Method})

			if !rec.wrote {
				writeJSON(w, http.StatusInternalServerError,
					models.NewErrorResponse("Internal server error", models.ErrorCodeInternalError).WithRequestID(id))
			}
		}

		elapsed := in.now().Sub(start)
		if in.registry != nil {
			in.registry.Observe(ctx, observability.RequestObservation{
				Route:    route,
				Method:   r.Method,
				Status:   status,
				Duration: elapsed,
			})
		}

		in.logger.InfoContext(ctx, "Request completed",
			"request_id", id,
			"route", route,
			"method", r.Method,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// invoke runs h, converting a panic into an error. http.ErrAbortHandler is
// re-raised so net/http can abort the connection.
func invoke(h HandlerFunc, w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if p == http.ErrAbortHandler {
				panic(p)
			}
			if e, ok := p.(error); ok {
				err = fmt.Errorf("panic: %w", e)
				return
			}
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return h(w, r)
}

func requestID(r *http.Request) string {
	if id := r.Header.Get(HeaderRequestID); validRequestID(id) {
		return id
	}
	return uuid.NewString()
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}

// responseState records the first status written through the wrapped writer.
type responseState struct {
	status int
	wrote  bool
}

func (s *responseState) mark(code int) {
	if !s.wrote {
		s.status = code
		s.wrote = true
	}
}

func (s *responseState) wrap(w http.ResponseWriter) http.ResponseWriter {
	return httpsnoop.Wrap(w, httpsnoop.Hooks{
		WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
			return func(code int) {
				s.mark(code)
				next(code)
			}
		},
		Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
			return func(b []byte) (int, error) {
				s.mark(http.StatusOK)
				return next(b)
			}
		},
		ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
			return func(src io.Reader) (int64, error) {
				s.mark(http.StatusOK)
				return next(src)
			}
		},
	})
}
