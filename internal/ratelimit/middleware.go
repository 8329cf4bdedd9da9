package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"opsportal/internal/models"
)

// Handler is an HTTP handler that may fail. Failures are returned to the
// caller instead of being written, so the outermost boundary decides how a
// 500 looks.
type Handler func(w http.ResponseWriter, r *http.Request) error

// RequestIDFunc returns the id tagged on rejection bodies.
type RequestIDFunc func(r *http.Request) string

// Option configures the middleware.
type Option func(*middlewareConfig)

type middlewareConfig struct {
	requestID RequestIDFunc
}

// WithRequestID tags 429 bodies with the id returned by fn.
func WithRequestID(fn RequestIDFunc) Option {
	return func(c *middlewareConfig) { c.requestID = fn }
}

func newMiddlewareConfig(opts []Option) middlewareConfig {
	cfg := middlewareConfig{requestID: func(*http.Request) string { return "" }}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// IPMiddleware enforces limiter per client IP under routeKey. Each route
// that is limited gets its own routeKey so counters are not shared.
func IPMiddleware(limiter Limiter, routeKey string, opts ...Option) func(http.Handler) http.Handler {
	cfg := newMiddlewareConfig(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := EnforceIP(limiter, routeKey, r)
			setHeaders(w, d)

			if !d.Allowed {
				slog.WarnContext(r.Context(), "Rate limit exceeded",
					"scope", routeKey,
					"client_ip", ClientIP(r),
					"limit", d.Limit,
				)
				writeRejection(w, d, cfg.requestID(r))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionIDFunc extracts the session id of an authenticated request.
type SessionIDFunc func(r *http.Request) (string, bool)

// SessionMiddleware enforces limiter per session. Requests without a session
// pass through untouched; authentication is enforced elsewhere. A failing
// session store is returned as an error and nothing is written.
func SessionMiddleware(limiter *SessionLimiter, sessionID SessionIDFunc, opts ...Option) func(Handler) Handler {
	cfg := newMiddlewareConfig(opts)
	return func(next Handler) Handler {
		return func(w http.ResponseWriter, r *http.Request) error {
			id, ok := sessionID(r)
			if !ok {
				return next(w, r)
			}

			d, err := limiter.Allow(r.Context(), id)
			if err != nil {
				return fmt.Errorf("session rate limit check: %w", err)
			}
			setHeaders(w, d)

			if !d.Allowed {
				slog.WarnContext(r.Context(), "Session rate limit exceeded", "limit", d.Limit)
				writeRejection(w, d, cfg.requestID(r))
				return nil
			}
			return next(w, r)
		}
	}
}

// RetryAfterSeconds rounds d up to whole seconds, never below 1.
func RetryAfterSeconds(d Decision) int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func setHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func writeRejection(w http.ResponseWriter, d Decision, requestID string) {
	w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds(d)))
	writeJSON(w, http.StatusTooManyRequests,
		models.NewErrorResponse("Rate limit exceeded", models.ErrorCodeRateLimited).WithRequestID(requestID))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode rate limit response", "error", err)
	}
}
