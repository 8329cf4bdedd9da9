package api

import (
	"net/http"

	"opsportal/internal/models"
	"opsportal/internal/ratelimit"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// Route names used for logs, metrics and IP limiter scopes.
const (
	RouteHealth         = "/api/health"
	RouteReadiness      = "/api/health/readiness"
	RoutePing           = "/api/ping"
	RouteUserByOpsID    = "/api/users/ops/{ops_id}"
	RouteProcessors     = "/api/processors"
	RouteChangePassword = "/api/auth/change-password"
	RouteMetrics        = "/api/metrics"
)

// RouteDeps are the collaborators the router composes around handlers.
// Nil limiters disable the corresponding limit. A nil Auth rejects every
// request to a session route.
type RouteDeps struct {
	Instrumenter   *Instrumenter
	Auth           *SessionAuth
	IPLimiter      ratelimit.Limiter
	SessionLimiter *ratelimit.SessionLimiter
}

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != RouteHealth &&
					r.URL.Path != RouteReadiness &&
					r.URL.Path != RoutePing
			}),
		))
	}
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, deps RouteDeps, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	in := deps.Instrumenter
	if in == nil {
		in = NewInstrumenter(handlers.registry, handlers.reporter)
	}

	ipLimited := func(route string) Middleware {
		if deps.IPLimiter == nil {
			return passThrough
		}
		return FromHTTP(ratelimit.IPMiddleware(deps.IPLimiter, route, ratelimit.WithRequestID(requestIDOf)))
	}

	authed := []Middleware{denyUnauthenticated}
	if deps.Auth != nil {
		authed = []Middleware{deps.Auth.Require()}
		if deps.SessionLimiter != nil {
			authed = append(authed, sessionLimited(deps.SessionLimiter))
		}
	}

	// Probes are never limited so orchestrators can always reach them.
	router.Handle(RouteHealth, in.Wrap(RouteHealth, handlers.HealthCheck)).Methods(http.MethodGet)
	router.Handle(RouteReadiness, in.Wrap(RouteReadiness, handlers.Readiness)).Methods(http.MethodGet)

	router.Handle(RoutePing,
		in.Wrap(RoutePing, Chain(handlers.Ping, ipLimited(RoutePing)))).Methods(http.MethodGet)
	router.Handle(RouteChangePassword,
		in.Wrap(RouteChangePassword, Chain(handlers.ChangePassword, ipLimited(RouteChangePassword)))).Methods(http.MethodPost)

	router.Handle(RouteUserByOpsID,
		in.Wrap(RouteUserByOpsID, Chain(handlers.GetUserByOpsID, authed...))).Methods(http.MethodGet)
	router.Handle(RouteProcessors,
		in.Wrap(RouteProcessors, Chain(handlers.ListProcessors, authed...))).Methods(http.MethodGet)
	router.Handle(RouteMetrics,
		in.Wrap(RouteMetrics, Chain(handlers.Metrics, authed...))).Methods(http.MethodGet)

	router.NotFoundHandler = in.Wrap("not_found", handlers.NotFound)
	router.MethodNotAllowedHandler = in.Wrap("method_not_allowed", handlers.MethodNotAllowed)

	return router
}

func passThrough(next HandlerFunc) HandlerFunc {
	return next
}

// sessionLimited runs the session limiter natively so store failures reach
// the instrumentation wrapper as errors.
func sessionLimited(limiter *ratelimit.SessionLimiter) Middleware {
	mw := ratelimit.SessionMiddleware(limiter, SessionID, ratelimit.WithRequestID(requestIDOf))
	return func(next HandlerFunc) HandlerFunc {
		return HandlerFunc(mw(ratelimit.Handler(next)))
	}
}

func denyUnauthenticated(HandlerFunc) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		writeError(w, r, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Authentication required")
		return nil
	}
}

func requestIDOf(r *http.Request) string {
	return RequestIDFromContext(r.Context())
}
