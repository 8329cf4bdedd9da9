package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"opsportal/internal/cachecontrol"
	"opsportal/internal/errreport"
	"opsportal/internal/models"
	"opsportal/internal/observability"
	"opsportal/internal/storage"
	"opsportal/internal/validation"

	"github.com/gorilla/mux"
)

// Database states reported by the health endpoint.
const (
	databaseConnected = "connected"
	databaseError     = "error"
)

// Handlers contains HTTP handlers for the portal API
type Handlers struct {
	storage  storage.Storage
	registry *observability.Registry
	reporter errreport.Reporter
	now      func() time.Time

	appName     string
	serviceName string
	version     string

	changePassword *validation.Schema[models.ChangePasswordRequest]
	maxBodyBytes   int64
}

// HandlerOption configures optional Handlers dependencies.
type HandlerOption func(*Handlers)

// WithRegistry sets the registry whose counters health and metrics report.
func WithRegistry(r *observability.Registry) HandlerOption {
	return func(h *Handlers) { h.registry = r }
}

// WithReporter sets the sink for failures handlers translate themselves.
func WithReporter(r errreport.Reporter) HandlerOption {
	return func(h *Handlers) { h.reporter = r }
}

// WithBuildInfo sets the identity reported by the health endpoint.
func WithBuildInfo(appName, serviceName, version string) HandlerOption {
	return func(h *Handlers) {
		h.appName = appName
		h.serviceName = serviceName
		h.version = version
	}
}

// WithMaxBodyBytes bounds request bodies read by JSON endpoints.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handlers) { h.maxBodyBytes = n }
}

// WithHandlerClock overrides the clock used for response timestamps.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handlers) { h.now = now }
}

// NewHandlers creates a new handlers instance
func NewHandlers(store storage.Storage, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		storage:      store,
		reporter:     errreport.Nop{},
		now:          time.Now,
		appName:      "opsportal",
		serviceName:  "opsportal",
		version:      "unknown",
		maxBodyBytes: validation.DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.changePassword = validation.NewSchema[models.ChangePasswordRequest](
		validation.Strict(),
		validation.MaxBytes(h.maxBodyBytes),
	)
	return h
}

func (h *Handlers) snapshot() observability.Snapshot {
	if h.registry == nil {
		return observability.Snapshot{}
	}
	return h.registry.Snapshot()
}

// HealthCheck reports liveness with database status and counters.
// GET /api/health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Cache-Control", cachecontrol.NoStore)

	snap := h.snapshot()
	resp := models.HealthCheckResponse{
		Status:        models.StatusHealthy,
		Timestamp:     h.now().UTC(),
		Service:       h.serviceName,
		App:           h.appName,
		Version:       h.version,
		UptimeSeconds: snap.UptimeSeconds,
		RequestsTotal: snap.RequestsTotal,
		ErrorsTotal:   snap.ErrorsTotal,
		Database:      databaseConnected,
	}

	if err := h.storage.Ping(r.Context()); err != nil {
		h.reporter.CaptureException(r.Context(), err, reportContext(r.Context()))
		resp.Status = models.StatusUnhealthy
		resp.Database = databaseError
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return nil
	}

	writeJSON(w, http.StatusOK, resp)
	return nil
}

// Readiness reports whether the service can take traffic.
// GET /api/health/readiness
func (h *Handlers) Readiness(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Cache-Control", cachecontrol.NoStore)

	if err := h.storage.Ping(r.Context()); err != nil {
		h.reporter.CaptureException(r.Context(), err, reportContext(r.Context()))
		writeJSON(w, http.StatusServiceUnavailable, models.ReadinessResponse{
			Status:    models.StatusNotReady,
			Timestamp: h.now().UTC(),
			Error:     err.Error(),
		})
		return nil
	}

	writeJSON(w, http.StatusOK, models.ReadinessResponse{
		Status:    models.StatusReady,
		Timestamp: h.now().UTC(),
	})
	return nil
}

// Ping is a dependency-free liveness probe.
// GET /api/ping
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Cache-Control", cachecontrol.NoStore)
	writeJSON(w, http.StatusOK, models.PingResponse{
		Status:    models.StatusOK,
		Timestamp: h.now().UTC(),
	})
	return nil
}

// GetUserByOpsID returns a user summary.
// GET /api/users/ops/{ops_id}
func (h *Handlers) GetUserByOpsID(w http.ResponseWriter, r *http.Request) error {
	opsID := mux.Vars(r)["ops_id"]

	user, err := h.storage.GetUserByOpsID(r.Context(), opsID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "User not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	w.Header().Set("Cache-Control", cachecontrol.Lookup())
	writeJSON(w, http.StatusOK, models.UserResponse{User: user.Summary()})
	return nil
}

// ListProcessors returns active processors, optionally filtered by q.
// GET /api/processors?q=&limit=
func (h *Handlers) ListProcessors(w http.ResponseWriter, r *http.Request) error {
	query := models.ProcessorQuery{Query: r.URL.Query().Get("q")}
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, models.ErrorCodeBadRequest, "limit must be an integer")
			return nil
		}
		query.Limit = limit
	}
	query.Normalize()

	users, err := h.storage.ListProcessors(r.Context(), query)
	if err != nil {
		return fmt.Errorf("list processors: %w", err)
	}

	processors := make([]models.ProcessorSummary, 0, len(users))
	for _, u := range users {
		processors = append(processors, u.ProcessorSummary())
	}

	w.Header().Set("Cache-Control", cachecontrol.Hub())
	writeJSON(w, http.StatusOK, models.ProcessorsResponse{Processors: processors, Count: len(processors)})
	return nil
}

// ChangePassword is retired. The body is still validated so stale clients
// get a precise 400; a valid body gets 410.
// POST /api/auth/change-password
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Cache-Control", cachecontrol.NoStore)

	res := validation.ParseJSON(r, h.changePassword)
	if !res.OK() {
		res.Failure.Respond(w)
		return nil
	}

	writeJSON(w, http.StatusGone, models.DisabledFeatureResponse{Error: models.PasswordLoginDisabledMessage})
	return nil
}

// Metrics returns the registry snapshot.
// GET /api/metrics
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Cache-Control", cachecontrol.NoStore)

	snap := h.snapshot()
	writeJSON(w, http.StatusOK, models.MetricsResponse{
		StartedAt:     snap.StartedAt,
		UptimeSeconds: snap.UptimeSeconds,
		RequestsTotal: snap.RequestsTotal,
		ErrorsTotal:   snap.ErrorsTotal,
	})
	return nil
}

// NotFound answers unknown routes with a JSON 404.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) error {
	writeError(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "Route not found")
	return nil
}

// MethodNotAllowed answers known routes hit with the wrong method.
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) error {
	writeError(w, r, http.StatusMethodNotAllowed, models.ErrorCodeMethodNotAllowed, "Method not allowed")
	return nil
}
