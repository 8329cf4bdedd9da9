// Package models - API response types and error handling.
// This file defines the outgoing API response structures.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Optional fields use omitempty to reduce response size
// - Error bodies never carry internal error detail for business endpoints
// - RFC3339 timestamps
package models

import (
	"time"
)

// ErrorResponse is the shared error body.
type ErrorResponse struct {
	Error     string    `json:"error"`                // Error type (always "error")
	Message   string    `json:"message"`              // Human-readable error description
	Code      string    `json:"code,omitempty"`       // Machine-readable error code
	Timestamp time.Time `json:"timestamp"`            // Error occurrence time
	RequestID string    `json:"request_id,omitempty"` // Correlates with server logs
}

// ValidationErrorResponse is returned for request bodies that fail their
// schema. Error repeats the first problem so simple clients can show it.
type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details ValidationDetails `json:"details"`
}

// ValidationDetails splits problems into object-level and per-field lists.
type ValidationDetails struct {
	FormErrors  []string            `json:"form_errors"`
	FieldErrors map[string][]string `json:"field_errors"`
}

// DisabledFeatureResponse is the literal body for retired endpoints.
type DisabledFeatureResponse struct {
	Error string `json:"error"`
}

const PasswordLoginDisabledMessage = "Password login is disabled. Use Google Sign-In or Seatalk."

type HealthCheckResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Service       string    `json:"service"`
	App           string    `json:"app"`
	Version       string    `json:"version"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	RequestsTotal int64     `json:"requests_total"`
	ErrorsTotal   int64     `json:"errors_total"`
	Database      string    `json:"database"`
	Error         string    `json:"error,omitempty"`
}

type ReadinessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

type PingResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type MetricsResponse struct {
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	RequestsTotal int64     `json:"requests_total"`
	ErrorsTotal   int64     `json:"errors_total"`
}

type UserResponse struct {
	User UserSummary `json:"user"`
}

type ProcessorsResponse struct {
	Processors []ProcessorSummary `json:"processors"`
	Count      int                `json:"count"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
	StatusOK        = "ok"
)

// Standard HTTP Error Codes
const (
	ErrorCodeNotFound           = "NOT_FOUND"           // 404: Resource doesn't exist
	ErrorCodeBadRequest         = "BAD_REQUEST"         // 400: Invalid request format
	ErrorCodeValidation         = "VALIDATION_ERROR"    // 400: Input validation failed
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeUnauthorized       = "UNAUTHORIZED"        // 401: Session required
	ErrorCodeRateLimited        = "RATE_LIMIT_EXCEEDED" // 429: Too many requests
	ErrorCodeGone               = "GONE"                // 410: Feature retired
	ErrorCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"  // 405
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503: Dependency down
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// WithRequestID attaches a request id to the error body.
func (e *ErrorResponse) WithRequestID(id string) *ErrorResponse {
	e.RequestID = id
	return e
}

// NewValidationErrorResponse builds a validation body from object-level
// messages and ordered field errors. The first message overall becomes Error.
func NewValidationErrorResponse(formErrors []string, fieldErrors FieldErrors) *ValidationErrorResponse {
	resp := &ValidationErrorResponse{
		Details: ValidationDetails{
			FormErrors:  []string{},
			FieldErrors: make(map[string][]string),
		},
	}
	resp.Details.FormErrors = append(resp.Details.FormErrors, formErrors...)
	for _, fe := range fieldErrors {
		resp.Details.FieldErrors[fe.Field] = append(resp.Details.FieldErrors[fe.Field], fe.Message)
	}

	switch {
	case len(fieldErrors) > 0:
		resp.Error = fieldErrors[0].Message
	case len(formErrors) > 0:
		resp.Error = formErrors[0]
	default:
		resp.Error = "Invalid request body"
	}
	return resp
}
