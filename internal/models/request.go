// Package models - API request types and input validation.
// Request structs carry json tags for decoding and jsonschema tags for the
// schema the validation package derives from them. Semantic checks that a
// schema cannot express live in Validate methods.
package models

import "strings"

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string
	Message string
}

// FieldErrors is an ordered list of field problems. Order matters: the first
// entry becomes the top-level error message.
type FieldErrors []FieldError

// Add appends an error for field.
func (fe *FieldErrors) Add(field, message string) {
	*fe = append(*fe, FieldError{Field: field, Message: message})
}

// ChangePasswordRequest is the retired password-change payload. The endpoint
// still validates it so stale clients get precise 400s.
type ChangePasswordRequest struct {
	OpsID string `json:"ops_id" jsonschema:"required,minLength=1"`
}

func (r *ChangePasswordRequest) Validate() FieldErrors {
	var errs FieldErrors
	if strings.TrimSpace(r.OpsID) == "" {
		errs.Add("ops_id", "ops_id must be a non-empty string")
	}
	return errs
}

// ProcessorQuery holds the filters accepted by the processors listing.
type ProcessorQuery struct {
	Query string
	Limit int
}

const (
	DefaultProcessorLimit = 50
	MaxProcessorLimit     = 200
)

// Normalize trims the query and clamps the limit into [1, MaxProcessorLimit].
func (q *ProcessorQuery) Normalize() {
	q.Query = strings.TrimSpace(q.Query)
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultProcessorLimit
	case q.Limit > MaxProcessorLimit:
		q.Limit = MaxProcessorLimit
	}
}
