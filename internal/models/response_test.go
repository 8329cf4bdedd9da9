package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse("User not found", ErrorCodeNotFound).WithRequestID("req-1")

	assert.Equal(t, "error", resp.Error)
	assert.Equal(t, "User not found", resp.Message)
	assert.Equal(t, ErrorCodeNotFound, resp.Code)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestNewValidationErrorResponse(t *testing.T) {
	var fieldErrs FieldErrors
	fieldErrs.Add("ops_id", "ops_id is required")
	fieldErrs.Add("ops_id", "ops_id must be a string")

	resp := NewValidationErrorResponse([]string{"Unrecognized key(s) in object: 'extra'"}, fieldErrs)

	assert.Equal(t, "ops_id is required", resp.Error)
	assert.Equal(t, []string{"ops_id is required", "ops_id must be a string"}, resp.Details.FieldErrors["ops_id"])
	assert.Len(t, resp.Details.FormErrors, 1)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"field_errors"`)
	assert.Contains(t, string(data), `"form_errors"`)
}

func TestNewValidationErrorResponse_FormErrorsOnly(t *testing.T) {
	resp := NewValidationErrorResponse([]string{"Unrecognized key(s) in object: 'x'"}, nil)
	assert.Equal(t, "Unrecognized key(s) in object: 'x'", resp.Error)
	assert.NotNil(t, resp.Details.FieldErrors)

	empty := NewValidationErrorResponse(nil, nil)
	assert.Equal(t, "Invalid request body", empty.Error)
	assert.NotNil(t, empty.Details.FormErrors)
}
