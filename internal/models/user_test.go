package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewUser(t *testing.T) {
	user := NewUser(" ops-001 ", " Jane.Doe@Example.COM ", "Jane Doe", RoleProcessor)

	assert.Equal(t, "ops-001", user.OpsID)
	assert.Equal(t, "jane.doe@example.com", user.Email)
	assert.Equal(t, UserStatusActive, user.Status)
	assert.True(t, user.IsProcessor())
	assert.False(t, user.CreatedAt.IsZero())
}

func TestUser_Matches(t *testing.T) {
	user := NewUser("ops-042", "sam@example.com", "Sam Carter", RoleProcessor)
	user.ProcessorName = "North Hub"

	tests := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"OPS-042", true},
		{"carter", true},
		{"SAM@", true},
		{"north", true},
		{"south", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, user.Matches(tt.query))
		})
	}
}

func TestUser_ProcessorSummary(t *testing.T) {
	user := NewUser("ops-1", "a@example.com", "Alex", RoleProcessor)
	assert.Equal(t, "Alex", user.ProcessorSummary().Name)

	user.ProcessorName = "Alex (Hub 3)"
	assert.Equal(t, "Alex (Hub 3)", user.ProcessorSummary().Name)
}

func TestUser_Summary(t *testing.T) {
	user := NewUser("ops-1", "a@example.com", "Alex", RoleViewer)
	summary := user.Summary()

	assert.Equal(t, "ops-1", summary.OpsID)
	assert.Equal(t, "a@example.com", summary.Email)
	assert.Equal(t, RoleViewer, summary.Role)
}
