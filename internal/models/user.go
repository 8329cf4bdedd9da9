package models

import (
	"strings"
	"time"
)

// User roles
const (
	RoleAdmin     = "admin"
	RoleProcessor = "processor"
	RoleViewer    = "viewer"
)

// User status values
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// User is an operations staff member. OpsID is the stable identifier used
// across dispatch records; Email is the sign-in identity.
type User struct {
	OpsID         string    `json:"ops_id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	ProcessorName string    `json:"processor_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewUser creates an active user with normalized email and timestamps set.
func NewUser(opsID, email, name, role string) *User {
	now := time.Now().UTC()
	return &User{
		OpsID:     strings.TrimSpace(opsID),
		Email:     NormalizeEmail(email),
		Name:      strings.TrimSpace(name),
		Role:      role,
		Status:    UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsProcessor reports whether the user can be assigned dispatch work.
func (u *User) IsProcessor() bool {
	return u.Role == RoleProcessor
}

// Matches reports whether query matches the user's ops id, name, email or
// processor name, case-insensitively. An empty query matches everyone.
func (u *User) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	for _, field := range []string{u.OpsID, u.Name, u.Email, u.ProcessorName} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Summary returns the public projection of the user.
func (u *User) Summary() UserSummary {
	return UserSummary{
		OpsID:         u.OpsID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		Status:        u.Status,
		ProcessorName: u.ProcessorName,
	}
}

// ProcessorSummary returns the projection used by processor pickers.
func (u *User) ProcessorSummary() ProcessorSummary {
	name := u.ProcessorName
	if name == "" {
		name = u.Name
	}
	return ProcessorSummary{OpsID: u.OpsID, Name: name, Email: u.Email}
}

// NormalizeEmail lowercases and trims an email address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserSummary is the user shape returned by lookup endpoints.
type UserSummary struct {
	OpsID         string `json:"ops_id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	Status        string `json:"status"`
	ProcessorName string `json:"processor_name,omitempty"`
}

// ProcessorSummary is the compact shape returned by the processors listing.
type ProcessorSummary struct {
	OpsID string `json:"ops_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
