package models

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// Session is a signed-in browser session. Sessions are issued by the sign-in
// flow and only read by the API.
type Session struct {
	ID        string    `json:"id"`
	OpsID     string    `json:"ops_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSession creates a session for the user that expires after ttl.
func NewSession(id string, user *User, ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		OpsID:     user.OpsID,
		Email:     user.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the session is no longer valid at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// GenerateSessionID produces a random opaque session token.
func GenerateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RateLimitRecord is a fixed-window counter for one (scope, identifier) pair.
// Count never decreases inside a window; once ExpiresAt passes the next hit
// starts a fresh window.
type RateLimitRecord struct {
	Key       string    `json:"key"`
	Count     int64     `json:"count"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record's window has elapsed at now.
func (r *RateLimitRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Hit applies one request to the record at now using the given window and
// returns the updated record. A nil or expired record starts a new window.
func (r *RateLimitRecord) Hit(key string, now time.Time, window time.Duration) *RateLimitRecord {
	if r == nil || r.Expired(now) {
		return &RateLimitRecord{Key: key, Count: 1, ExpiresAt: now.Add(window)}
	}
	return &RateLimitRecord{Key: r.Key, Count: r.Count + 1, ExpiresAt: r.ExpiresAt}
}
