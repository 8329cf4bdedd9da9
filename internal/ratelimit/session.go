package ratelimit

import (
	"context"
	"fmt"
	"time"

	"opsportal/internal/models"
)

// SessionScope is the key scope used for session counters.
const SessionScope = "session"

// SessionStore persists session counters outside the process.
// IncrementSessionRateLimit must be a single atomic operation at the store:
// it either creates the window (count 1, expiry now+window), resets an
// expired one, or increments the live one, and returns the result.
type SessionStore interface {
	GetSessionRateLimit(ctx context.Context, sessionID string) (*models.RateLimitRecord, error)
	ResetSessionRateLimit(ctx context.Context, sessionID string) error
	IncrementSessionRateLimit(ctx context.Context, sessionID string, window time.Duration, now time.Time) (*models.RateLimitRecord, error)
}

// SessionLimiter applies a fixed-window policy per session id using a
// SessionStore, so limits hold across restarts and instances.
type SessionLimiter struct {
	store  SessionStore
	policy Policy
	now    Clock
}

// NewSessionLimiter creates a session limiter. A non-positive window falls
// back to DefaultWindow.
func NewSessionLimiter(store SessionStore, policy Policy, now Clock) *SessionLimiter {
	if now == nil {
		now = time.Now
	}
	return &SessionLimiter{
		store:  store,
		policy: policy.Normalize(DefaultWindow),
		now:    now,
	}
}

// Policy returns the effective policy.
func (s *SessionLimiter) Policy() Policy {
	return s.policy
}

// Allow counts one request for sessionID. Store failures are returned to
// the caller, which decides how to answer the request.
func (s *SessionLimiter) Allow(ctx context.Context, sessionID string) (Decision, error) {
	now := s.now()
	rec, err := s.store.IncrementSessionRateLimit(ctx, sessionID, s.policy.Window, now)
	if err != nil {
		return Decision{}, fmt.Errorf("increment session rate limit: %w", err)
	}
	return decide(s.policy, rec.Count, rec.ExpiresAt, now), nil
}

// Peek reports the current state for sessionID without counting a request.
func (s *SessionLimiter) Peek(ctx context.Context, sessionID string) (Decision, error) {
	now := s.now()
	rec, err := s.store.GetSessionRateLimit(ctx, sessionID)
	if err != nil {
		return Decision{}, fmt.Errorf("get session rate limit: %w", err)
	}
	if rec == nil || rec.Expired(now) {
		return decide(s.policy, 0, now.Add(s.policy.Window), now), nil
	}
	return decide(s.policy, rec.Count, rec.ExpiresAt, now), nil
}

// Reset clears the counter for sessionID.
func (s *SessionLimiter) Reset(ctx context.Context, sessionID string) error {
	if err := s.store.ResetSessionRateLimit(ctx, sessionID); err != nil {
		return fmt.Errorf("reset session rate limit: %w", err)
	}
	return nil
}
