// Package ratelimit provides fixed-window rate limiting for HTTP requests.
// IP-keyed limits are counted in process memory; session-keyed limits are
// counted by a SessionStore so they survive restarts and are shared across
// instances. HTTP middleware sets the standard rate limit response headers.
package ratelimit

import (
	"time"
)

// DefaultWindow is used when a policy is built with a non-positive window
// and no other fallback is supplied.
const DefaultWindow = time.Minute

// Key identifies one counter. Scope separates unrelated limits (a route, or
// "session") so equal identifiers in different scopes never share a counter.
type Key struct {
	Scope      string
	Identifier string
}

// String renders the key for logs and external stores.
func (k Key) String() string {
	return k.Scope + "|" + k.Identifier
}

// Policy is a limit of Limit requests per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Normalize returns the policy with a non-positive window replaced by
// fallback (or DefaultWindow when fallback is not positive either). The
// limit is kept as is: a limit of 0 or less rejects every request.
func (p Policy) Normalize(fallback time.Duration) Policy {
	if p.Window <= 0 {
		if fallback > 0 {
			p.Window = fallback
		} else {
			p.Window = DefaultWindow
		}
	}
	return p
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // meaningful only when denied
}

// decide turns the post-increment count of a window into a Decision.
func decide(p Policy, count int64, resetAt, now time.Time) Decision {
	limit := p.Limit
	if limit < 0 {
		limit = 0
	}
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d
}

// Limiter defines the in-process limiter contract. Implementations must be
// safe for concurrent use.
type Limiter interface {
	// Allow records one request for key and reports whether it is admitted.
	Allow(key Key) Decision

	// Close stops background goroutines and releases resources.
	Close()
}

// Clock returns the current time. Tests substitute a manual clock.
type Clock func() time.Time
