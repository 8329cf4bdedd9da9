// Package cachecontrol renders Cache-Control header values from declarative
// policies and provides the named presets used by API responses.
package cachecontrol

import (
	"strconv"
	"strings"
	"time"
)

// Scope controls which caches may store a response.
type Scope string

const (
	ScopePrivate Scope = "private"
	ScopePublic  Scope = "public"
)

// NoStore is the header value for responses that must never be cached.
const NoStore = "no-store"

// Policy describes how long a response may be reused before revalidation.
type Policy struct {
	Scope                Scope
	MaxAge               int // seconds
	StaleWhileRevalidate int // seconds, omitted when 0
}

// Build renders the policy as a Cache-Control header value:
//
//	<scope>, max-age=<n>[, stale-while-revalidate=<m>]
//
// An empty scope renders as private and a negative max-age as 0.
func Build(p Policy) string {
	scope := p.Scope
	if scope == "" {
		scope = ScopePrivate
	}
	maxAge := p.MaxAge
	if maxAge < 0 {
		maxAge = 0
	}

	var b strings.Builder
	b.WriteString(string(scope))
	b.WriteString(", max-age=")
	b.WriteString(strconv.Itoa(maxAge))
	if p.StaleWhileRevalidate > 0 {
		b.WriteString(", stale-while-revalidate=")
		b.WriteString(strconv.Itoa(p.StaleWhileRevalidate))
	}
	return b.String()
}

// ToSeconds converts a duration to whole seconds for a cache header. Any
// positive duration yields at least 1; zero and negative durations yield 0.
func ToSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// For builds a policy from durations.
func For(scope Scope, maxAge, staleWhileRevalidate time.Duration) Policy {
	return Policy{
		Scope:                scope,
		MaxAge:               ToSeconds(maxAge),
		StaleWhileRevalidate: ToSeconds(staleWhileRevalidate),
	}
}
