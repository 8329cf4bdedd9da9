package ratelimit

import (
	"net/http"
	"strings"
)

// UnknownClient is the identifier used when a request carries no
// forwarded-for header. All such requests share one counter.
const UnknownClient = "unknown"

// ClientIP returns the first X-Forwarded-For entry, trimmed. The service
// sits behind a proxy that always sets the header, so RemoteAddr is not
// consulted.
func ClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return UnknownClient
	}
	first, _, _ := strings.Cut(xff, ",")
	if ip := strings.TrimSpace(first); ip != "" {
		return ip
	}
	return UnknownClient
}

// EnforceIP checks the IP limit of routeKey for the request's client.
func EnforceIP(limiter Limiter, routeKey string, r *http.Request) Decision {
	return limiter.Allow(Key{Scope: routeKey, Identifier: ClientIP(r)})
}
