package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name string
		xff  string
		want string
	}{
		{name: "single address", xff: "203.0.113.9", want: "203.0.113.9"},
		{name: "first of chain", xff: " 203.0.113.9 , 10.0.0.1, 10.0.0.2", want: "203.0.113.9"},
		{name: "missing header", xff: "", want: UnknownClient},
		{name: "blank first entry", xff: " , 10.0.0.1", want: UnknownClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/ping", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestEnforceIP_UnknownClientsShareCounter(t *testing.T) {
	limiter := NewMemoryLimiter(Policy{Limit: 1, Window: time.Minute}, time.Hour)
	defer limiter.Close()

	a := httptest.NewRequest("GET", "/api/ping", nil)
	a.RemoteAddr = "192.168.1.1:1000"
	b := httptest.NewRequest("GET", "/api/ping", nil)
	b.RemoteAddr = "192.168.1.2:1000"

	assert.True(t, EnforceIP(limiter, "ping", a).Allowed)
	assert.False(t, EnforceIP(limiter, "ping", b).Allowed)
}
