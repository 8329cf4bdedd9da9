package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"opsportal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsServer_ServesRegistryMetrics(t *testing.T) {
	provider, err := testSetup(t,
		models.MetricsConfig{Enabled: true, Path: "/metrics", Port: 9090},
		models.ObservabilityConfig{ServiceName: "test"},
	)
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	registry, err := NewRegistry(provider.Meter())
	require.NoError(t, err)
	registry.Observe(context.Background(), RequestObservation{Route: "ping", Method: "GET", Status: 200})

	ms := NewMetricsServer(9090, "/metrics", provider)
	rr := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_server_requests")
}

func TestMetricsServer_StartAndShutdown(t *testing.T) {
	provider, err := testSetup(t,
		models.MetricsConfig{Enabled: true, Path: "/metrics"},
		models.ObservabilityConfig{ServiceName: "test"},
	)
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	ms := NewMetricsServer(0, "/metrics", provider)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ms.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, ms.Shutdown(ctx))

	assert.Equal(t, http.ErrServerClosed, <-errCh)
}

func TestNewMetricsServer_NilProvider(t *testing.T) {
	ms := NewMetricsServer(9090, "/metrics", nil)
	require.NotNil(t, ms)

	rr := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
