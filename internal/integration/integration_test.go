package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"opsportal/internal/api"
	"opsportal/internal/config"
	"opsportal/internal/errreport"
	"opsportal/internal/models"
	"opsportal/internal/observability"
	"opsportal/internal/ratelimit"
	"opsportal/internal/storage"
	"opsportal/internal/version"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests that run the whole stack against a SQLite database.

type stack struct {
	server   *httptest.Server
	metrics  *observability.MetricsServer
	store    storage.Storage
	registry *observability.Registry
}

func newStack(t *testing.T, yaml string) *stack {
	t.Helper()
	dir := t.TempDir()

	dsn := filepath.Join(dir, "portal.db")
	configFile := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("storage:\n  type: sqlite\n  database:\n    dsn: %q\n%s", dsn, yaml)
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	cfg, err := config.Load(configFile)
	require.NoError(t, err)

	provider, err := observability.Setup(cfg.Metrics, cfg.Observability, version.Info{Version: cfg.App.Version},
		observability.WithPrometheusRegistry(promclient.NewRegistry()),
		observability.WithoutGlobalProviders(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	base, err := storage.NewFactory().Create(cfg.Storage)
	require.NoError(t, err)
	t.Cleanup(func() { _ = base.Close() })

	store, err := observability.NewInstrumentedStorage(base, provider.Meter())
	require.NoError(t, err)

	registry, err := observability.NewRegistry(provider.Meter())
	require.NoError(t, err)
	reporter := errreport.New(cfg.ErrorReporting, nil)

	rl := cfg.Security.RateLimit
	ipLimiter := ratelimit.NewMemoryLimiter(ratelimit.Policy{Limit: rl.MaxRequests, Window: rl.Window}, rl.CleanupInterval)
	t.Cleanup(ipLimiter.Close)

	handlers := api.NewHandlers(store,
		api.WithRegistry(registry),
		api.WithReporter(reporter),
		api.WithBuildInfo(cfg.App.Name, cfg.Observability.ServiceName, cfg.App.Version),
	)
	router := api.SetupRoutes(handlers, api.RouteDeps{
		Instrumenter:   api.NewInstrumenter(registry, reporter),
		Auth:           api.NewSessionAuth(store, cfg.Security.SessionCookie),
		IPLimiter:      ipLimiter,
		SessionLimiter: ratelimit.NewSessionLimiter(store, ratelimit.Policy{Limit: rl.SessionMaxRequests, Window: rl.SessionWindow}, nil),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &stack{
		server:   server,
		metrics:  observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, provider),
		store:    store,
		registry: registry,
	}
}

func (s *stack) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	alice := models.NewUser("OPS-100", "alice@example.com", "Alice", models.RoleProcessor)
	require.NoError(t, s.store.SaveUser(ctx, alice))
	require.NoError(t, s.store.SaveUser(ctx, models.NewUser("OPS-200", "bob@example.com", "Bob", models.RoleProcessor)))
	require.NoError(t, s.store.SaveSession(ctx, models.NewSession("integration-session", alice, time.Hour)))
}

func (s *stack) get(t *testing.T, path string, session string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
	require.NoError(t, err)
	if session != "" {
		req.AddCookie(&http.Cookie{Name: "ops_session", Value: session})
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestIntegration_FullFlow(t *testing.T) {
	s := newStack(t, "")
	s.seed(t)

	// Step 1: health reports the database
	resp := s.get(t, "/api/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health models.HealthCheckResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, models.StatusHealthy, health.Status)
	assert.Equal(t, "connected", health.Database)
	assert.NotEmpty(t, resp.Header.Get(api.HeaderRequestID))

	// Step 2: lookups need a session
	resp = s.get(t, "/api/users/ops/OPS-100", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.get(t, "/api/users/ops/OPS-100", "integration-session")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "private, max-age=300, stale-while-revalidate=60", resp.Header.Get("Cache-Control"))
	var user models.UserResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	assert.Equal(t, "alice@example.com", user.User.Email)

	resp = s.get(t, "/api/users/ops/OPS-999", "integration-session")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Step 3: processors listing
	resp = s.get(t, "/api/processors?q=bo", "integration-session")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var processors models.ProcessorsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&processors))
	require.Len(t, processors.Processors, 1)
	assert.Equal(t, "OPS-200", processors.Processors[0].OpsID)

	// Step 4: the retired password endpoint
	pwResp, err := http.Post(s.server.URL+"/api/auth/change-password", "application/json",
		strings.NewReader(`{"ops_id":"OPS-100"}`))
	require.NoError(t, err)
	defer pwResp.Body.Close()
	assert.Equal(t, http.StatusGone, pwResp.StatusCode)
	body, err := io.ReadAll(pwResp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Password login is disabled. Use Google Sign-In or Seatalk."}`, string(body))

	// Step 5: every request above was counted, none as an error
	snap := s.registry.Snapshot()
	assert.Equal(t, int64(6), snap.RequestsTotal)
	assert.Equal(t, int64(0), snap.ErrorsTotal)

	// Step 6: the Prometheus endpoint exposes the request counter
	rr := httptest.NewRecorder()
	s.metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_server_requests")
}

func TestIntegration_ConcurrentSessionRequests(t *testing.T) {
	s := newStack(t, `
security:
  rate_limit:
    session_max_requests: 10
`)
	s.seed(t)

	const numRequests = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[int]int{}
	)

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, s.server.URL+"/api/users/ops/OPS-100", nil)
			if err != nil {
				return
			}
			req.AddCookie(&http.Cookie{Name: "ops_session", Value: "integration-session"})
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()

			mu.Lock()
			results[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, results[http.StatusOK], "exactly the limit is admitted")
	assert.Equal(t, 10, results[http.StatusTooManyRequests])

	record, err := s.store.GetSessionRateLimit(context.Background(), "integration-session")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, int64(numRequests), record.Count)
}

func TestIntegration_ConfigLoading(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "integration_config.yaml")

	configContent := `
app:
  name: "portal"
  version: "1.0.0"
server:
  port: 8081
  host: "127.0.0.1"
  read_timeout: 45s
storage:
  type: "memory"
security:
  session_cookie: "sid"
  rate_limit:
    enabled: true
    max_requests: 30
    session_window: 0s
logging:
  level: "debug"
  format: "text"
metrics:
  enabled: true
  port: 9091
`
	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))

	cfg, err := config.Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, models.StorageTypeMemory, cfg.Storage.Type)
	assert.Equal(t, "sid", cfg.Security.SessionCookie)
	assert.Equal(t, 30, cfg.Security.RateLimit.MaxRequests)
	assert.Equal(t, models.DefaultSessionLimitWindow, cfg.Security.RateLimit.SessionWindow)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 9091, cfg.Metrics.Port)

	store, err := storage.NewFactory().Create(cfg.Storage)
	require.NoError(t, err)
	defer store.Close()
	assert.NoError(t, store.Ping(context.Background()))
}
