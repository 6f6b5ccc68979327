package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/app"
	"github.com/upb/llm-failover-router/config"
	"github.com/upb/llm-failover-router/repositories/postgres"
	"github.com/upb/llm-failover-router/services/providers"
	"github.com/upb/llm-failover-router/services/routing"
)

const enabledKeysQuery = "FROM api_keys\\s+WHERE is_enabled = true"

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Crypto:      config.CryptoConfig{EncryptionKey: strings.Repeat("0f", 32)},
		Router: config.RouterConfig{
			ExclusionTTL:    65 * time.Second,
			ProviderTimeout: time.Second,
			Endpoints:       providers.DefaultEndpoints(),
		},
		Recorder: config.RecorderConfig{BufferSize: 10, Workers: 1, PersistTimeout: time.Second, ShutdownTimeout: time.Second},
		Admin:    config.AdminConfig{Password: "letmein", JWTSecret: "routes-test-secret", SessionTTL: time.Hour},
		RateLimit: config.RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			Burst:             5,
			ClientTTL:         time.Minute,
		},
		Observability: config.ObservabilityConfig{MetricsEnabled: true},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()

	factory := postgres.NewRepositoryFactoryWithDB(postgres.WrapDB(db, zap.NewNop()), zap.NewNop())
	deps, err := app.NewDependenciesWithFactory(context.Background(), cfg, factory, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		mock.ExpectClose()
		_ = deps.Close(context.Background())
	})
	return SetupRoutes(deps), mock
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutes_Health(t *testing.T) {
	h, _ := newTestServer(t, testConfig())

	w := do(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestRoutes_ChatFallsBackWithEmptyCatalog(t *testing.T) {
	h, mock := newTestServer(t, testConfig())
	mock.ExpectQuery(enabledKeysQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"prompt":"hello"}`))
	w := do(h, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, routing.FallbackProvider, resp["provider"])
	assert.Equal(t, routing.FallbackModel, resp["model"])
	assert.NotNil(t, resp["orchestration"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoutes_ChatRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Burst = 1
	h, mock := newTestServer(t, cfg)
	mock.ExpectQuery(enabledKeysQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	first := do(h, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"prompt":"one"}`)))
	second := do(h, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"prompt":"two"}`)))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestRoutes_AdminRequiresSession(t *testing.T) {
	h, _ := newTestServer(t, testConfig())

	for _, target := range []string{"/api/admin/keys", "/api/admin/logs", "/api/admin/session", "/api/admin/keys/1/logs"} {
		w := do(h, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, target)
	}
}

func TestRoutes_LoginThenSession(t *testing.T) {
	h, _ := newTestServer(t, testConfig())

	w := do(h, httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(`{"password":"letmein"}`)))
	require.Equal(t, http.StatusOK, w.Code)

	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&login))
	require.NotEmpty(t, login.Token)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/session", nil)
		req.Header.Set("Authorization", "Bearer "+login.Token)

		assert.Equal(t, http.StatusOK, do(h, req).Code)
	})

	t.Run("session cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/session", nil)
		for _, c := range w.Result().Cookies() {
			req.AddCookie(c)
		}

		assert.Equal(t, http.StatusOK, do(h, req).Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := do(h, httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(`{"password":"nope"}`)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRoutes_NotFoundAndMethod(t *testing.T) {
	h, _ := newTestServer(t, testConfig())

	assert.Equal(t, http.StatusNotFound, do(h, httptest.NewRequest(http.MethodGet, "/nope", nil)).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, httptest.NewRequest(http.MethodGet, "/api/chat", nil)).Code)
}
