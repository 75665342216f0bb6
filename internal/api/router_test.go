package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawtools/clawtools/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testRouterConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.SessionCookieName = "ct_session"
	cfg.Auth.AgentTokenPrefix = "ct_agent_"
	cfg.Security.CORS.AllowedOrigins = []string{"https://clawtools.example.com"}
	cfg.Logging.Format = "json"
	return cfg
}

func newTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	router, bg := NewRouter(testRouterConfig(), db)
	t.Cleanup(bg.Shutdown)
	return router, mock
}

func doReq(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doReq(r, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["time"])
}

func TestReadyEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doReq(r, http.MethodGet, "/ready")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["ready"])
}

func TestVersionEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doReq(r, http.MethodGet, "/version")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "v1", body["api_version"])
}

func TestRequestIDHeaderOnResponses(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doReq(r, http.MethodGet, "/health")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSecurityHeadersOnResponses(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doReq(r, http.MethodGet, "/health")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestCreditsRoutesRequireAgentToken(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/credits/balance"},
		{http.MethodPost, "/api/v1/credits/spend"},
		{http.MethodPost, "/api/v1/credits/earn"},
		{http.MethodGet, "/api/v1/credits/history"},
	} {
		w := doReq(r, route.method, route.path)
		assert.Equalf(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}
}

func TestPublishRequiresIdentity(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doReq(r, http.MethodPost, "/api/v1/packages")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSearchIsPublic(t *testing.T) {
	r, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT COUNT.*FROM packages").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT.*FROM packages.*ORDER BY").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := doReq(r, http.MethodGet, "/api/v1/packages")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSAllowedOrigin(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://clawtools.example.com")
	r.ServeHTTP(w, req)

	assert.Equal(t, "https://clawtools.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSDisallowedOrigin(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	r.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOptionsPreflightReturnsNoContent(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doReq(r, http.MethodOptions, "/api/v1/packages")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
