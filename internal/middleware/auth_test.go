package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/clawtools/clawtools/internal/config"
	"github.com/clawtools/clawtools/internal/db/repositories"
)

var identityOrgCols = []string{"id", "name", "email", "password_hash", "org_key", "created_at"}
var identityAgentCols = []string{"id", "org_id", "name", "api_token", "scopes", "credits", "created_at"}

func testAuthConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			AgentTokenPrefix:  "ct_agent_",
			SessionCookieName: "ct_session",
			BcryptCost:        4,
		},
	}
}

// newIdentityRouter wires IdentityMiddleware over a sqlmock-backed org repo
// and exposes probe routes for each guard.
func newIdentityRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	orgRepo := repositories.NewOrgRepository(sqlx.NewDb(db, "sqlmock"))

	r := gin.New()
	r.Use(IdentityMiddleware(testAuthConfig(), orgRepo))
	r.GET("/agent-only", RequireAgent(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"agent_id": AgentFromContext(c).ID})
	})
	r.GET("/org-only", RequireOrg(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"org_id": OrgFromContext(c).ID})
	})
	r.GET("/any", RequireIdentity(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/public", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r, mock
}

func TestIdentityMiddleware_BearerTokenResolvesAgent(t *testing.T) {
	r, mock := newIdentityRouter(t)
	mock.ExpectQuery("SELECT.*FROM agents WHERE api_token").
		WithArgs("ct_agent_good").
		WillReturnRows(sqlmock.NewRows(identityAgentCols).
			AddRow("agent-1", "org-1", "crawler", "ct_agent_good", "", 10, time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/agent-only", nil)
	req.Header.Set("Authorization", "Bearer ct_agent_good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
}

func TestIdentityMiddleware_UnknownBearerTokenIsAnonymous(t *testing.T) {
	r, mock := newIdentityRouter(t)
	mock.ExpectQuery("SELECT.*FROM agents WHERE api_token").
		WillReturnRows(sqlmock.NewRows(identityAgentCols))

	req := httptest.NewRequest(http.MethodGet, "/agent-only", nil)
	req.Header.Set("Authorization", "Bearer ct_agent_bogus")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestIdentityMiddleware_SessionCookieResolvesOrg(t *testing.T) {
	r, mock := newIdentityRouter(t)
	mock.ExpectQuery("SELECT.*FROM org_sessions.*JOIN orgs").
		WithArgs("session-tok").
		WillReturnRows(sqlmock.NewRows(identityOrgCols).
			AddRow("org-1", "Acme", "ops@acme.test", "hash", "ok_abc", time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/org-only", nil)
	req.AddCookie(&http.Cookie{Name: "ct_session", Value: "session-tok"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
}

func TestIdentityMiddleware_ExpiredSessionIsAnonymous(t *testing.T) {
	r, mock := newIdentityRouter(t)
	mock.ExpectQuery("SELECT.*FROM org_sessions.*JOIN orgs").
		WillReturnRows(sqlmock.NewRows(identityOrgCols))

	req := httptest.NewRequest(http.MethodGet, "/org-only", nil)
	req.AddCookie(&http.Cookie{Name: "ct_session", Value: "stale-tok"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestIdentityMiddleware_BearerOutranksCookie(t *testing.T) {
	r, mock := newIdentityRouter(t)
	// Only the agent lookup should run; the session cookie is ignored.
	mock.ExpectQuery("SELECT.*FROM agents WHERE api_token").
		WillReturnRows(sqlmock.NewRows(identityAgentCols).
			AddRow("agent-1", "org-1", "crawler", "ct_agent_good", "", 10, time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/agent-only", nil)
	req.Header.Set("Authorization", "Bearer ct_agent_good")
	req.AddCookie(&http.Cookie{Name: "ct_session", Value: "session-tok"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected queries: %v", err)
	}
}

func TestIdentityMiddleware_AnonymousOnPublicRoute(t *testing.T) {
	r, _ := newIdentityRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRequireIdentity_RejectsAnonymous(t *testing.T) {
	r, _ := newIdentityRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/any", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAgentFromContext_NilWhenAbsent(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if AgentFromContext(c) != nil {
		t.Error("AgentFromContext() = non-nil for empty context")
	}
	if OrgFromContext(c) != nil {
		t.Error("OrgFromContext() = non-nil for empty context")
	}
}
