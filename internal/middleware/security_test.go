package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSecurityHeadersMiddleware_APIDefaults(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware(APISecurityHeadersConfig()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	checks := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "no-referrer",
	}
	for header, want := range checks {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}

	hsts := w.Header().Get("Strict-Transport-Security")
	if !strings.HasPrefix(hsts, "max-age=31536000") {
		t.Errorf("Strict-Transport-Security = %q, want max-age=31536000 prefix", hsts)
	}
	if !strings.Contains(hsts, "includeSubDomains") {
		t.Errorf("Strict-Transport-Security = %q, want includeSubDomains", hsts)
	}
}

func TestSecurityHeadersMiddleware_DisabledSectionsOmitted(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware(SecurityHeadersConfig{}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, header := range []string{"Strict-Transport-Security", "X-Frame-Options", "Content-Security-Policy"} {
		if got := w.Header().Get(header); got != "" {
			t.Errorf("%s = %q, want unset", header, got)
		}
	}
}
