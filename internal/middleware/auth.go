// Package middleware provides Gin HTTP middleware for authentication, rate
// limiting, security headers, metrics, and request IDs.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RequestID → Metrics → RateLimit → Identity → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before identity resolution to block brute-force attacks
// before any DB work. Identity resolution populates the org or agent in the
// request context; the Require* guards read from that context.
//
// Two principals exist and they are resolved from different credentials:
//
//   - Orgs (humans in a browser) authenticate with an opaque session token
//     carried in a cookie.
//   - Agents (automated clients) authenticate with an opaque bearer token in
//     the Authorization header.
//
// A request authenticates as at most one of the two. The bearer token wins
// when both are present, since an explicit Authorization header is a stronger
// signal of intent than an ambient cookie.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clawtools/clawtools/internal/auth"
	"github.com/clawtools/clawtools/internal/config"
	"github.com/clawtools/clawtools/internal/db/models"
	"github.com/clawtools/clawtools/internal/db/repositories"
)

// gin.Context keys populated by IdentityMiddleware.
const (
	OrgKey     = "org"
	OrgIDKey   = "org_id"
	AgentKey   = "agent"
	AgentIDKey = "agent_id"
)

// IdentityMiddleware resolves the caller's identity, if any, and stores it in
// the gin.Context. It never rejects a request: anonymous access is allowed on
// public routes, and the Require* guards enforce authentication where needed.
// Invalid credentials simply resolve to no identity.
func IdentityMiddleware(cfg *config.Config, orgRepo *repositories.OrgRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bearer token first: an explicit Authorization header outranks an
		// ambient session cookie.
		if header := c.GetHeader("Authorization"); header != "" {
			if token, err := auth.ExtractBearerToken(header); err == nil {
				agent, err := orgRepo.GetAgentByToken(c.Request.Context(), token)
				if err == nil && agent != nil {
					c.Set(AgentKey, agent)
					c.Set(AgentIDKey, agent.ID)
					c.Next()
					return
				}
			}
		}

		if token, err := c.Cookie(cfg.Auth.SessionCookieName); err == nil && token != "" {
			org, err := orgRepo.GetSessionOrg(c.Request.Context(), token)
			if err == nil && org != nil {
				c.Set(OrgKey, org)
				c.Set(OrgIDKey, org.ID)
			}
		}

		c.Next()
	}
}

// RequireAgent aborts with 401 unless the request authenticated as an agent.
func RequireAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(AgentKey); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Agent token required",
			})
			return
		}
		c.Next()
	}
}

// RequireOrg aborts with 401 unless the request authenticated as an org
// session.
func RequireOrg() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(OrgKey); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Session required",
			})
			return
		}
		c.Next()
	}
}

// RequireIdentity aborts with 401 unless the request authenticated as either
// an org or an agent.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, hasOrg := c.Get(OrgKey)
		_, hasAgent := c.Get(AgentKey)
		if !hasOrg && !hasAgent {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}
		c.Next()
	}
}

// AgentFromContext returns the authenticated agent, or nil.
func AgentFromContext(c *gin.Context) *models.Agent {
	if v, exists := c.Get(AgentKey); exists {
		if agent, ok := v.(*models.Agent); ok {
			return agent
		}
	}
	return nil
}

// OrgFromContext returns the authenticated org, or nil.
func OrgFromContext(c *gin.Context) *models.Org {
	if v, exists := c.Get(OrgKey); exists {
		if org, ok := v.(*models.Org); ok {
			return org
		}
	}
	return nil
}
