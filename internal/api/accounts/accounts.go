// Package accounts implements the account HTTP handlers: org signup, login,
// logout, and profile, plus agent self-registration and token verification.
//
// Orgs authenticate with an email/password pair and receive an opaque session
// cookie. Agents never log in interactively: an org hands its org key to an
// automated client, which trades it for a bearer token shown exactly once.
package accounts

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clawtools/clawtools/internal/auth"
	"github.com/clawtools/clawtools/internal/config"
	"github.com/clawtools/clawtools/internal/db"
	"github.com/clawtools/clawtools/internal/db/models"
	"github.com/clawtools/clawtools/internal/db/repositories"
	"github.com/clawtools/clawtools/internal/middleware"
)

// SignupRequest is the payload for creating an org account.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the payload for org login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func setSessionCookie(c *gin.Context, cfg *config.Config, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.Auth.SessionCookieName, token, maxAge, "/", "", cfg.Auth.SessionCookieSecure, true)
}

// SignupHandler creates an org account and logs it in immediately.
// Implements: POST /api/v1/auth/signup
func SignupHandler(sqlDB *sql.DB, cfg *config.Config) gin.HandlerFunc {
	orgRepo := repositories.NewOrgRepository(db.Wrap(sqlDB))

	return func(c *gin.Context) {
		var req SignupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if req.Name == "" || req.Email == "" || len(req.Password) < 8 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "name, email, and a password of at least 8 characters are required",
			})
			return
		}

		passwordHash, err := auth.HashPassword(req.Password, cfg.Auth.BcryptCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
			return
		}

		orgKey, err := auth.GenerateOrgKey()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
			return
		}

		org := &models.Org{
			Name:         req.Name,
			Email:        req.Email,
			PasswordHash: passwordHash,
			OrgKey:       orgKey,
		}
		if err := orgRepo.CreateOrg(c.Request.Context(), org); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				c.JSON(http.StatusConflict, gin.H{"error": "An account with that email already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
			return
		}

		token, err := auth.GenerateSessionToken()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}
		if _, err := orgRepo.CreateSession(c.Request.Context(), token, org.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}
		setSessionCookie(c, cfg, token, int(repositories.SessionTTL.Seconds()))

		c.JSON(http.StatusCreated, gin.H{
			"org": gin.H{
				"id":      org.ID,
				"name":    org.Name,
				"email":   org.Email,
				"org_key": org.OrgKey,
			},
		})
	}
}

// LoginHandler authenticates an org and issues a session cookie.
// Implements: POST /api/v1/auth/login
func LoginHandler(sqlDB *sql.DB, cfg *config.Config) gin.HandlerFunc {
	orgRepo := repositories.NewOrgRepository(db.Wrap(sqlDB))

	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		req.Email = strings.TrimSpace(strings.ToLower(req.Email))

		org, err := orgRepo.GetOrgByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log in"})
			return
		}
		// Same response for unknown email and wrong password.
		if org == nil || !auth.VerifyPassword(req.Password, org.PasswordHash) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}

		token, err := auth.GenerateSessionToken()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}
		if _, err := orgRepo.CreateSession(c.Request.Context(), token, org.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}
		setSessionCookie(c, cfg, token, int(repositories.SessionTTL.Seconds()))

		c.JSON(http.StatusOK, gin.H{
			"org": gin.H{
				"id":    org.ID,
				"name":  org.Name,
				"email": org.Email,
			},
		})
	}
}

// LogoutHandler deletes the caller's session and clears the cookie. Logging
// out without a session is not an error.
// Implements: POST /api/v1/auth/logout
func LogoutHandler(sqlDB *sql.DB, cfg *config.Config) gin.HandlerFunc {
	orgRepo := repositories.NewOrgRepository(db.Wrap(sqlDB))

	return func(c *gin.Context) {
		if token, err := c.Cookie(cfg.Auth.SessionCookieName); err == nil && token != "" {
			if err := orgRepo.DeleteSession(c.Request.Context(), token); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log out"})
				return
			}
		}
		setSessionCookie(c, cfg, "", -1)

		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// MeHandler returns the logged-in org's profile, including its org key and
// registered agents. Guarded by RequireOrg.
// Implements: GET /api/v1/auth/me
func MeHandler(sqlDB *sql.DB, cfg *config.Config) gin.HandlerFunc {
	orgRepo := repositories.NewOrgRepository(db.Wrap(sqlDB))

	return func(c *gin.Context) {
		org := middleware.OrgFromContext(c)
		if org == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		agents, err := orgRepo.ListAgentsByOrg(c.Request.Context(), org.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list agents"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"org":    org,
			"agents": agents,
		})
	}
}
