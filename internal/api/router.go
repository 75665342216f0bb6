// Package api wires together all HTTP routes for the catalog server.
//
// Route grouping philosophy:
//   - Discovery routes (search, detail, versions, reviews, categories, stats,
//     trending, featured) are unauthenticated so any client can browse the
//     catalog without credentials.
//   - Publish and review submission accept either principal; the identity
//     middleware resolves whoever presented credentials and the guards on
//     each group enforce what is required.
//   - Credit ledger routes are agent-only. Account routes are org-only except
//     signup/login, which mint the session in the first place.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clawtools/clawtools/internal/api/accounts"
	"github.com/clawtools/clawtools/internal/api/catalog"
	"github.com/clawtools/clawtools/internal/api/credits"
	"github.com/clawtools/clawtools/internal/api/packages"
	"github.com/clawtools/clawtools/internal/config"
	"github.com/clawtools/clawtools/internal/db"
	"github.com/clawtools/clawtools/internal/db/repositories"
	"github.com/clawtools/clawtools/internal/jobs"
	"github.com/clawtools/clawtools/internal/middleware"
	"github.com/clawtools/clawtools/internal/safego"
)

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	sessionSweeper *jobs.SessionSweeper
	rateLimiters   []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.sessionSweeper != nil {
		bg.sessionSweeper.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, database *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Wrap *sql.DB with sqlx for the auth and credit repositories
	sqlxDB := db.Wrap(database)
	orgRepo := repositories.NewOrgRepository(sqlxDB)

	// Start the expired-session sweeper
	sessionSweeper := jobs.NewSessionSweeper(orgRepo, cfg.Jobs.SessionSweepIntervalMinutes)
	safego.Go("session-sweeper", func() {
		sessionSweeper.Start(context.Background())
	})
	log.Printf("Session sweeper started (checking every %d minutes)", cfg.Jobs.SessionSweepIntervalMinutes)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(database))

	// Readiness check endpoint
	router.GET("/ready", readinessHandler(database))

	// API version
	router.GET("/version", versionHandler())

	// Initialize rate limiters
	authRateLimiter := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
	generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())

	statsHandler := catalog.NewStatsHandler(sqlxDB)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.IdentityMiddleware(cfg, orgRepo))
	{
		// Public auth endpoints (no identity required, but strictly rate limited)
		authGroup := apiV1.Group("/auth")
		authGroup.Use(middleware.RateLimitMiddleware(authRateLimiter))
		{
			authGroup.POST("/signup", accounts.SignupHandler(database, cfg))
			authGroup.POST("/login", accounts.LoginHandler(database, cfg))
			authGroup.POST("/logout", accounts.LogoutHandler(database, cfg))
		}

		// Org-only account endpoints
		orgGroup := apiV1.Group("/auth")
		orgGroup.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		orgGroup.Use(middleware.RequireOrg())
		{
			orgGroup.GET("/me", accounts.MeHandler(database, cfg))
		}

		// Agent registration trades an org key for a bearer token, so it needs
		// no prior identity — but it mints credentials, hence the strict limit.
		agentGroup := apiV1.Group("/agents")
		{
			agentGroup.POST("/register",
				middleware.RateLimitMiddleware(authRateLimiter),
				accounts.RegisterAgentHandler(database, cfg))
			agentGroup.GET("/me",
				middleware.RateLimitMiddleware(generalRateLimiter),
				middleware.RequireAgent(),
				accounts.VerifyAgentHandler(database, cfg))
		}

		// Public catalog discovery endpoints
		publicGroup := apiV1.Group("")
		publicGroup.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		{
			publicGroup.GET("/packages", packages.SearchHandler(database, cfg))
			publicGroup.GET("/packages/trending", packages.TrendingHandler(database, cfg))
			publicGroup.GET("/packages/featured", packages.FeaturedHandler(database, cfg))
			publicGroup.GET("/packages/:slug", packages.GetHandler(database, cfg))
			publicGroup.GET("/packages/:slug/versions", packages.VersionsHandler(database, cfg))
			publicGroup.GET("/packages/:slug/reviews", packages.ListReviewsHandler(database, cfg))
			publicGroup.POST("/packages/:slug/download", packages.DownloadHandler(database, cfg))
			publicGroup.GET("/categories", catalog.CategoriesHandler(database, cfg))
			publicGroup.GET("/stats", statsHandler.GetStats)
		}

		// Contribution endpoints — any authenticated principal
		contribGroup := apiV1.Group("")
		contribGroup.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		contribGroup.Use(middleware.RequireIdentity())
		{
			contribGroup.POST("/packages", packages.PublishHandler(database, cfg))
			contribGroup.POST("/packages/:slug/reviews", packages.CreateReviewHandler(database, cfg))
		}

		// Credit ledger endpoints — agents only
		creditsGroup := apiV1.Group("/credits")
		creditsGroup.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		creditsGroup.Use(middleware.RequireAgent())
		{
			creditsGroup.GET("/balance", credits.BalanceHandler(database, cfg))
			creditsGroup.POST("/spend", credits.SpendHandler(database, cfg))
			creditsGroup.POST("/earn", credits.EarnHandler(database, cfg))
			creditsGroup.GET("/history", credits.HistoryHandler(database, cfg))
		}
	}

	backgroundServices := &BackgroundServices{
		sessionSweeper: sessionSweeper,
		rateLimiters:   []*middleware.RateLimiter{authRateLimiter, generalRateLimiter},
	}

	return router, backgroundServices
}

// @Summary      Health check
// @Description  Returns the liveness of the service. Checks database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: database not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
func readinessHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// reuse the same structured output; slog will emit text format when the global
	// handler is a TextHandler (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
