// stats.go implements the catalog-wide aggregate statistics endpoint.
package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/clawtools/clawtools/internal/db/models"
)

// StatsHandler handles stats-related API requests
type StatsHandler struct {
	db *sqlx.DB
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(database *sqlx.DB) *StatsHandler {
	return &StatsHandler{
		db: database,
	}
}

// GetStats returns catalog-wide totals. Only published packages count.
// Implements: GET /api/v1/stats
func (h *StatsHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	// Core counts — single round-trip.
	query := `
		SELECT
			(SELECT COUNT(*) FROM packages WHERE status = 'published') AS total_packages,
			(SELECT COALESCE(SUM(downloads), 0) FROM packages WHERE status = 'published') AS total_downloads,
			(SELECT COALESCE(SUM(seeders), 0) FROM packages WHERE status = 'published') AS total_seeders,
			(SELECT COUNT(*) FROM categories) AS total_categories
	`

	var stats models.Stats
	err := h.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalPackages,
		&stats.TotalDownloads,
		&stats.TotalSeeders,
		&stats.TotalCategories,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load catalog statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
