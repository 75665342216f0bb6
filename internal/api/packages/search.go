// Package packages implements the package catalog HTTP handlers: search,
// detail, version history, reviews, trending, featured, and publish.
//
// search.go implements the package search and discovery endpoint.
package packages

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clawtools/clawtools/internal/config"
	"github.com/clawtools/clawtools/internal/db/models"
	"github.com/clawtools/clawtools/internal/db/repositories"
	"github.com/clawtools/clawtools/internal/telemetry"
)

// SearchHandler handles package search requests
// Implements: GET /api/v1/packages?q=<query>&category=<slug>&platform=<p>&compatibility=<c>&sort=<mode>&limit=<n>&offset=<n>
func SearchHandler(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	packageRepo := repositories.NewPackageRepository(db)

	return func(c *gin.Context) {
		filter := models.SearchFilter{
			Q:             c.Query("q"),
			Category:      c.Query("category"),
			Platform:      c.Query("platform"),
			Compatibility: c.Query("compatibility"),
			Sort:          c.DefaultQuery("sort", models.SortDownloads),
		}

		// Malformed pagination values fall back to defaults; the repository
		// clamps the ranges.
		if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
			filter.Limit = limit
		} else {
			filter.Limit = 20
		}
		if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
			filter.Offset = offset
		}

		result, err := packageRepo.Search(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to search packages",
			})
			return
		}

		telemetry.PackageSearchesTotal.WithLabelValues(filter.Sort).Inc()

		c.JSON(http.StatusOK, gin.H{
			"packages": result.Packages,
			"meta": gin.H{
				"limit":  result.Limit,
				"offset": result.Offset,
				"total":  result.Total,
			},
		})
	}
}
