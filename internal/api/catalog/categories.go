// Package catalog implements the catalog-wide HTTP handlers: the category
// listing and the aggregate stats endpoint.
package catalog

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clawtools/clawtools/internal/config"
	"github.com/clawtools/clawtools/internal/db/repositories"
)

// CategoriesHandler handles category listing requests. Each category carries a
// live count of its published packages.
// Implements: GET /api/v1/categories
func CategoriesHandler(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	categoryRepo := repositories.NewCategoryRepository(db)

	return func(c *gin.Context) {
		categories, err := categoryRepo.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list categories",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"categories": categories,
		})
	}
}
