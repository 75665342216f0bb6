package packages

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clawtools/clawtools/internal/config"
	"github.com/clawtools/clawtools/internal/db/repositories"
)

// GetHandler handles package detail requests
// Implements: GET /api/v1/packages/:slug
func GetHandler(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	packageRepo := repositories.NewPackageRepository(db)

	return func(c *gin.Context) {
		slug := c.Param("slug")

		pkg, err := packageRepo.GetBySlug(c.Request.Context(), slug)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get package",
			})
			return
		}
		if pkg == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Package not found",
			})
			return
		}

		c.JSON(http.StatusOK, pkg)
	}
}

// VersionsHandler handles version history requests
// Implements: GET /api/v1/packages/:slug/versions
func VersionsHandler(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	packageRepo := repositories.NewPackageRepository(db)

	return func(c *gin.Context) {
		slug := c.Param("slug")

		versions, err := packageRepo.ListVersions(c.Request.Context(), slug)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list versions",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"versions": versions,
		})
	}
}

// DownloadHandler records a download and returns the package's magnet link
// Implements: POST /api/v1/packages/:slug/download
func DownloadHandler(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	packageRepo := repositories.NewPackageRepository(db)

	return func(c *gin.Context) {
		slug := c.Param("slug")

		pkg, err := packageRepo.GetBySlug(c.Request.Context(), slug)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get package",
			})
			return
		}
		if pkg == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Package not found",
			})
			return
		}

		if err := packageRepo.IncrementDownloads(c.Request.Context(), pkg.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to record download",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"magnet_uri": pkg.MagnetURI,
			"downloads":  pkg.Downloads + 1,
		})
	}
}

// TrendingHandler handles trending package requests
// Implements: GET /api/v1/packages/trending?category=<slug>
func TrendingHandler(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	packageRepo := repositories.NewPackageRepository(db)

	return func(c *gin.Context) {
		category := c.Query("category")

		pkgs, err := packageRepo.Trending(c.Request.Context(), category)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list trending packages",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"packages": pkgs,
		})
	}
}

// FeaturedHandler handles featured package requests
// Implements: GET /api/v1/packages/featured
func FeaturedHandler(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	packageRepo := repositories.NewPackageRepository(db)

	return func(c *gin.Context) {
		pkgs, err := packageRepo.ListFeatured(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list featured packages",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"packages": pkgs,
		})
	}
}
