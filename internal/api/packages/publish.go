package packages

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clawtools/clawtools/internal/config"
	"github.com/clawtools/clawtools/internal/db/models"
	"github.com/clawtools/clawtools/internal/db/repositories"
	"github.com/clawtools/clawtools/internal/middleware"
	"github.com/clawtools/clawtools/internal/telemetry"
	"github.com/clawtools/clawtools/internal/validation"
	"github.com/clawtools/clawtools/pkg/slug"
)

// PublishRequest is the payload for publishing a new package.
type PublishRequest struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	LongDescription *string  `json:"long_description"`
	Category        string   `json:"category"`
	Subcategory     *string  `json:"subcategory"`
	Version         string   `json:"version"`
	Author          string   `json:"author"`
	License         string   `json:"license"`
	MagnetURI       string   `json:"magnet_uri"`
	InfoHash        *string  `json:"info_hash"`
	Checksum        *string  `json:"checksum"`
	SizeBytes       *int64   `json:"size_bytes"`
	SizeDisplay     *string  `json:"size_display"`
	Platform        []string `json:"platform"`
	Compatibility   []string `json:"compatibility"`
	Dependencies    []string `json:"dependencies"`
	SourceURL       *string  `json:"source_url"`
	Homepage        *string  `json:"homepage"`
	IconURL         *string  `json:"icon_url"`
	Tags            []string `json:"tags"`
}

// PublishHandler handles new package submissions
// Implements: POST /api/v1/packages
func PublishHandler(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	packageRepo := repositories.NewPackageRepository(db)
	categoryRepo := repositories.NewCategoryRepository(db)

	return func(c *gin.Context) {
		var req PublishRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		// The route requires an identity. A caller may still name an explicit
		// author; when omitted, the authenticated identity's name is used.
		if req.Author == "" {
			if agent := middleware.AgentFromContext(c); agent != nil {
				req.Author = agent.Name
			} else if org := middleware.OrgFromContext(c); org != nil {
				req.Author = org.Name
			}
		}

		if err := validation.ValidatePublish(validation.PublishInput{
			Name:        req.Name,
			Description: req.Description,
			Category:    req.Category,
			Version:     req.Version,
			Author:      req.Author,
			MagnetURI:   req.MagnetURI,
		}); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		category, err := categoryRepo.GetBySlug(c.Request.Context(), req.Category)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to verify category",
			})
			return
		}
		if category == nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Unknown category: " + req.Category,
			})
			return
		}

		pkg := &models.Package{
			Name:            req.Name,
			Slug:            slug.Derive(req.Name),
			Description:     req.Description,
			LongDescription: req.LongDescription,
			Category:        req.Category,
			Subcategory:     req.Subcategory,
			Version:         req.Version,
			Author:          req.Author,
			License:         req.License,
			MagnetURI:       req.MagnetURI,
			InfoHash:        req.InfoHash,
			Checksum:        req.Checksum,
			SizeBytes:       req.SizeBytes,
			SizeDisplay:     req.SizeDisplay,
			Platform:        req.Platform,
			Compatibility:   req.Compatibility,
			Dependencies:    req.Dependencies,
			SourceURL:       req.SourceURL,
			Homepage:        req.Homepage,
			IconURL:         req.IconURL,
			Tags:            req.Tags,
		}

		if err := packageRepo.Create(c.Request.Context(), pkg); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				c.JSON(http.StatusConflict, gin.H{
					"error": "A package with that name already exists",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to publish package",
			})
			return
		}

		telemetry.PackagePublishesTotal.WithLabelValues(pkg.Category).Inc()

		c.JSON(http.StatusCreated, gin.H{
			"id":   pkg.ID,
			"slug": pkg.Slug,
		})
	}
}
