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
)

// ReviewRequest is the payload for submitting a review.
type ReviewRequest struct {
	Rating  int      `json:"rating"`
	Review  *string  `json:"review"`
	WorksOn []string `json:"works_on"`
	Issues  []string `json:"issues"`
}

// ListReviewsHandler handles review listing requests. An unknown slug yields
// an empty list, not a 404: "no reviews yet" is a valid state, not a fault.
// Implements: GET /api/v1/packages/:slug/reviews
func ListReviewsHandler(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	reviewRepo := repositories.NewReviewRepository(db)

	return func(c *gin.Context) {
		reviews, err := reviewRepo.ListByPackageSlug(c.Request.Context(), c.Param("slug"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list reviews",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"reviews": reviews,
		})
	}
}

// CreateReviewHandler handles review submissions. The caller must be
// authenticated; the reviewer name and type come from the resolved identity,
// never from the payload.
// Implements: POST /api/v1/packages/:slug/reviews
func CreateReviewHandler(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	packageRepo := repositories.NewPackageRepository(db)
	reviewRepo := repositories.NewReviewRepository(db)

	return func(c *gin.Context) {
		var req ReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		var reviewer, reviewerType string
		if agent := middleware.AgentFromContext(c); agent != nil {
			reviewer = agent.Name
			reviewerType = models.ReviewerTypeAgent
		} else if org := middleware.OrgFromContext(c); org != nil {
			reviewer = org.Name
			reviewerType = models.ReviewerTypeHuman
		} else {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		pkg, err := packageRepo.GetBySlug(c.Request.Context(), c.Param("slug"))
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

		review := &models.Review{
			PackageID:    pkg.ID,
			Reviewer:     reviewer,
			ReviewerType: reviewerType,
			Rating:       req.Rating,
			Review:       req.Review,
			WorksOn:      req.WorksOn,
			Issues:       req.Issues,
		}

		if err := reviewRepo.Create(c.Request.Context(), review); err != nil {
			switch {
			case errors.Is(err, repositories.ErrValidation):
				c.JSON(http.StatusBadRequest, gin.H{
					"error": err.Error(),
				})
			case errors.Is(err, repositories.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{
					"error": "Package not found",
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to create review",
				})
			}
			return
		}

		telemetry.ReviewsCreatedTotal.WithLabelValues(reviewerType).Inc()

		c.JSON(http.StatusCreated, gin.H{
			"id": review.ID,
		})
	}
}
