// Package credits implements the agent credit ledger HTTP handlers: balance,
// spend, earn, and transaction history. All routes are agent-only; the guards
// in internal/middleware reject anything without a valid bearer token.
package credits

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clawtools/clawtools/internal/config"
	"github.com/clawtools/clawtools/internal/db"
	"github.com/clawtools/clawtools/internal/db/models"
	"github.com/clawtools/clawtools/internal/db/repositories"
	"github.com/clawtools/clawtools/internal/middleware"
	"github.com/clawtools/clawtools/internal/telemetry"
)

// SpendRequest is the payload for spending credits.
type SpendRequest struct {
	Amount      int     `json:"amount"`
	Reason      string  `json:"reason"`
	PackageSlug *string `json:"package_slug"`
}

// EarnRequest is the payload for earning credits. The amount is fixed by the
// reason; a supplied amount that differs from the canonical value is rejected.
// The signup bonus is granted only at agent registration and cannot be
// requested here.
type EarnRequest struct {
	Amount      int     `json:"amount"`
	Reason      string  `json:"reason"`
	PackageSlug *string `json:"package_slug"`
}

// BalanceHandler returns the calling agent's credit balance
// Implements: GET /api/v1/credits/balance
func BalanceHandler(sqlDB *sql.DB, cfg *config.Config) gin.HandlerFunc {
	creditRepo := repositories.NewCreditRepository(db.Wrap(sqlDB))

	return func(c *gin.Context) {
		agent := middleware.AgentFromContext(c)
		if agent == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		balance, err := creditRepo.Balance(c.Request.Context(), agent.ID)
		if err != nil {
			if errors.Is(err, repositories.ErrUnauthorized) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown agent"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get balance"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"agent_id": agent.ID,
			"balance":  balance,
		})
	}
}

// SpendHandler deducts credits from the calling agent
// Implements: POST /api/v1/credits/spend
func SpendHandler(sqlDB *sql.DB, cfg *config.Config) gin.HandlerFunc {
	creditRepo := repositories.NewCreditRepository(db.Wrap(sqlDB))

	return func(c *gin.Context) {
		agent := middleware.AgentFromContext(c)
		if agent == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req SpendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		balance, err := creditRepo.Spend(c.Request.Context(), agent.ID, req.Amount, req.Reason, req.PackageSlug)
		if err != nil {
			switch {
			case errors.Is(err, repositories.ErrValidation):
				telemetry.CreditOperationsTotal.WithLabelValues("spend", "error").Inc()
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, repositories.ErrInsufficientCredits):
				telemetry.CreditOperationsTotal.WithLabelValues("spend", "insufficient").Inc()
				c.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient credits"})
			case errors.Is(err, repositories.ErrUnauthorized):
				telemetry.CreditOperationsTotal.WithLabelValues("spend", "error").Inc()
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown agent"})
			default:
				telemetry.CreditOperationsTotal.WithLabelValues("spend", "error").Inc()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to spend credits"})
			}
			return
		}

		telemetry.CreditOperationsTotal.WithLabelValues("spend", "ok").Inc()

		c.JSON(http.StatusOK, gin.H{
			"balance": balance,
		})
	}
}

// EarnHandler credits the calling agent for a recognized contribution
// Implements: POST /api/v1/credits/earn
func EarnHandler(sqlDB *sql.DB, cfg *config.Config) gin.HandlerFunc {
	creditRepo := repositories.NewCreditRepository(db.Wrap(sqlDB))

	return func(c *gin.Context) {
		agent := middleware.AgentFromContext(c)
		if agent == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req EarnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		if req.Reason != models.CreditReasonReview && req.Reason != models.CreditReasonUpload {
			telemetry.CreditOperationsTotal.WithLabelValues("earn", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "reason must be review or upload"})
			return
		}

		balance, err := creditRepo.Earn(c.Request.Context(), agent.ID, req.Amount, req.Reason, req.PackageSlug)
		if err != nil {
			telemetry.CreditOperationsTotal.WithLabelValues("earn", "error").Inc()
			switch {
			case errors.Is(err, repositories.ErrValidation):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, repositories.ErrUnauthorized):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown agent"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to earn credits"})
			}
			return
		}

		telemetry.CreditOperationsTotal.WithLabelValues("earn", "ok").Inc()

		c.JSON(http.StatusOK, gin.H{
			"balance": balance,
		})
	}
}

// HistoryHandler returns the calling agent's most recent ledger entries
// Implements: GET /api/v1/credits/history
func HistoryHandler(sqlDB *sql.DB, cfg *config.Config) gin.HandlerFunc {
	creditRepo := repositories.NewCreditRepository(db.Wrap(sqlDB))

	return func(c *gin.Context) {
		agent := middleware.AgentFromContext(c)
		if agent == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		transactions, err := creditRepo.History(c.Request.Context(), agent.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get history"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"transactions": transactions,
		})
	}
}
