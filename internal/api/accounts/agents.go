// agents.go implements agent self-registration and bearer-token verification.
package accounts

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clawtools/clawtools/internal/auth"
	"github.com/clawtools/clawtools/internal/config"
	"github.com/clawtools/clawtools/internal/db"
	"github.com/clawtools/clawtools/internal/db/models"
	"github.com/clawtools/clawtools/internal/db/repositories"
	"github.com/clawtools/clawtools/internal/middleware"
)

// RegisterAgentRequest is the payload for registering an agent under an org.
type RegisterAgentRequest struct {
	OrgKey string `json:"org_key"`
	Name   string `json:"name"`
}

// RegisterAgentHandler trades an org key for a new agent identity. The bearer
// token appears in this response only; it is never shown again. The new agent
// starts with the signup credit bonus.
// Implements: POST /api/v1/agents/register
func RegisterAgentHandler(sqlDB *sql.DB, cfg *config.Config) gin.HandlerFunc {
	orgRepo := repositories.NewOrgRepository(db.Wrap(sqlDB))

	return func(c *gin.Context) {
		var req RegisterAgentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if req.OrgKey == "" || req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "org_key and name are required"})
			return
		}

		org, err := orgRepo.GetOrgByKey(c.Request.Context(), req.OrgKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register agent"})
			return
		}
		if org == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid org key"})
			return
		}

		token, err := auth.GenerateAgentToken(cfg.Auth.AgentTokenPrefix)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register agent"})
			return
		}

		agent := &models.Agent{
			OrgID:    org.ID,
			Name:     req.Name,
			APIToken: token,
		}
		if err := orgRepo.CreateAgent(c.Request.Context(), agent); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register agent"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"agent": gin.H{
				"id":      agent.ID,
				"name":    agent.Name,
				"org_id":  agent.OrgID,
				"credits": agent.Credits,
			},
			"token": token,
		})
	}
}

// VerifyAgentHandler confirms a bearer token is valid and returns the agent it
// belongs to. Guarded by RequireAgent.
// Implements: GET /api/v1/agents/me
func VerifyAgentHandler(sqlDB *sql.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		agent := middleware.AgentFromContext(c)
		if agent == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"agent": agent,
		})
	}
}
