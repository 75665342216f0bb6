// org_repository.go implements OrgRepository over sqlx: organization
// accounts, their browser sessions, and agent registration. Agent creation
// grants the signup bonus inside the same transaction that creates the agent,
// so a freshly registered agent's balance already matches its ledger.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clawtools/clawtools/internal/db/models"
)

// SessionTTL is how long an org session stays valid after creation.
const SessionTTL = 30 * 24 * time.Hour

// OrgRepository handles database operations for orgs, sessions, and agents
type OrgRepository struct {
	db *sqlx.DB
}

// NewOrgRepository creates a new org repository
func NewOrgRepository(db *sqlx.DB) *OrgRepository {
	return &OrgRepository{db: db}
}

// CreateOrg inserts a new organization. Returns ErrConflict (wrapped) when
// the email is already registered.
func (r *OrgRepository) CreateOrg(ctx context.Context, org *models.Org) error {
	if org.ID == "" {
		org.ID = uuid.New().String()
	}

	query := `
		INSERT INTO orgs (id, name, email, password_hash, org_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		org.ID, org.Name, org.Email, org.PasswordHash, org.OrgKey,
	).Scan(&org.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("org %q: %w", org.Email, ErrConflict)
		}
		return fmt.Errorf("failed to create org: %w", err)
	}
	return nil
}

// GetOrgByEmail retrieves an org by email, or nil if not found.
func (r *OrgRepository) GetOrgByEmail(ctx context.Context, email string) (*models.Org, error) {
	org := &models.Org{}
	err := r.db.GetContext(ctx, org,
		`SELECT id, name, email, password_hash, org_key, created_at FROM orgs WHERE email = $1`, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get org by email: %w", err)
	}
	return org, nil
}

// GetOrgByID retrieves an org by id, or nil if not found.
func (r *OrgRepository) GetOrgByID(ctx context.Context, id string) (*models.Org, error) {
	org := &models.Org{}
	err := r.db.GetContext(ctx, org,
		`SELECT id, name, email, password_hash, org_key, created_at FROM orgs WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get org by id: %w", err)
	}
	return org, nil
}

// GetOrgByKey retrieves an org by its org key, or nil if not found. Used by
// agent self-registration.
func (r *OrgRepository) GetOrgByKey(ctx context.Context, orgKey string) (*models.Org, error) {
	org := &models.Org{}
	err := r.db.GetContext(ctx, org,
		`SELECT id, name, email, password_hash, org_key, created_at FROM orgs WHERE org_key = $1`, orgKey)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get org by key: %w", err)
	}
	return org, nil
}

// CreateSession stores an opaque session token for an org, valid for
// SessionTTL from now.
func (r *OrgRepository) CreateSession(ctx context.Context, token, orgID string) (*models.OrgSession, error) {
	session := &models.OrgSession{
		Token:     token,
		OrgID:     orgID,
		ExpiresAt: time.Now().Add(SessionTTL),
	}

	query := `
		INSERT INTO org_sessions (token, org_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, session.Token, session.OrgID, session.ExpiresAt).
		Scan(&session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetSessionOrg resolves a session token to its org. Expired or unknown
// tokens resolve to nil, not an error.
func (r *OrgRepository) GetSessionOrg(ctx context.Context, token string) (*models.Org, error) {
	org := &models.Org{}
	query := `
		SELECT o.id, o.name, o.email, o.password_hash, o.org_key, o.created_at
		FROM org_sessions s
		JOIN orgs o ON s.org_id = o.id
		WHERE s.token = $1 AND s.expires_at > NOW()
	`
	err := r.db.GetContext(ctx, org, query, token)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found or expired
		}
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	return org, nil
}

// DeleteSession removes a session token (logout). Deleting an unknown token
// is not an error.
func (r *OrgRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM org_sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions purges sessions past their expiry and returns how
// many were removed. Called by the background sweeper.
func (r *OrgRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM org_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	return count, nil
}

// CreateAgent registers an agent under an org and grants the signup bonus.
// The agent row and the bonus ledger entry commit together, so the agent's
// stored balance equals the sum of its transactions from the first moment it
// exists.
func (r *OrgRepository) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	agent.Credits = models.CreditAmountSignupBonus
	query := `
		INSERT INTO agents (id, org_id, name, api_token, scopes, credits)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err = tx.QueryRowContext(ctx, query,
		agent.ID, agent.OrgID, agent.Name, agent.APIToken, agent.Scopes, agent.Credits,
	).Scan(&agent.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("agent %q: %w", agent.Name, ErrConflict)
		}
		return fmt.Errorf("failed to create agent: %w", err)
	}

	bonusQuery := `
		INSERT INTO credit_transactions (id, agent_id, amount, reason)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.ExecContext(ctx, bonusQuery,
		uuid.New().String(), agent.ID, models.CreditAmountSignupBonus, models.CreditReasonSignupBonus,
	); err != nil {
		return fmt.Errorf("failed to record signup bonus: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit agent create: %w", err)
	}
	return nil
}

// GetAgentByToken retrieves an agent by its bearer token, or nil if not
// found. This is the bearer-auth lookup on every agent request.
func (r *OrgRepository) GetAgentByToken(ctx context.Context, token string) (*models.Agent, error) {
	agent := &models.Agent{}
	err := r.db.GetContext(ctx, agent,
		`SELECT id, org_id, name, api_token, scopes, credits, created_at FROM agents WHERE api_token = $1`, token)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get agent by token: %w", err)
	}
	return agent, nil
}

// ListAgentsByOrg returns all agents registered under an org, oldest first.
func (r *OrgRepository) ListAgentsByOrg(ctx context.Context, orgID string) ([]*models.Agent, error) {
	agents := []*models.Agent{}
	err := r.db.SelectContext(ctx, &agents,
		`SELECT id, org_id, name, api_token, scopes, credits, created_at FROM agents WHERE org_id = $1 ORDER BY created_at ASC, id ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}
