// credit_repository.go implements CreditRepository: the append-only credit
// ledger and the agent balance it must always sum to. Every balance mutation
// locks the agent row (SELECT ... FOR UPDATE) so concurrent spends and earns
// for the same agent serialize, then writes the new balance and the ledger
// entry in the same transaction.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clawtools/clawtools/internal/db/models"
)

// HistoryLimit caps how many ledger entries a history query returns.
const HistoryLimit = 50

// CreditRepository handles database operations for the credit ledger
type CreditRepository struct {
	db *sqlx.DB
}

// NewCreditRepository creates a new credit repository
func NewCreditRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// Balance returns the agent's current credit balance. An unknown agent is an
// identity failure, not a missing resource: the ID came from a bearer token,
// so a vanished row means the principal is gone. Returns ErrUnauthorized.
func (r *CreditRepository) Balance(ctx context.Context, agentID string) (int, error) {
	var credits int
	err := r.db.GetContext(ctx, &credits, `SELECT credits FROM agents WHERE id = $1`, agentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("agent %q: %w", agentID, ErrUnauthorized)
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return credits, nil
}

// lockBalance reads the agent's balance with a row lock inside tx.
func lockBalance(ctx context.Context, tx *sqlx.Tx, agentID string) (int, error) {
	var credits int
	err := tx.QueryRowContext(ctx, `SELECT credits FROM agents WHERE id = $1 FOR UPDATE`, agentID).Scan(&credits)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("agent %q: %w", agentID, ErrUnauthorized)
		}
		return 0, fmt.Errorf("failed to lock agent: %w", err)
	}
	return credits, nil
}

// applyDelta writes the new balance and appends the ledger entry inside tx.
func applyDelta(ctx context.Context, tx *sqlx.Tx, agentID string, newBalance, amount int, reason string, packageSlug *string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE agents SET credits = $2 WHERE id = $1`, agentID, newBalance); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	query := `
		INSERT INTO credit_transactions (id, agent_id, amount, reason, package_slug)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, query, uuid.New().String(), agentID, amount, reason, packageSlug); err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// Spend deducts amount credits from the agent and appends a negative ledger
// entry. Returns the new balance. Returns ErrValidation for a non-positive
// amount and ErrInsufficientCredits when the balance is too low; neither
// mutates anything.
func (r *CreditRepository) Spend(ctx context.Context, agentID string, amount int, reason string, packageSlug *string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("spend amount must be positive: %w", ErrValidation)
	}
	if reason == "" {
		return 0, fmt.Errorf("spend reason is required: %w", ErrValidation)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	balance, err := lockBalance(ctx, tx, agentID)
	if err != nil {
		return 0, err
	}
	if balance < amount {
		return 0, fmt.Errorf("balance %d, need %d: %w", balance, amount, ErrInsufficientCredits)
	}

	newBalance := balance - amount
	if err := applyDelta(ctx, tx, agentID, newBalance, -amount, reason, packageSlug); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit spend: %w", err)
	}
	return newBalance, nil
}

// Earn credits an agent for a recognized reason and appends a positive ledger
// entry. The amount is pinned by the reason: a caller-supplied amount that
// differs from the canonical value is rejected with ErrValidation, never
// silently corrected. Pass amount 0 to accept the canonical value. Returns
// the new balance, or ErrValidation for an unknown reason.
func (r *CreditRepository) Earn(ctx context.Context, agentID string, amount int, reason string, packageSlug *string) (int, error) {
	canonical, ok := models.CanonicalEarnAmount(reason)
	if !ok {
		return 0, fmt.Errorf("unknown earn reason %q: %w", reason, ErrValidation)
	}
	if amount != 0 && amount != canonical {
		return 0, fmt.Errorf("earn amount for %q must be %d, got %d: %w", reason, canonical, amount, ErrValidation)
	}
	amount = canonical

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	balance, err := lockBalance(ctx, tx, agentID)
	if err != nil {
		return 0, err
	}

	newBalance := balance + amount
	if err := applyDelta(ctx, tx, agentID, newBalance, amount, reason, packageSlug); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit earn: %w", err)
	}
	return newBalance, nil
}

// History returns the agent's most recent ledger entries, newest first,
// capped at HistoryLimit.
func (r *CreditRepository) History(ctx context.Context, agentID string) ([]*models.CreditTransaction, error) {
	transactions := []*models.CreditTransaction{}
	query := `
		SELECT id, agent_id, amount, reason, package_slug, created_at
		FROM credit_transactions
		WHERE agent_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	err := r.db.SelectContext(ctx, &transactions, query, agentID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get credit history: %w", err)
	}
	return transactions, nil
}
