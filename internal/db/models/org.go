// Package models - org.go defines the auth-domain entities: organizations,
// their automated agents, human sessions, and the append-only credit ledger.
// These tables live in a separate persistence domain from the catalog and are
// never joined to it by SQL — only by agent/org identity at the application
// layer.
package models

import "time"

// Credit earn reasons and their canonical amounts. Earn requests whose amount
// does not exactly match the canonical value for the reason are rejected, not
// silently corrected.
const (
	CreditReasonReview      = "review"
	CreditReasonUpload      = "upload"
	CreditReasonSignupBonus = "signup_bonus"

	CreditAmountReview      = 2
	CreditAmountUpload      = 5
	CreditAmountSignupBonus = 10
)

// CanonicalEarnAmount returns the required amount for an earn reason, or
// false if the reason is unknown.
func CanonicalEarnAmount(reason string) (int, bool) {
	switch reason {
	case CreditReasonReview:
		return CreditAmountReview, true
	case CreditReasonUpload:
		return CreditAmountUpload, true
	case CreditReasonSignupBonus:
		return CreditAmountSignupBonus, true
	default:
		return 0, false
	}
}

// Org represents an organization account. OrgKey is the opaque key an org
// hands to its automated clients so they can self-register as agents.
type Org struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	OrgKey       string    `json:"org_key" db:"org_key"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Agent is an automated API client belonging to an org, authenticated via its
// bearer APIToken. Credits must always equal the sum of the agent's credit
// transactions; the repository enforces this with per-agent row locking.
type Agent struct {
	ID        string    `json:"id" db:"id"`
	OrgID     string    `json:"org_id" db:"org_id"`
	Name      string    `json:"name" db:"name"`
	APIToken  string    `json:"-" db:"api_token"`
	Scopes    string    `json:"scopes" db:"scopes"`
	Credits   int       `json:"credits" db:"credits"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// OrgSession is a human browser session for an org, identified by an opaque
// token stored in a cookie.
type OrgSession struct {
	Token     string    `json:"-" db:"token"`
	OrgID     string    `json:"org_id" db:"org_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// CreditTransaction is one immutable row in an agent's credit ledger. Amount
// is negative for spends and positive for earns.
type CreditTransaction struct {
	ID          string    `json:"id" db:"id"`
	AgentID     string    `json:"agent_id" db:"agent_id"`
	Amount      int       `json:"amount" db:"amount"`
	Reason      string    `json:"reason" db:"reason"`
	PackageSlug *string   `json:"package_slug,omitempty" db:"package_slug"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
