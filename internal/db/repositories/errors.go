// errors.go defines the sentinel errors shared by all repositories. Handlers
// classify repository failures with errors.Is against these sentinels and map
// them to HTTP statuses; anything not wrapping a sentinel is treated as a
// store failure (500).
package repositories

import "errors"

var (
	// ErrValidation indicates malformed, missing, or out-of-range input
	// (rating outside bounds, missing required publish fields, earn
	// amount/reason mismatch).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates an unknown slug or id referenced by a write
	// operation. Read operations that legitimately return empty sets
	// (versions/reviews of an unknown slug) do NOT return this.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate unique name, slug, or email on create.
	ErrConflict = errors.New("already exists")

	// ErrUnauthorized indicates an invalid principal: a bearer token or
	// session that does not resolve to a live agent or org (for example an
	// agent deleted after its token was issued). Maps to 401, never 404, so
	// auth failures do not leak resource existence.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientCredits indicates a spend that exceeds the agent's
	// balance. The spend performs no mutation in that case.
	ErrInsufficientCredits = errors.New("insufficient credits")
)
