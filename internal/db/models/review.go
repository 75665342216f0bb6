// Package models - review.go defines the Review model and its reviewer-type
// constants. Reviews are immutable; creating one is the sole trigger for
// recomputing the parent package's aggregate rating.
package models

import "time"

// Reviewer types.
const (
	ReviewerTypeAgent = "agent"
	ReviewerTypeHuman = "human"
)

// Rating bounds for reviews (inclusive integers).
const (
	MinRating = 1
	MaxRating = 5
)

// Review represents a single review of a package. WorksOn and Issues are
// typed slices at this boundary, JSON-encoded only in the repository layer.
type Review struct {
	ID           string    `json:"id"`
	PackageID    string    `json:"package_id"`
	Reviewer     string    `json:"reviewer"`
	ReviewerType string    `json:"reviewer_type"`
	Rating       int       `json:"rating"`
	Review       *string   `json:"review,omitempty"`
	WorksOn      []string  `json:"works_on"`
	Issues       []string  `json:"issues"`
	CreatedAt    time.Time `json:"created_at"`
}
