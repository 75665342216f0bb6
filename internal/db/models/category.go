// Package models - category.go defines the Category reference entity.
// Package→Category is a soft reference by slug; referential integrity is
// enforced at publish time, not by a foreign key.
package models

// Category is an independent reference entity used to group packages.
// PackageCount is computed live per request, never stored.
type Category struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	ParentID    *string `json:"parent_id,omitempty"`
	SortOrder   int     `json:"sort_order"`
	// Joined field (not stored in the categories table)
	PackageCount int64 `json:"package_count"`
}
