// Package models - package.go defines the Package and Version models representing
// catalog entries distributed via magnet links and their published version history.
package models

import "time"

// Package statuses. Only published packages are visible in search and trending.
const (
	PackageStatusPublished = "published"
	PackageStatusPending   = "pending"
	PackageStatusRemoved   = "removed"
)

// Package represents a publishable, versioned, reviewable catalog entry.
// Platform, Compatibility, Dependencies, and Tags are typed slices at this
// boundary; they are serialized to JSON text columns only inside the
// repository layer.
type Package struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Slug            string   `json:"slug"`
	Description     string   `json:"description"`
	LongDescription *string  `json:"long_description,omitempty"`
	Category        string   `json:"category"`
	Subcategory     *string  `json:"subcategory,omitempty"`
	Version         string   `json:"version"`
	Author          string   `json:"author"`
	License         string   `json:"license"`
	MagnetURI       string   `json:"magnet_uri"`
	InfoHash        *string  `json:"info_hash,omitempty"`
	Checksum        *string  `json:"checksum,omitempty"`
	SizeBytes       *int64   `json:"size_bytes,omitempty"`
	SizeDisplay     *string  `json:"size_display,omitempty"`
	Platform        []string `json:"platform"`
	Compatibility   []string `json:"compatibility"`
	Dependencies    []string `json:"dependencies"`
	SourceURL       *string  `json:"source_url,omitempty"`
	Homepage        *string  `json:"homepage,omitempty"`
	IconURL         *string  `json:"icon_url,omitempty"`
	Tags            []string `json:"tags"`
	Downloads       int64    `json:"downloads"`
	// Rating and ReviewCount are derived data: they must always equal the
	// aggregate of the package's review set and are written only by
	// ReviewRepository.CreateReview inside the same transaction as the
	// review insert.
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"review_count"`
	Seeders     int       `json:"seeders"`
	Status      string    `json:"status"`
	Featured    bool      `json:"featured"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Version represents a specific published version of a package. Versions are
// immutable once created and are listed newest-first.
type Version struct {
	ID        string    `json:"id"`
	PackageID string    `json:"package_id"`
	Version   string    `json:"version"`
	MagnetURI string    `json:"magnet_uri"`
	Checksum  *string   `json:"checksum,omitempty"`
	SizeBytes *int64    `json:"size_bytes,omitempty"`
	Changelog *string   `json:"changelog,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchFilter holds the package search parameters. All fields are optional;
// zero values mean "no filter". Limit and Offset are clamped by the
// repository, never rejected.
type SearchFilter struct {
	Q             string
	Category      string
	Platform      string
	Compatibility string
	Sort          string
	Limit         int
	Offset        int
}

// Search sort modes. SortDownloads is the default and the fallback for
// unrecognized values.
const (
	SortDownloads = "downloads"
	SortRating    = "rating"
	SortNewest    = "newest"
	SortRelevance = "relevance"
)

// SearchResult is a page of search results plus the total match count under
// the same filter, so callers can compute page counts.
type SearchResult struct {
	Packages []*Package `json:"packages"`
	Total    int        `json:"total"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}

// Stats is the catalog-wide aggregate served by the stats endpoint.
type Stats struct {
	TotalPackages   int64 `json:"total_packages" db:"total_packages"`
	TotalDownloads  int64 `json:"total_downloads" db:"total_downloads"`
	TotalSeeders    int64 `json:"total_seeders" db:"total_seeders"`
	TotalCategories int64 `json:"total_categories" db:"total_categories"`
}
