// package_repository.go implements PackageRepository, providing database
// queries for catalog packages: publish, slug lookup, version history, and
// the filtered/ranked search that backs browse and the search API.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/clawtools/clawtools/internal/db/models"
)

// packageColumns is the canonical column list for package scans. The order
// must match scanPackage.
const packageColumns = `id, name, slug, description, long_description, category, subcategory,
	       version, author, license, magnet_uri, info_hash, checksum, size_bytes, size_display,
	       platform, compatibility, dependencies, source_url, homepage, icon_url, tags,
	       downloads, rating, review_count, seeders, status, featured, created_at, updated_at`

// PackageRepository handles database operations for packages and versions
type PackageRepository struct {
	db *sql.DB
}

// NewPackageRepository creates a new package repository
func NewPackageRepository(db *sql.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// marshalList JSON-encodes a string list for storage. Nil encodes as "[]" so
// list columns are never NULL and substring filters behave predictably.
func marshalList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// unmarshalList decodes a JSON-encoded list column, tolerating legacy empty
// or malformed values by returning an empty slice.
func unmarshalList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return []string{}
	}
	return values
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (duplicate name/slug/email).
func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPackage scans one package row in packageColumns order, decoding the
// JSON list columns into typed slices.
func scanPackage(row rowScanner) (*models.Package, error) {
	p := &models.Package{}
	var platform, compatibility, dependencies, tags string
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Slug,
		&p.Description,
		&p.LongDescription,
		&p.Category,
		&p.Subcategory,
		&p.Version,
		&p.Author,
		&p.License,
		&p.MagnetURI,
		&p.InfoHash,
		&p.Checksum,
		&p.SizeBytes,
		&p.SizeDisplay,
		&platform,
		&compatibility,
		&dependencies,
		&p.SourceURL,
		&p.Homepage,
		&p.IconURL,
		&tags,
		&p.Downloads,
		&p.Rating,
		&p.ReviewCount,
		&p.Seeders,
		&p.Status,
		&p.Featured,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Platform = unmarshalList(platform)
	p.Compatibility = unmarshalList(compatibility)
	p.Dependencies = unmarshalList(dependencies)
	p.Tags = unmarshalList(tags)
	return p, nil
}

// Search executes a filtered, ranked, paginated package search. Only
// published packages are ever returned. All supplied filters are conjunctive.
// Text matching is case-insensitive (ILIKE) over name, description, and the
// serialized tags column. The returned total counts all matches under the
// filter, ignoring limit/offset.
//
// Every sort mode ends with "id ASC" so repeated identical queries return an
// identical order even when the primary sort key ties.
func (r *PackageRepository) Search(ctx context.Context, filter models.SearchFilter) (*models.SearchResult, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	whereClause := "WHERE status = $1"
	args := []interface{}{models.PackageStatusPublished}
	argCount := 1

	if filter.Q != "" {
		argCount++
		whereClause += fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d OR tags ILIKE $%d)", argCount, argCount, argCount)
		args = append(args, "%"+filter.Q+"%")
	}
	if filter.Category != "" && filter.Category != "all" {
		argCount++
		whereClause += fmt.Sprintf(" AND category = $%d", argCount)
		args = append(args, filter.Category)
	}
	if filter.Platform != "" && filter.Platform != "any" {
		argCount++
		whereClause += fmt.Sprintf(" AND platform ILIKE $%d", argCount)
		args = append(args, "%"+filter.Platform+"%")
	}
	if filter.Compatibility != "" && filter.Compatibility != "any" {
		argCount++
		whereClause += fmt.Sprintf(" AND compatibility ILIKE $%d", argCount)
		args = append(args, "%"+filter.Compatibility+"%")
	}

	// Count total results under the filter alone.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM packages %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count packages: %w", err)
	}

	// The page query may take one extra arg: the relevance tier pattern.
	pageArgs := args
	orderBy := "downloads DESC, id ASC"
	switch filter.Sort {
	case models.SortRating:
		orderBy = "rating DESC, id ASC"
	case models.SortNewest:
		orderBy = "created_at DESC, id ASC"
	case models.SortRelevance:
		if filter.Q != "" {
			argCount++
			orderBy = fmt.Sprintf("CASE WHEN name ILIKE $%d THEN 0 ELSE 1 END, downloads DESC, id ASC", argCount)
			pageArgs = append(pageArgs, "%"+filter.Q+"%")
		}
	case models.SortDownloads, "":
		// default
	default:
		// Unrecognized sort values fall back to downloads.
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM packages
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, packageColumns, whereClause, orderBy, argCount+1, argCount+2)
	pageArgs = append(pageArgs, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to search packages: %w", err)
	}
	defer rows.Close()

	packages := []*models.Package{}
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		packages = append(packages, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating packages: %w", err)
	}

	return &models.SearchResult{
		Packages: packages,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// GetBySlug retrieves a package by its unique slug, or nil if not found.
func (r *PackageRepository) GetBySlug(ctx context.Context, slug string) (*models.Package, error) {
	query := fmt.Sprintf(`SELECT %s FROM packages WHERE slug = $1`, packageColumns)

	p, err := scanPackage(r.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get package: %w", err)
	}
	return p, nil
}

// Trending returns the top 20 published packages by downloads, optionally
// filtered by category. Ordering matches search with sort=downloads.
func (r *PackageRepository) Trending(ctx context.Context, category string) ([]*models.Package, error) {
	whereClause := "WHERE status = $1"
	args := []interface{}{models.PackageStatusPublished}

	if category != "" && category != "all" {
		whereClause += " AND category = $2"
		args = append(args, category)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM packages
		%s
		ORDER BY downloads DESC, id ASC
		LIMIT 20
	`, packageColumns, whereClause)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trending packages: %w", err)
	}
	defer rows.Close()

	packages := []*models.Package{}
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

// ListFeatured returns published packages with the featured flag set,
// most-downloaded first.
func (r *PackageRepository) ListFeatured(ctx context.Context) ([]*models.Package, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM packages
		WHERE status = $1 AND featured = true
		ORDER BY downloads DESC, id ASC
	`, packageColumns)

	rows, err := r.db.QueryContext(ctx, query, models.PackageStatusPublished)
	if err != nil {
		return nil, fmt.Errorf("failed to query featured packages: %w", err)
	}
	defer rows.Close()

	packages := []*models.Package{}
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

// Create inserts a new package together with its initial version row in one
// transaction, so a published package always has at least one version.
// Returns ErrConflict (wrapped) when the unique name or slug collides.
func (r *PackageRepository) Create(ctx context.Context, p *models.Package) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.License == "" {
		p.License = "MIT"
	}
	if p.Status == "" {
		p.Status = models.PackageStatusPublished
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO packages (id, name, slug, description, long_description, category, subcategory,
			version, author, license, magnet_uri, info_hash, checksum, size_bytes, size_display,
			platform, compatibility, dependencies, source_url, homepage, icon_url, tags,
			downloads, rating, review_count, seeders, status, featured)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		p.ID, p.Name, p.Slug, p.Description, p.LongDescription, p.Category, p.Subcategory,
		p.Version, p.Author, p.License, p.MagnetURI, p.InfoHash, p.Checksum, p.SizeBytes, p.SizeDisplay,
		marshalList(p.Platform), marshalList(p.Compatibility), marshalList(p.Dependencies),
		p.SourceURL, p.Homepage, p.IconURL, marshalList(p.Tags),
		p.Downloads, p.Rating, p.ReviewCount, p.Seeders, p.Status, p.Featured,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("package %q: %w", p.Name, ErrConflict)
		}
		return fmt.Errorf("failed to create package: %w", err)
	}

	versionQuery := `
		INSERT INTO versions (id, package_id, version, magnet_uri, checksum, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, versionQuery,
		uuid.New().String(), p.ID, p.Version, p.MagnetURI, p.Checksum, p.SizeBytes,
	); err != nil {
		return fmt.Errorf("failed to create initial version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit package create: %w", err)
	}
	return nil
}

// ListVersions returns the version history for the package with the given
// slug, newest first. An unknown slug yields an empty list, not an error:
// "no versions yet" is a valid state, not a fault.
func (r *PackageRepository) ListVersions(ctx context.Context, slug string) ([]*models.Version, error) {
	query := `
		SELECT v.id, v.package_id, v.version, v.magnet_uri, v.checksum, v.size_bytes, v.changelog, v.created_at
		FROM versions v
		JOIN packages p ON v.package_id = p.id
		WHERE p.slug = $1
		ORDER BY v.created_at DESC, v.id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	versions := []*models.Version{}
	for rows.Next() {
		v := &models.Version{}
		err := rows.Scan(
			&v.ID,
			&v.PackageID,
			&v.Version,
			&v.MagnetURI,
			&v.Checksum,
			&v.SizeBytes,
			&v.Changelog,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// IncrementDownloads bumps the download counter for a package. Called by the
// ingestion path, not by search.
func (r *PackageRepository) IncrementDownloads(ctx context.Context, packageID string) error {
	query := `
		UPDATE packages
		SET downloads = downloads + 1, updated_at = $2
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, packageID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to increment downloads: %w", err)
	}
	return nil
}
