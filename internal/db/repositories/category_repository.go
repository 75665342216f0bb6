// category_repository.go implements CategoryRepository. Categories are a
// small reference table; package_count is computed live against published
// packages on every list, never stored.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clawtools/clawtools/internal/db/models"
)

// CategoryRepository handles database operations for categories
type CategoryRepository struct {
	db *sql.DB
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// List returns all categories in sort order with a live count of published
// packages in each.
func (r *CategoryRepository) List(ctx context.Context) ([]*models.Category, error) {
	query := `
		SELECT c.id, c.name, c.slug, c.description, c.icon, c.parent_id, c.sort_order,
		       (SELECT COUNT(*) FROM packages p WHERE p.category = c.slug AND p.status = $1) AS package_count
		FROM categories c
		ORDER BY c.sort_order ASC, c.name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, models.PackageStatusPublished)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []*models.Category{}
	for rows.Next() {
		c := &models.Category{}
		err := rows.Scan(
			&c.ID,
			&c.Name,
			&c.Slug,
			&c.Description,
			&c.Icon,
			&c.ParentID,
			&c.SortOrder,
			&c.PackageCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// GetBySlug retrieves a category by slug, or nil if not found. Used at
// publish time to enforce that a package's category exists.
func (r *CategoryRepository) GetBySlug(ctx context.Context, slug string) (*models.Category, error) {
	query := `
		SELECT id, name, slug, description, icon, parent_id, sort_order
		FROM categories
		WHERE slug = $1
	`

	c := &models.Category{}
	err := r.db.QueryRowContext(ctx, query, slug).Scan(
		&c.ID,
		&c.Name,
		&c.Slug,
		&c.Description,
		&c.Icon,
		&c.ParentID,
		&c.SortOrder,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}
