// review_repository.go implements ReviewRepository. Review creation and the
// recomputation of the parent package's aggregate rating happen inside one
// transaction, with the package row locked for the duration, so the stored
// rating/review_count can never drift from the review set under concurrency.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/clawtools/clawtools/internal/db/models"
)

// ReviewRepository handles database operations for reviews
type ReviewRepository struct {
	db *sql.DB
}

// NewReviewRepository creates a new review repository
func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// roundRating rounds an average rating to one decimal place, half away from
// zero: 4.25 stores as 4.3.
func roundRating(avg float64) float64 {
	return math.Round(avg*10) / 10
}

// Create inserts a review for a package and recomputes the package's rating
// and review_count from the full review set, atomically. Returns
// ErrValidation for an out-of-range rating and ErrNotFound for an unknown
// package id; in both cases nothing is written.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	if review.Rating < models.MinRating || review.Rating > models.MaxRating {
		return fmt.Errorf("rating must be between %d and %d: %w", models.MinRating, models.MaxRating, ErrValidation)
	}
	if review.Reviewer == "" {
		return fmt.Errorf("reviewer is required: %w", ErrValidation)
	}
	if review.ReviewerType == "" {
		review.ReviewerType = models.ReviewerTypeAgent
	}
	if review.ID == "" {
		review.ID = uuid.New().String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the package row so concurrent review inserts serialize their
	// aggregate recomputations.
	var packageID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM packages WHERE id = $1 FOR UPDATE`, review.PackageID).Scan(&packageID)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("package %q: %w", review.PackageID, ErrNotFound)
		}
		return fmt.Errorf("failed to lock package: %w", err)
	}

	insertQuery := `
		INSERT INTO reviews (id, package_id, reviewer, reviewer_type, rating, review, works_on, issues)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err = tx.QueryRowContext(ctx, insertQuery,
		review.ID, review.PackageID, review.Reviewer, review.ReviewerType,
		review.Rating, review.Review, marshalList(review.WorksOn), marshalList(review.Issues),
	).Scan(&review.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create review: %w", err)
	}

	var avg float64
	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(rating), 0), COUNT(*) FROM reviews WHERE package_id = $1`,
		review.PackageID,
	).Scan(&avg, &count)
	if err != nil {
		return fmt.Errorf("failed to aggregate reviews: %w", err)
	}

	updateQuery := `
		UPDATE packages
		SET rating = $2, review_count = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, updateQuery, review.PackageID, roundRating(avg), count); err != nil {
		return fmt.Errorf("failed to update package rating: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review: %w", err)
	}
	return nil
}

// ListByPackageSlug returns all reviews for the package with the given slug,
// newest first. An unknown slug yields an empty list.
func (r *ReviewRepository) ListByPackageSlug(ctx context.Context, slug string) ([]*models.Review, error) {
	query := `
		SELECT rv.id, rv.package_id, rv.reviewer, rv.reviewer_type, rv.rating, rv.review,
		       rv.works_on, rv.issues, rv.created_at
		FROM reviews rv
		JOIN packages p ON rv.package_id = p.id
		WHERE p.slug = $1
		ORDER BY rv.created_at DESC, rv.id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []*models.Review{}
	for rows.Next() {
		rv := &models.Review{}
		var worksOn, issues string
		err := rows.Scan(
			&rv.ID,
			&rv.PackageID,
			&rv.Reviewer,
			&rv.ReviewerType,
			&rv.Rating,
			&rv.Review,
			&worksOn,
			&issues,
			&rv.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		rv.WorksOn = unmarshalList(worksOn)
		rv.Issues = unmarshalList(issues)
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}
