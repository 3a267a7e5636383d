package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/server/query"
	"github.com/iudanet/tourbook/internal/server/storage"
)

// Review reads join the author's public profile fields, mirroring the
// relation expansion every review fetch carries.
const reviewColumns = `r.id, r.body, r.rating, r.tour_id, r.created_by,
	r.created_at, r.updated_at, u.name, u.photo`

const reviewSelect = `SELECT ` + reviewColumns + `
	FROM reviews r
	JOIN users u ON u.id = r.created_by`

var reviewListColumns = map[string]string{
	"rating":     "r.rating",
	"tour_id":    "r.tour_id",
	"created_by": "r.created_by",
	"created_at": "r.created_at",
}

// ReviewRepo is the sqlite review collection.
type ReviewRepo struct {
	store *Store
}

// NewReviewRepo creates the review repository over the shared store.
func NewReviewRepo(store *Store) *ReviewRepo {
	return &ReviewRepo{store: store}
}

func scanReview(row scanner) (*models.Review, error) {
	rev := &models.Review{}
	err := row.Scan(
		&rev.ID,
		&rev.Body,
		&rev.Rating,
		&rev.TourID,
		&rev.CreatedBy,
		&rev.CreatedAt,
		&rev.UpdatedAt,
		&rev.AuthorName,
		&rev.AuthorPhoto,
	)
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// List returns reviews matching the directive. Nested tour routes scope
// the listing with a tour_id filter clause.
func (r *ReviewRepo) List(ctx context.Context, d *query.Directive) ([]models.Review, error) {
	where, args, err := d.Where(reviewListColumns)
	if err != nil {
		return nil, err
	}
	order, err := d.OrderBy(reviewListColumns)
	if err != nil {
		return nil, err
	}
	if len(d.Sort) == 0 {
		order = "r.created_at DESC"
	}

	q := reviewSelect
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY " + order + " LIMIT ? OFFSET ?"
	args = append(args, d.Limit, d.Offset())

	rows, err := r.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		rev, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, *rev)
	}
	return reviews, rows.Err()
}

// listForTour loads all reviews of one tour, newest first. Used by the
// tour repository for relation expansion.
func (r *ReviewRepo) listForTour(ctx context.Context, tourID string) ([]models.Review, error) {
	rows, err := r.store.db.QueryContext(ctx,
		reviewSelect+` WHERE r.tour_id = ? ORDER BY r.created_at DESC`, tourID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tour reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		rev, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, *rev)
	}
	return reviews, rows.Err()
}

// Get fetches a review by id with its author expanded.
func (r *ReviewRepo) Get(ctx context.Context, id string) (*models.Review, error) {
	row := r.store.db.QueryRowContext(ctx, reviewSelect+` WHERE r.id = ?`, id)
	rev, err := scanReview(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return rev, nil
}

// Create validates and inserts a new review. A second review by the
// same user on the same tour violates the unique index.
func (r *ReviewRepo) Create(ctx context.Context, rev *models.Review) error {
	if rev.ID == "" {
		rev.ID = uuid.New().String()
	}
	rev.Rating = models.RoundRating(rev.Rating)
	now := time.Now()
	rev.CreatedAt = now
	rev.UpdatedAt = now

	if err := rev.Validate(); err != nil {
		return err
	}

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO reviews (id, body, rating, tour_id, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rev.ID, rev.Body, rev.Rating, rev.TourID, rev.CreatedBy,
		rev.CreatedAt, rev.UpdatedAt,
	)
	if err != nil {
		return mapUnique(err, rev.TourID)
	}
	return nil
}

// Update applies a partial update and re-validates the result. Only the
// body and rating are patchable; a review never moves between tours.
func (r *ReviewRepo) Update(ctx context.Context, id string, patch map[string]any) (*models.Review, error) {
	rev, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	for k, v := range patch {
		switch k {
		case "review":
			if s, ok := v.(string); ok {
				rev.Body = s
			}
		case "rating":
			if f, ok := floatVal(v); ok {
				rev.Rating = models.RoundRating(f)
			}
		}
	}
	if err := rev.Validate(); err != nil {
		return nil, err
	}
	rev.UpdatedAt = time.Now()

	res, err := r.store.db.ExecContext(ctx, `
		UPDATE reviews SET body = ?, rating = ?, updated_at = ? WHERE id = ?`,
		rev.Body, rev.Rating, rev.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storage.ErrNotFound
	}
	return rev, nil
}

// Delete removes a review by id.
func (r *ReviewRepo) Delete(ctx context.Context, id string) error {
	res, err := r.store.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecalcTourRating recomputes the owning tour's aggregate rating from
// its current reviews in a single statement. A tour with no reviews
// falls back to the schema defaults.
func (r *ReviewRepo) RecalcTourRating(ctx context.Context, tourID string) error {
	_, err := r.store.db.ExecContext(ctx, `
		UPDATE tours SET
			num_ratings = (SELECT COUNT(*) FROM reviews WHERE tour_id = ?),
			avg_rating = ROUND(COALESCE(
				(SELECT AVG(rating) FROM reviews WHERE tour_id = ?), 3.0), 1),
			updated_at = ?
		WHERE id = ?`,
		tourID, tourID, time.Now(), tourID)
	if err != nil {
		return fmt.Errorf("failed to recalc tour rating: %w", err)
	}
	return nil
}
