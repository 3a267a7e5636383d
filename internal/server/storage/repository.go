package storage

import (
	"context"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/server/query"
)

// Repository is the generic collection contract the CRUD handler
// factory is built on. Every resource type implements it.
type Repository[T any] interface {
	// List returns the records matching the directive's filter, in its
	// sort order, windowed by its pagination.
	List(ctx context.Context, d *query.Directive) ([]T, error)

	// Get fetches a record by id, with relation expansion applied.
	// Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*T, error)

	// Create validates and inserts a new record, filling id and
	// timestamps on v. Returns *DuplicateError on a unique violation.
	Create(ctx context.Context, v *T) error

	// Update applies a partial update by id, re-running validation on
	// the result. Returns ErrNotFound if absent.
	Update(ctx context.Context, id string, patch map[string]any) (*T, error)

	// Delete removes a record by id. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error
}

// DifficultyStats is one aggregate row of the tour statistics report.
type DifficultyStats struct {
	Difficulty models.Difficulty `json:"difficulty"`
	NumTours   int               `json:"num_tours"`
	AvgRating  float64           `json:"avg_rating"`
	NumRatings int               `json:"num_ratings"`
	AvgPrice   float64           `json:"avg_price"`
	MinPrice   float64           `json:"min_price"`
	MaxPrice   float64           `json:"max_price"`
}

// MonthlyPlanEntry is one month of a year's departure schedule.
type MonthlyPlanEntry struct {
	Month    int      `json:"month"`
	NumTours int      `json:"num_tours"`
	Tours    []string `json:"tours"`
}

// TourRepository adds the tour-specific aggregates on top of the
// generic collection contract.
type TourRepository interface {
	Repository[models.Tour]

	// Stats aggregates tours per difficulty grade.
	Stats(ctx context.Context) ([]DifficultyStats, error)

	// MonthlyPlan aggregates the year's tour departures per month,
	// months with no departures omitted.
	MonthlyPlan(ctx context.Context, year int) ([]MonthlyPlanEntry, error)
}

// ReviewRepository adds the rating recomputation the review service
// calls explicitly after each write commits.
type ReviewRepository interface {
	Repository[models.Review]

	// RecalcTourRating recomputes and stores the owning tour's average
	// rating and rating count from its current reviews.
	RecalcTourRating(ctx context.Context, tourID string) error
}

// BookingRepository is the booking collection.
type BookingRepository interface {
	Repository[models.Booking]
}
