package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/server/query"
	"github.com/iudanet/tourbook/internal/server/storage"
)

const tourColumns = `id, name, slug, duration, max_group_size, difficulty,
	avg_rating, num_ratings, price, price_discount, summary, description,
	image_cover, created_at, updated_at`

var tourListColumns = map[string]string{
	"name":           "name",
	"slug":           "slug",
	"duration":       "duration",
	"max_group_size": "max_group_size",
	"difficulty":     "difficulty",
	"avg_rating":     "avg_rating",
	"num_ratings":    "num_ratings",
	"price":          "price",
	"created_at":     "created_at",
}

// TourRepo is the sqlite tour collection.
type TourRepo struct {
	store   *Store
	reviews *ReviewRepo
}

// NewTourRepo creates the tour repository. Fetching a single tour
// expands its reviews through the review repository.
func NewTourRepo(store *Store, reviews *ReviewRepo) *TourRepo {
	return &TourRepo{store: store, reviews: reviews}
}

func scanTour(row scanner) (*models.Tour, error) {
	t := &models.Tour{}
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Slug,
		&t.Duration,
		&t.MaxGroupSize,
		&t.Difficulty,
		&t.AvgRating,
		&t.NumRatings,
		&t.Price,
		&t.PriceDiscount,
		&t.Summary,
		&t.Description,
		&t.ImageCover,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// List returns tours matching the directive.
func (r *TourRepo) List(ctx context.Context, d *query.Directive) ([]models.Tour, error) {
	where, args, err := d.Where(tourListColumns)
	if err != nil {
		return nil, err
	}
	order, err := d.OrderBy(tourListColumns)
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + tourColumns + ` FROM tours`
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY " + order + " LIMIT ? OFFSET ?"
	args = append(args, d.Limit, d.Offset())

	rows, err := r.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tours: %w", err)
	}
	defer rows.Close()

	var tours []models.Tour
	for rows.Next() {
		t, err := scanTour(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tour: %w", err)
		}
		tours = append(tours, *t)
	}
	return tours, rows.Err()
}

// startDateFormat is the stored departure date layout. RFC3339 in UTC
// keeps strftime usable for the monthly aggregation.
const startDateFormat = time.RFC3339

func (r *TourRepo) loadStartDates(ctx context.Context, tourID string) ([]time.Time, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT start_date FROM tour_start_dates WHERE tour_id = ? ORDER BY start_date`, tourID)
	if err != nil {
		return nil, fmt.Errorf("failed to list start dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan start date: %w", err)
		}
		d, err := time.Parse(startDateFormat, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse start date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// saveStartDates replaces the tour's departure schedule.
func (r *TourRepo) saveStartDates(ctx context.Context, tourID string, dates []time.Time) error {
	if _, err := r.store.db.ExecContext(ctx,
		`DELETE FROM tour_start_dates WHERE tour_id = ?`, tourID); err != nil {
		return fmt.Errorf("failed to clear start dates: %w", err)
	}
	for _, d := range dates {
		if _, err := r.store.db.ExecContext(ctx,
			`INSERT INTO tour_start_dates (tour_id, start_date) VALUES (?, ?)`,
			tourID, d.UTC().Format(startDateFormat)); err != nil {
			return fmt.Errorf("failed to insert start date: %w", err)
		}
	}
	return nil
}

// parseStartDates converts a decoded JSON start_dates patch value into
// timestamps. Bare dates are accepted alongside full RFC3339 stamps.
func parseStartDates(v any) ([]time.Time, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, &models.ValidationError{
			Problems: []string{"Start dates must be a list of dates."},
		}
	}
	var dates []time.Time
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, &models.ValidationError{
				Problems: []string{"Start dates must be a list of dates."},
			}
		}
		d, err := time.Parse(time.RFC3339, s)
		if err != nil {
			d, err = time.Parse("2006-01-02", s)
		}
		if err != nil {
			return nil, &models.ValidationError{
				Problems: []string{fmt.Sprintf("Invalid start date: %q.", s)},
			}
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// Get fetches a tour by id with its reviews and departure schedule
// expanded.
func (r *TourRepo) Get(ctx context.Context, id string) (*models.Tour, error) {
	row := r.store.db.QueryRowContext(ctx,
		`SELECT `+tourColumns+` FROM tours WHERE id = ?`, id)
	t, err := scanTour(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tour: %w", err)
	}

	reviews, err := r.reviews.listForTour(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Reviews = reviews

	dates, err := r.loadStartDates(ctx, id)
	if err != nil {
		return nil, err
	}
	t.StartDates = dates
	return t, nil
}

// Create validates and inserts a new tour, deriving its slug.
func (r *TourRepo) Create(ctx context.Context, t *models.Tour) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.Slug = models.Slugify(t.Name)
	if t.Slug == "" {
		t.Slug = t.ID
	}
	if t.AvgRating == 0 && t.NumRatings == 0 {
		t.AvgRating = 3.0
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := t.Validate(); err != nil {
		return err
	}

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO tours (id, name, slug, duration, max_group_size,
			difficulty, avg_rating, num_ratings, price, price_discount,
			summary, description, image_cover, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Slug, t.Duration, t.MaxGroupSize, t.Difficulty,
		t.AvgRating, t.NumRatings, t.Price, t.PriceDiscount, t.Summary,
		t.Description, t.ImageCover, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return mapUnique(err, t.Name)
	}
	if len(t.StartDates) > 0 {
		if err := r.saveStartDates(ctx, t.ID, t.StartDates); err != nil {
			return err
		}
	}
	return nil
}

// Update applies a partial update and re-validates the result.
func (r *TourRepo) Update(ctx context.Context, id string, patch map[string]any) (*models.Tour, error) {
	t, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	for k, v := range patch {
		switch k {
		case "name":
			if s, ok := v.(string); ok {
				t.Name = s
				t.Slug = models.Slugify(s)
				if t.Slug == "" {
					t.Slug = t.ID
				}
			}
		case "duration":
			if f, ok := floatVal(v); ok {
				t.Duration = int(f)
			}
		case "max_group_size":
			if f, ok := floatVal(v); ok {
				t.MaxGroupSize = int(f)
			}
		case "difficulty":
			if s, ok := v.(string); ok {
				t.Difficulty = models.Difficulty(s)
			}
		case "price":
			if f, ok := floatVal(v); ok {
				t.Price = f
			}
		case "price_discount":
			if f, ok := floatVal(v); ok {
				t.PriceDiscount = f
			}
		case "summary":
			if s, ok := v.(string); ok {
				t.Summary = s
			}
		case "description":
			if s, ok := v.(string); ok {
				t.Description = s
			}
		case "image_cover":
			if s, ok := v.(string); ok {
				t.ImageCover = s
			}
		case "start_dates":
			dates, err := parseStartDates(v)
			if err != nil {
				return nil, err
			}
			t.StartDates = dates
			if err := r.saveStartDates(ctx, id, dates); err != nil {
				return nil, err
			}
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.UpdatedAt = time.Now()

	res, err := r.store.db.ExecContext(ctx, `
		UPDATE tours SET name = ?, slug = ?, duration = ?, max_group_size = ?,
			difficulty = ?, price = ?, price_discount = ?, summary = ?,
			description = ?, image_cover = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Slug, t.Duration, t.MaxGroupSize, t.Difficulty,
		t.Price, t.PriceDiscount, t.Summary, t.Description, t.ImageCover,
		t.UpdatedAt, id)
	if err != nil {
		return nil, mapUnique(err, t.Name)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storage.ErrNotFound
	}
	return t, nil
}

// Delete removes a tour and, through the schema, its reviews.
func (r *TourRepo) Delete(ctx context.Context, id string) error {
	res, err := r.store.db.ExecContext(ctx, `DELETE FROM tours WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tour: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Stats aggregates tours per difficulty grade, cheapest first.
func (r *TourRepo) Stats(ctx context.Context) ([]storage.DifficultyStats, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT difficulty, COUNT(*), AVG(avg_rating), SUM(num_ratings),
			AVG(price), MIN(price), MAX(price)
		FROM tours
		GROUP BY difficulty
		ORDER BY AVG(price)`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate tour stats: %w", err)
	}
	defer rows.Close()

	var stats []storage.DifficultyStats
	for rows.Next() {
		var s storage.DifficultyStats
		if err := rows.Scan(&s.Difficulty, &s.NumTours, &s.AvgRating,
			&s.NumRatings, &s.AvgPrice, &s.MinPrice, &s.MaxPrice); err != nil {
			return nil, fmt.Errorf("failed to scan tour stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// MonthlyPlan aggregates the year's departures per calendar month.
// Tour names may contain commas, so GROUP_CONCAT uses the unit
// separator control character instead.
func (r *TourRepo) MonthlyPlan(ctx context.Context, year int) ([]storage.MonthlyPlanEntry, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT CAST(strftime('%m', d.start_date) AS INTEGER),
			COUNT(*), GROUP_CONCAT(t.name, char(31))
		FROM tour_start_dates d
		JOIN tours t ON t.id = d.tour_id
		WHERE strftime('%Y', d.start_date) = ?
		GROUP BY 1
		ORDER BY 1`, fmt.Sprintf("%04d", year))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly plan: %w", err)
	}
	defer rows.Close()

	var plan []storage.MonthlyPlanEntry
	for rows.Next() {
		var e storage.MonthlyPlanEntry
		var names string
		if err := rows.Scan(&e.Month, &e.NumTours, &names); err != nil {
			return nil, fmt.Errorf("failed to scan monthly plan: %w", err)
		}
		e.Tours = strings.Split(names, "\x1f")
		plan = append(plan, e)
	}
	return plan, rows.Err()
}
