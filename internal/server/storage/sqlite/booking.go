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

// Booking reads expand the booked tour's name.
const bookingColumns = `b.id, b.tour_id, b.user_id, b.price, b.paid,
	b.created_at, b.updated_at, t.name`

const bookingSelect = `SELECT ` + bookingColumns + `
	FROM bookings b
	JOIN tours t ON t.id = b.tour_id`

var bookingListColumns = map[string]string{
	"tour_id":    "b.tour_id",
	"user_id":    "b.user_id",
	"price":      "b.price",
	"paid":       "b.paid",
	"created_at": "b.created_at",
}

// BookingRepo is the sqlite booking collection.
type BookingRepo struct {
	store *Store
}

// NewBookingRepo creates the booking repository over the shared store.
func NewBookingRepo(store *Store) *BookingRepo {
	return &BookingRepo{store: store}
}

func scanBooking(row scanner) (*models.Booking, error) {
	b := &models.Booking{}
	err := row.Scan(
		&b.ID,
		&b.TourID,
		&b.UserID,
		&b.Price,
		&b.Paid,
		&b.CreatedAt,
		&b.UpdatedAt,
		&b.TourName,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// List returns bookings matching the directive.
func (r *BookingRepo) List(ctx context.Context, d *query.Directive) ([]models.Booking, error) {
	where, args, err := d.Where(bookingListColumns)
	if err != nil {
		return nil, err
	}
	order, err := d.OrderBy(bookingListColumns)
	if err != nil {
		return nil, err
	}
	if len(d.Sort) == 0 {
		order = "b.created_at DESC"
	}

	q := bookingSelect
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY " + order + " LIMIT ? OFFSET ?"
	args = append(args, d.Limit, d.Offset())

	rows, err := r.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// Get fetches a booking by id with the tour name expanded.
func (r *BookingRepo) Get(ctx context.Context, id string) (*models.Booking, error) {
	row := r.store.db.QueryRowContext(ctx, bookingSelect+` WHERE b.id = ?`, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// Create validates and inserts a new booking.
func (r *BookingRepo) Create(ctx context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now

	if err := b.Validate(); err != nil {
		return err
	}

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO bookings (id, tour_id, user_id, price, paid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TourID, b.UserID, b.Price, b.Paid, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// Update applies a partial update and re-validates the result.
func (r *BookingRepo) Update(ctx context.Context, id string, patch map[string]any) (*models.Booking, error) {
	b, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	for k, v := range patch {
		switch k {
		case "price":
			if f, ok := floatVal(v); ok {
				b.Price = f
			}
		case "paid":
			if p, ok := v.(bool); ok {
				b.Paid = p
			}
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	b.UpdatedAt = time.Now()

	res, err := r.store.db.ExecContext(ctx, `
		UPDATE bookings SET price = ?, paid = ?, updated_at = ? WHERE id = ?`,
		b.Price, b.Paid, b.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

// Delete removes a booking by id.
func (r *BookingRepo) Delete(ctx context.Context, id string) error {
	res, err := r.store.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
