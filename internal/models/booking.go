package models

import "time"

// Booking represents a paid (or pending) reservation of a tour by a user.
type Booking struct {
	ID        string    `json:"id"`
	TourID    string    `json:"tour_id"`
	UserID    string    `json:"user_id"`
	Price     float64   `json:"price"`
	Paid      bool      `json:"paid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// TourName is populated on reads.
	TourName string `json:"tour_name,omitempty"`
}

// Validate checks the booking's fields and returns all violations joined
// into a single error.
func (b *Booking) Validate() error {
	var problems []string
	if b.TourID == "" {
		problems = append(problems, "A Tour must be associated with this booking.")
	}
	if b.UserID == "" {
		problems = append(problems, "A User must be associated with this booking.")
	}
	if b.Price <= 0 {
		problems = append(problems, "Each booking must have a price.")
	}
	return joinProblems(problems)
}
