package models

import (
	"math"
	"time"
)

// Review represents a user's review of a tour. A user may review each
// tour at most once.
type Review struct {
	ID        string    `json:"id"`
	Body      string    `json:"review"`
	Rating    float64   `json:"rating"`
	TourID    string    `json:"tour_id"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// AuthorName and AuthorPhoto are populated on reads.
	AuthorName  string `json:"author_name,omitempty"`
	AuthorPhoto string `json:"author_photo,omitempty"`
}

// Validate checks the review's fields and returns all violations joined
// into a single error.
func (r *Review) Validate() error {
	var problems []string
	switch {
	case len(r.Body) < 3:
		problems = append(problems, "Review must be at least 3 characters long.")
	case len(r.Body) > 512:
		problems = append(problems, "Review cannot exceed 512 characters.")
	}
	if r.Rating < 0 || r.Rating > 5 {
		problems = append(problems, "Ratings must be between 0.0 and 5.0.")
	}
	if r.TourID == "" {
		problems = append(problems, "Each review must belong to a tour.")
	}
	if r.CreatedBy == "" {
		problems = append(problems, "Reviews must have an author associated with them.")
	}
	return joinProblems(problems)
}

// RoundRating rounds a rating to one decimal place.
func RoundRating(v float64) float64 {
	return math.Round(v*10) / 10
}
