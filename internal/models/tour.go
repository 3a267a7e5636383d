package models

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty is the closed set of tour difficulty grades.
type Difficulty string

const (
	DifficultyEasy       Difficulty = "easy"
	DifficultyMedium     Difficulty = "medium"
	DifficultyDifficult  Difficulty = "difficult"
	DifficultyImpossible Difficulty = "impossible"
)

// Valid reports whether d is a known difficulty grade.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyDifficult, DifficultyImpossible:
		return true
	}
	return false
}

// Tour represents a bookable tour. Name is unique across tours.
type Tour struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Slug          string     `json:"slug"`
	Duration      int        `json:"duration"`
	MaxGroupSize  int        `json:"max_group_size"`
	Difficulty    Difficulty `json:"difficulty"`
	AvgRating     float64    `json:"avg_rating"`
	NumRatings    int        `json:"num_ratings"`
	Price         float64    `json:"price"`
	PriceDiscount float64    `json:"price_discount,omitempty"`
	Summary       string     `json:"summary"`
	Description   string     `json:"description,omitempty"`
	ImageCover    string     `json:"image_cover,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// StartDates are the scheduled departures the monthly plan
	// aggregates over.
	StartDates []time.Time `json:"start_dates,omitempty"`

	// Reviews is populated only when the tour is fetched by id.
	Reviews []Review `json:"reviews,omitempty"`
}

// Validate checks the tour's fields and returns all violations joined
// into a single error.
func (t *Tour) Validate() error {
	var problems []string
	name := strings.TrimSpace(t.Name)
	switch {
	case name == "":
		problems = append(problems, "Each tour must have a name.")
	case len(name) < 3:
		problems = append(problems, "Tour name must have at least 3 characters.")
	case len(name) > 240:
		problems = append(problems, "Tour name can not be longer than 240 characters.")
	}
	if t.Duration <= 0 {
		problems = append(problems, "Each tour must specify the avg. expected duration.")
	}
	if t.MaxGroupSize <= 0 {
		problems = append(problems, "You must specify the maximum group size for the tour.")
	}
	if !t.Difficulty.Valid() {
		problems = append(problems, "Difficulty must be either 'easy', 'medium', 'difficult' or 'impossible'.")
	}
	if t.AvgRating < 0 || t.AvgRating > 5 {
		problems = append(problems, "Ratings must be between 0.0 and 5.0.")
	}
	if t.Price <= 0 {
		problems = append(problems, "Each tour must have a price.")
	}
	if t.PriceDiscount != 0 && t.PriceDiscount >= t.Price {
		problems = append(problems,
			fmt.Sprintf("Price discount (%v) cannot be greater than the price.", t.PriceDiscount))
	}
	if strings.TrimSpace(t.Summary) == "" {
		problems = append(problems, "Each tour must have a summary.")
	}
	return joinProblems(problems)
}

// Slugify derives a URL slug from a tour name. Only ASCII letters and
// digits survive, so a fully non-Latin name yields ""; the storage
// layer falls back to the tour id in that case.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
