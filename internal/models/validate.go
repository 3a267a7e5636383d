package models

import "strings"

// ValidationError aggregates field-level violations so the caller can
// report them as one failure.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, " | ")
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}
