package storage

import (
	"errors"
	"fmt"
)

// Common storage errors. The HTTP edge translates these into
// operational errors before they reach a client.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNoResetToken indicates no user matches the presented reset
	// token hash, either because it was never issued or because it was
	// already consumed.
	ErrNoResetToken = errors.New("no valid reset token")
)

// DuplicateError indicates a unique-constraint violation. Value carries
// the offending field value so the client message can name it.
type DuplicateError struct {
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate value: %s", e.Value)
}
