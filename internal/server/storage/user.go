package storage

import (
	"context"
	"time"

	"github.com/iudanet/tourbook/internal/models"
)

// UserRepository is the credential store interface. All lookups resolve
// active users only; deactivated accounts behave as absent.
type UserRepository interface {
	Repository[models.User]

	// GetByEmail retrieves an active user by normalized email.
	// Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// Save persists the full user record, including credential fields.
	// Returns ErrNotFound if the user no longer exists.
	Save(ctx context.Context, user *models.User) error

	// SetResetToken stores the reset token hash and expiry on the user
	// without re-running full validation.
	SetResetToken(ctx context.Context, userID, tokenHash string, expires time.Time) error

	// ClearResetToken removes any stored reset token hash and expiry.
	ClearResetToken(ctx context.Context, userID string) error

	// GetByResetTokenHash retrieves the user holding the given reset
	// token hash. Returns ErrNoResetToken if no user matches.
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*models.User, error)

	// ConsumeResetToken atomically sets the new password hash, clears
	// the reset token fields and stamps password_changed_at, but only
	// while the stored hash still matches. Returns ErrNoResetToken if
	// the token was consumed concurrently.
	ConsumeResetToken(ctx context.Context, userID, tokenHash, passwordHash string, changedAt time.Time) error

	// Deactivate flips the active flag off. The record is kept but all
	// lookups treat the user as absent.
	Deactivate(ctx context.Context, userID string) error
}
