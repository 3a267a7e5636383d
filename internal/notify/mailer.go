// Package notify is the boundary to outbound email delivery. The core
// only ever hands a recipient and a URL across it; delivery internals
// live behind the interface.
package notify

import (
	"context"
	"log/slog"

	"github.com/iudanet/tourbook/internal/models"
)

// Mailer delivers the two transactional mails the system sends.
type Mailer interface {
	// SendWelcome greets a new user with a link to their profile.
	SendWelcome(ctx context.Context, user *models.User, url string) error

	// SendPasswordReset delivers the raw reset link. The link is the
	// only place the raw token ever travels.
	SendPasswordReset(ctx context.Context, user *models.User, resetURL string) error
}

// LogMailer is the development mailer: it logs instead of delivering.
// The reset URL itself is never logged.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) SendWelcome(ctx context.Context, user *models.User, url string) error {
	m.Logger.InfoContext(ctx, "welcome mail",
		slog.String("user_id", user.ID),
		slog.String("url", url))
	return nil
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, user *models.User, resetURL string) error {
	m.Logger.InfoContext(ctx, "password reset mail",
		slog.String("user_id", user.ID))
	return nil
}
