package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/server/apperr"
	"github.com/iudanet/tourbook/internal/server/storage"
	"github.com/iudanet/tourbook/internal/server/token"
)

type contextKey string

const userKey contextKey = "user"

// UserFrom returns the authenticated user attached by Require or
// Optional, if any.
func UserFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok
}

// WithUser attaches a user to the context the way Require does.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// ErrorFunc renders a failure through the shared error handler. It is
// injected so the gate never formats responses itself.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

// Auth is the per-request authentication gate.
type Auth struct {
	logger   *slog.Logger
	tokens   *token.Service
	users    storage.UserRepository
	renderer ErrorFunc
}

// NewAuth creates the auth gate.
func NewAuth(logger *slog.Logger, tokens *token.Service, users storage.UserRepository, renderer ErrorFunc) *Auth {
	return &Auth{
		logger:   logger,
		tokens:   tokens,
		users:    users,
		renderer: renderer,
	}
}

// extractToken pulls the candidate token from the Authorization header,
// falling back to the session cookie.
func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	if c, err := r.Cookie(token.CookieName); err == nil {
		return c.Value
	}
	return ""
}

// resolve runs the full gate: extract, verify, resolve the user and
// reject stale tokens issued before the last password change.
func (a *Auth) resolve(r *http.Request) (*models.User, error) {
	raw := extractToken(r)
	if raw == "" {
		return nil, apperr.Unauthorized("Unauthorized. There seems to be no user logged in.")
	}

	claims, err := a.tokens.Verify(raw)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, apperr.Unauthorized("Unauthorized. Invalid (expired) token provided. Please log in again.")
		}
		return nil, apperr.Unauthorized("Unauthorized. Invalid token provided.")
	}

	user, err := a.users.Get(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Unauthorized("Unauthorized. That user no longer exists.")
		}
		return nil, err
	}

	if user.ChangedPasswordAfter(claims.IssuedAt) {
		return nil, apperr.Unauthorized("Unauthorized. Password for this user has been changed since token was issued. For security purposes, please log in again with new password to receive new, valid token.")
	}

	return user, nil
}

// Require rejects the request unless a valid, fresh session resolves to
// an existing user. The user is attached to the request context.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.resolve(r)
		if err != nil {
			a.logger.WarnContext(r.Context(), "request rejected by auth gate",
				slog.String("path", r.URL.Path), slog.Any("error", err))
			a.renderer(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional runs the same gate but treats every failure as anonymous.
// Used where login merely enriches the response.
func (a *Auth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, err := a.resolve(r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), userKey, user))
		}
		next.ServeHTTP(w, r)
	})
}

// RestrictTo gates a route to the given roles. It must run after
// Require; a missing user is a defect, not a client error.
func (a *Auth) RestrictTo(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFrom(r.Context())
			if !ok {
				a.renderer(w, r, apperr.Unauthorized("Unauthorized. There seems to be no user logged in."))
				return
			}
			if !user.Role.In(roles...) {
				a.logger.WarnContext(r.Context(), "role not permitted",
					slog.String("user_id", user.ID),
					slog.String("role", string(user.Role)),
					slog.String("path", r.URL.Path))
				a.renderer(w, r, apperr.Forbidden("This user is not authorized to perform this action."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
