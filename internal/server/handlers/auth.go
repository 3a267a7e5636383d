package handlers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/notify"
	"github.com/iudanet/tourbook/internal/server/apperr"
	"github.com/iudanet/tourbook/internal/server/middleware"
	"github.com/iudanet/tourbook/internal/server/storage"
	"github.com/iudanet/tourbook/internal/server/token"
)

// bcryptCost matches the original system's hashing work factor.
const bcryptCost = 12

const minPasswordLen = 6

// AuthHandler owns signup, login and the password lifecycle.
type AuthHandler struct {
	logger   *slog.Logger
	resp     *Responder
	users    storage.UserRepository
	tokens   *token.Service
	mailer   notify.Mailer
	resetTTL time.Duration
}

// NewAuthHandler creates the auth handler. resetTTL bounds the validity
// of password reset tokens.
func NewAuthHandler(
	logger *slog.Logger,
	resp *Responder,
	users storage.UserRepository,
	tokens *token.Service,
	mailer notify.Mailer,
	resetTTL time.Duration,
) *AuthHandler {
	return &AuthHandler{
		logger:   logger,
		resp:     resp,
		users:    users,
		tokens:   tokens,
		mailer:   mailer,
		resetTTL: resetTTL,
	}
}

type signupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type updatePasswordRequest struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

// Signup handles POST /api/v1/users/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.resp.Error(w, r, apperr.BadRequest("Invalid request body."))
		return
	}

	if err := checkPasswordPair(req.Password, req.PasswordConfirm); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		Role:         models.RoleUser,
		PasswordHash: string(hash),
	}
	if err := h.users.Create(ctx, user); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	// The account exists either way; a failed welcome mail is not worth
	// failing the signup over.
	if err := h.mailer.SendWelcome(ctx, user, requestBaseURL(r)+"/me"); err != nil {
		h.logger.WarnContext(ctx, "failed to send welcome mail",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	signed, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.tokens.SetCookie(w, r, signed)

	h.logger.InfoContext(ctx, "user signed up", slog.String("user_id", user.ID))
	h.resp.JSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"token":   signed,
		"data":    map[string]any{"user": user},
	})
}

// Login handles POST /api/v1/users/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.resp.Error(w, r, apperr.BadRequest("Invalid request body."))
		return
	}
	if req.Email == "" || req.Password == "" {
		h.resp.Error(w, r, apperr.BadRequest("Must provide email and password to log in."))
		return
	}

	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.resp.Error(w, r, apperr.Unauthorized("Login credentials invalid."))
			return
		}
		h.resp.Error(w, r, err)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		h.resp.Error(w, r, apperr.Unauthorized("Login credentials invalid."))
		return
	}

	signed, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.tokens.SetCookie(w, r, signed)

	h.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))
	h.resp.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "You are logged in.",
		"token":   signed,
	})
}

// Logout handles GET /api/v1/users/logout. Tokens are stateless, so
// logout only clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.tokens.ClearCookie(w)
	h.resp.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User has been logged out.",
	})
}

// ForgotPassword handles POST /api/v1/users/forgot.
//
// An unknown email is reported as NotFound. That discloses which
// addresses have accounts; the original system made the same trade-off
// deliberately and this keeps it.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req forgotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.resp.Error(w, r, apperr.BadRequest("Invalid request body."))
		return
	}
	if req.Email == "" {
		h.resp.Error(w, r, apperr.BadRequest("Email must be provided to reset password."))
		return
	}

	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.resp.Error(w, r, apperr.NotFound("There is no user with that email address."))
			return
		}
		h.resp.Error(w, r, err)
		return
	}

	rawToken, err := newResetToken()
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	expires := time.Now().Add(h.resetTTL)
	if err := h.users.SetResetToken(ctx, user.ID, hashResetToken(rawToken), expires); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	resetURL := requestBaseURL(r) + "/api/v1/users/reset/" + rawToken
	if err := h.mailer.SendPasswordReset(ctx, user, resetURL); err != nil {
		// Never leave an active reset token the user was not notified of.
		if clearErr := h.users.ClearResetToken(ctx, user.ID); clearErr != nil {
			h.logger.ErrorContext(ctx, "failed to roll back reset token",
				slog.String("user_id", user.ID), slog.Any("error", clearErr))
		}
		h.logger.ErrorContext(ctx, "failed to send reset mail",
			slog.String("user_id", user.ID), slog.Any("error", err))
		h.resp.Error(w, r, apperr.New(http.StatusInternalServerError,
			"There was an error sending the reset link email. Try again later."))
		return
	}

	h.logger.InfoContext(ctx, "reset token issued", slog.String("user_id", user.ID))
	h.resp.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Reset link has been sent to user's email.",
	})
}

// ResetPassword handles PATCH /api/v1/users/reset/{token}.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawToken := r.PathValue("token")
	if rawToken == "" {
		h.resp.Error(w, r, apperr.BadRequest("No valid reset token provided in link."))
		return
	}

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.resp.Error(w, r, apperr.BadRequest("Invalid request body."))
		return
	}
	if req.Password == "" || req.PasswordConfirm == "" || req.Password != req.PasswordConfirm {
		h.resp.Error(w, r, apperr.BadRequest("A new password and a matching password confirmation must be provided with request."))
		return
	}
	if len(req.Password) < minPasswordLen {
		h.resp.Error(w, r, apperr.BadRequest("Password must be at least 6 characters long."))
		return
	}

	tokenHash := hashResetToken(rawToken)
	user, err := h.users.GetByResetTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrNoResetToken) {
			h.resp.Error(w, r, apperr.BadRequest("That is not a valid password reset token."))
			return
		}
		h.resp.Error(w, r, err)
		return
	}

	if user.ResetTokenExpires == nil || user.ResetTokenExpires.Before(time.Now()) {
		h.resp.Error(w, r, apperr.BadRequest("Password token has expired. Please obtain a new reset token to complete resetting of password."))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	// Compare-and-swap on the stored hash: a concurrent second
	// consumption of the same token loses and gets the invalid-token
	// error.
	if err := h.users.ConsumeResetToken(ctx, user.ID, tokenHash, string(hash), passwordChangeStamp()); err != nil {
		if errors.Is(err, storage.ErrNoResetToken) {
			h.resp.Error(w, r, apperr.BadRequest("That is not a valid password reset token."))
			return
		}
		h.resp.Error(w, r, err)
		return
	}

	signed, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.tokens.SetCookie(w, r, signed)

	h.logger.InfoContext(ctx, "password reset completed", slog.String("user_id", user.ID))
	h.resp.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   signed,
	})
}

// UpdatePassword handles PATCH /api/v1/users/password for the
// authenticated user.
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := middleware.UserFrom(ctx)
	if !ok {
		h.resp.Error(w, r, apperr.Unauthorized("Unauthorized. There seems to be no user logged in."))
		return
	}

	var req updatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.resp.Error(w, r, apperr.BadRequest("Invalid request body."))
		return
	}

	if req.CurrentPassword == "" ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		h.resp.Error(w, r, apperr.Unauthorized("Either no current password provided or it was invalid."))
		return
	}
	if err := checkPasswordPair(req.NewPassword, req.NewPasswordConfirm); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	changedAt := passwordChangeStamp()
	user.PasswordHash = string(hash)
	user.PasswordChangedAt = &changedAt
	if err := h.users.Save(ctx, user); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	signed, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.tokens.SetCookie(w, r, signed)

	h.logger.InfoContext(ctx, "password updated", slog.String("user_id", user.ID))
	h.resp.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   signed,
	})
}

func checkPasswordPair(password, confirm string) error {
	if password == "" || confirm == "" {
		return apperr.BadRequest("You must provide a password and a matching password confirmation.")
	}
	if password != confirm {
		return apperr.BadRequest("Password confirmation does not match password.")
	}
	if len(password) < minPasswordLen {
		return apperr.BadRequest("Password must be at least 6 characters long.")
	}
	return nil
}

// passwordChangeStamp backdates the change slightly so a token issued
// in the same instant (second-granularity iat) is not reported stale.
func passwordChangeStamp() time.Time {
	return time.Now().Add(-2 * time.Second)
}

// newResetToken produces the raw high-entropy reset secret. Only its
// hash is ever persisted.
func newResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// requestBaseURL rebuilds the externally visible origin for links put
// into outbound mail.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if token.RequestIsSecure(r) {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
