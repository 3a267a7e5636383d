package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/notify"
	"github.com/iudanet/tourbook/internal/server/middleware"
	"github.com/iudanet/tourbook/internal/server/query"
	"github.com/iudanet/tourbook/internal/server/storage"
	"github.com/iudanet/tourbook/internal/server/token"
)

// memUserRepo is an in-memory UserRepository with the same sentinel and
// CAS semantics as the sqlite implementation.
type memUserRepo struct {
	users map[string]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*models.User)}
}

func (m *memUserRepo) List(context.Context, *query.Directive) ([]models.User, error) {
	return nil, errors.New("not implemented")
}

func (m *memUserRepo) Get(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok && u.Active {
		clone := *u
		return &clone, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email && u.Active {
			clone := *u
			return &clone, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memUserRepo) Create(_ context.Context, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)
	for _, u := range m.users {
		if u.Email == user.Email {
			return &storage.DuplicateError{Value: user.Email}
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	user.Active = true
	if err := user.Validate(); err != nil {
		return err
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *memUserRepo) Update(_ context.Context, id string, patch map[string]any) (*models.User, error) {
	u, ok := m.users[id]
	if !ok || !u.Active {
		return nil, storage.ErrNotFound
	}
	for k, v := range patch {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch k {
		case "name":
			u.Name = s
		case "email":
			u.Email = models.NormalizeEmail(s)
		case "photo":
			u.Photo = s
		case "role":
			u.Role = models.Role(s)
		}
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	clone := *u
	return &clone, nil
}

func (m *memUserRepo) Delete(context.Context, string) error { return errors.New("not implemented") }

func (m *memUserRepo) Save(_ context.Context, user *models.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return storage.ErrNotFound
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *memUserRepo) SetResetToken(_ context.Context, userID, tokenHash string, expires time.Time) error {
	u, ok := m.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.ResetTokenHash = tokenHash
	u.ResetTokenExpires = &expires
	return nil
}

func (m *memUserRepo) ClearResetToken(_ context.Context, userID string) error {
	if u, ok := m.users[userID]; ok {
		u.ResetTokenHash = ""
		u.ResetTokenExpires = nil
	}
	return nil
}

func (m *memUserRepo) GetByResetTokenHash(_ context.Context, tokenHash string) (*models.User, error) {
	for _, u := range m.users {
		if u.ResetTokenHash == tokenHash && u.Active {
			clone := *u
			return &clone, nil
		}
	}
	return nil, storage.ErrNoResetToken
}

func (m *memUserRepo) ConsumeResetToken(_ context.Context, userID, tokenHash, passwordHash string, changedAt time.Time) error {
	u, ok := m.users[userID]
	if !ok || u.ResetTokenHash != tokenHash {
		return storage.ErrNoResetToken
	}
	u.PasswordHash = passwordHash
	u.PasswordChangedAt = &changedAt
	u.ResetTokenHash = ""
	u.ResetTokenExpires = nil
	return nil
}

func (m *memUserRepo) Deactivate(_ context.Context, userID string) error {
	u, ok := m.users[userID]
	if !ok || !u.Active {
		return storage.ErrNotFound
	}
	u.Active = false
	return nil
}

// captureMailer records outbound mail and can simulate delivery failure.
type captureMailer struct {
	welcomeURLs []string
	resetURLs   []string
	failWelcome bool
	failReset   bool
}

func (m *captureMailer) SendWelcome(_ context.Context, _ *models.User, url string) error {
	if m.failWelcome {
		return errors.New("smtp: connection refused")
	}
	m.welcomeURLs = append(m.welcomeURLs, url)
	return nil
}

func (m *captureMailer) SendPasswordReset(_ context.Context, _ *models.User, resetURL string) error {
	if m.failReset {
		return errors.New("smtp: connection refused")
	}
	m.resetURLs = append(m.resetURLs, resetURL)
	return nil
}

var _ notify.Mailer = (*captureMailer)(nil)

type authFixture struct {
	handler *AuthHandler
	repo    *memUserRepo
	mailer  *captureMailer
	tokens  *token.Service
}

func setupAuthHandler(t *testing.T, resetTTL time.Duration) *authFixture {
	t.Helper()

	repo := newMemUserRepo()
	mailer := &captureMailer{}
	tokens := token.NewService("test-secret-key", time.Hour, time.Hour)
	resp := &Responder{Logger: setupTestLogger()}

	return &authFixture{
		handler: NewAuthHandler(setupTestLogger(), resp, repo, tokens, mailer, resetTTL),
		repo:    repo,
		mailer:  mailer,
		tokens:  tokens,
	}
}

func requestWithUser(r *http.Request, user *models.User) *http.Request {
	return r.WithContext(middleware.WithUser(r.Context(), user))
}

func signupRequestBody() string {
	return `{"name":"Alice","email":"alice@example.com","password":"secret123","password_confirm":"secret123"}`
}

func doSignup(t *testing.T, f *authFixture) *models.User {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/signup",
		strings.NewReader(signupRequestBody()))
	w := httptest.NewRecorder()
	f.handler.Signup(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	user, err := f.repo.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	return user
}

func TestSignup_Success(t *testing.T) {
	f := setupAuthHandler(t, 10*time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/signup",
		strings.NewReader(signupRequestBody()))
	w := httptest.NewRecorder()
	f.handler.Signup(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	require.Contains(t, body, "token")

	user := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "alice@example.com", user["email"])
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, user, "password_hash")

	// Token resolves back to the created account.
	claims, err := f.tokens.Verify(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, user["id"], claims.UserID)

	// Password is stored hashed.
	stored, err := f.repo.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret123")))

	// Session cookie accompanies the token.
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, token.CookieName, cookies[0].Name)

	assert.Len(t, f.mailer.welcomeURLs, 1)
}

func TestSignup_WelcomeMailFailureIsNotFatal(t *testing.T) {
	f := setupAuthHandler(t, 10*time.Minute)
	f.mailer.failWelcome = true

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/signup",
		strings.NewReader(signupRequestBody()))
	w := httptest.NewRecorder()
	f.handler.Signup(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSignup_PasswordMismatch(t *testing.T) {
	f := setupAuthHandler(t, 10*time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/signup",
		strings.NewReader(`{"name":"A","email":"a@x.com","password":"secret123","password_confirm":"other"}`))
	w := httptest.NewRecorder()
	f.handler.Signup(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Password confirmation does not match password.")
}

func TestLogin_RoundTrip(t *testing.T) {
	f := setupAuthHandler(t, 10*time.Minute)
	created := doSignup(t, f)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login",
		strings.NewReader(`{"email":"alice@example.com","password":"secret123"}`))
	w := httptest.NewRecorder()
	f.handler.Login(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "You are logged in.", body["message"])

	claims, err := f.tokens.Verify(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, created.ID, claims.UserID)
}

func TestLogin_MissingCredentials(t *testing.T) {
	f := setupAuthHandler(t, 10*time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login",
		strings.NewReader(`{"email":"alice@example.com"}`))
	w := httptest.NewRecorder()
	f.handler.Login(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Must provide email and password to log in.")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := setupAuthHandler(t, 10*time.Minute)
	doSignup(t, f)

	tests := []struct {
		name string
		body string
	}{
		{name: "wrong password", body: `{"email":"alice@example.com","password":"wrong1234"}`},
		{name: "unknown email", body: `{"email":"nobody@example.com","password":"secret123"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login",
				strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			f.handler.Login(w, req)

			require.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "Login credentials invalid.")
		})
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	f := setupAuthHandler(t, 10*time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/logout", nil)
	w := httptest.NewRecorder()
	f.handler.Logout(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "User has been logged out.")

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, token.CookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.True(t, cookies[0].Expires.Before(time.Now()))
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	f := setupAuthHandler(t, 10*time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/forgot",
		strings.NewReader(`{"email":"nobody@example.com"}`))
	w := httptest.NewRecorder()
	f.handler.ForgotPassword(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "There is no user with that email address.")
}

func TestForgotPassword_StoresHashNotToken(t *testing.T) {
	f := setupAuthHandler(t, 10*time.Minute)
	user := doSignup(t, f)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/forgot",
		strings.NewReader(`{"email":"alice@example.com"}`))
	w := httptest.NewRecorder()
	f.handler.ForgotPassword(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Reset link has been sent to user's email.")

	require.Len(t, f.mailer.resetURLs, 1)
	raw := f.mailer.resetURLs[0][strings.LastIndex(f.mailer.resetURLs[0], "/")+1:]
	assert.Len(t, raw, 64)

	stored := f.repo.users[user.ID]
	assert.NotEmpty(t, stored.ResetTokenHash)
	assert.NotEqual(t, raw, stored.ResetTokenHash)
	assert.Equal(t, hashResetToken(raw), stored.ResetTokenHash)
	require.NotNil(t, stored.ResetTokenExpires)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), *stored.ResetTokenExpires, 5*time.Second)
}

func TestForgotPassword_MailFailureRollsBack(t *testing.T) {
	f := setupAuthHandler(t, 10*time.Minute)
	user := doSignup(t, f)
	f.mailer.failReset = true

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/forgot",
		strings.NewReader(`{"email":"alice@example.com"}`))
	w := httptest.NewRecorder()
	f.handler.ForgotPassword(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "There was an error sending the reset link email.")

	stored := f.repo.users[user.ID]
	assert.Empty(t, stored.ResetTokenHash)
	assert.Nil(t, stored.ResetTokenExpires)
}

func requestReset(t *testing.T, f *authFixture) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/forgot",
		strings.NewReader(`{"email":"alice@example.com"}`))
	w := httptest.NewRecorder()
	f.handler.ForgotPassword(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	url := f.mailer.resetURLs[len(f.mailer.resetURLs)-1]
	return url[strings.LastIndex(url, "/")+1:]
}

func doReset(f *authFixture, rawToken, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/users/reset/"+rawToken,
		strings.NewReader(body))
	req.SetPathValue("token", rawToken)
	w := httptest.NewRecorder()
	f.handler.ResetPassword(w, req)
	return w
}

func TestResetPassword_SingleUse(t *testing.T) {
	f := setupAuthHandler(t, 10*time.Minute)
	user := doSignup(t, f)
	raw := requestReset(t, f)

	w := doReset(f, raw, `{"password":"brandnew1","password_confirm":"brandnew1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Contains(t, body, "token")

	stored := f.repo.users[user.ID]
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("brandnew1")))
	require.NotNil(t, stored.PasswordChangedAt)
	assert.Empty(t, stored.ResetTokenHash)

	// The same token must not work twice.
	w = doReset(f, raw, `{"password":"another99","password_confirm":"another99"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "That is not a valid password reset token.")
}

func TestResetPassword_Expired(t *testing.T) {
	f := setupAuthHandler(t, -time.Minute)
	doSignup(t, f)
	raw := requestReset(t, f)

	w := doReset(f, raw, `{"password":"brandnew1","password_confirm":"brandnew1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Password token has expired.")
}

func TestResetPassword_Mismatch(t *testing.T) {
	f := setupAuthHandler(t, 10*time.Minute)
	doSignup(t, f)
	raw := requestReset(t, f)

	w := doReset(f, raw, `{"password":"brandnew1","password_confirm":"different"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(),
		"A new password and a matching password confirmation must be provided with request.")
}

func TestUpdatePassword_WrongCurrent(t *testing.T) {
	f := setupAuthHandler(t, 10*time.Minute)
	user := doSignup(t, f)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/users/password",
		strings.NewReader(`{"current_password":"wrong","new_password":"brandnew1","new_password_confirm":"brandnew1"}`))
	req = requestWithUser(req, user)
	w := httptest.NewRecorder()
	f.handler.UpdatePassword(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Either no current password provided or it was invalid.")
}

func TestUpdatePassword_Success(t *testing.T) {
	f := setupAuthHandler(t, 10*time.Minute)
	user := doSignup(t, f)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/users/password",
		strings.NewReader(`{"current_password":"secret123","new_password":"brandnew1","new_password_confirm":"brandnew1"}`))
	req = requestWithUser(req, user)
	w := httptest.NewRecorder()
	f.handler.UpdatePassword(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Contains(t, body, "token")

	stored := f.repo.users[user.ID]
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("brandnew1")))
	require.NotNil(t, stored.PasswordChangedAt)
	// Backdated so the freshly issued token is not reported stale.
	assert.True(t, stored.PasswordChangedAt.Before(time.Now()))
	assert.False(t, stored.ChangedPasswordAfter(time.Now()))
}
