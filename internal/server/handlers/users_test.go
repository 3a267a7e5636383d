package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/server/storage"
)

func setupUserHandler(t *testing.T) (*UserHandler, *memUserRepo) {
	t.Helper()
	repo := newMemUserRepo()
	return NewUserHandler(&Responder{Logger: setupTestLogger()}, repo), repo
}

func seedUser(t *testing.T, repo *memUserRepo) *models.User {
	t.Helper()
	user := &models.User{Name: "Alice", Email: "alice@example.com", PasswordHash: "hash"}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestMe_ReturnsSessionUser(t *testing.T) {
	h, repo := setupUserHandler(t)
	user := seedUser(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req = requestWithUser(req, user)
	w := httptest.NewRecorder()
	h.Me(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	me := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, user.Email, me["email"])
	assert.NotContains(t, me, "password_hash")
}

func TestMe_RequiresSession(t *testing.T) {
	h, _ := setupUserHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	w := httptest.NewRecorder()
	h.Me(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateMe_RejectsPasswordKeys(t *testing.T) {
	h, repo := setupUserHandler(t)
	user := seedUser(t, repo)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/users/update",
		strings.NewReader(`{"name":"New","password":"sneaky123"}`))
	req = requestWithUser(req, user)
	w := httptest.NewRecorder()
	h.UpdateMe(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "This route is not for password updates. Please use /password.")
}

func TestUpdateMe_FiltersToProfileFields(t *testing.T) {
	h, repo := setupUserHandler(t)
	user := seedUser(t, repo)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/users/update",
		strings.NewReader(`{"name":"Renamed","role":"admin","photo":"new.jpg"}`))
	req = requestWithUser(req, user)
	w := httptest.NewRecorder()
	h.UpdateMe(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	stored := repo.users[user.ID]
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, "new.jpg", stored.Photo)
	// Role escalation never passes the whitelist.
	assert.Equal(t, user.Role, stored.Role)
}

func TestDeleteMe_Deactivates(t *testing.T) {
	h, repo := setupUserHandler(t)
	user := seedUser(t, repo)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/users/delete", nil)
	req = requestWithUser(req, user)
	w := httptest.NewRecorder()
	h.DeleteMe(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	_, err := repo.Get(context.Background(), user.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
