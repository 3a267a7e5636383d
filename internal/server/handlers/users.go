package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/server/apperr"
	"github.com/iudanet/tourbook/internal/server/middleware"
	"github.com/iudanet/tourbook/internal/server/storage"
)

// UserHandler serves the self-service profile routes plus the admin
// user collection.
type UserHandler struct {
	resp  *Responder
	users storage.UserRepository

	// CRUD backs the admin-only collection routes.
	CRUD *CRUD[models.User]
}

func NewUserHandler(resp *Responder, users storage.UserRepository) *UserHandler {
	return &UserHandler{
		resp:  resp,
		users: users,
		CRUD: &CRUD[models.User]{
			Resp:   resp,
			Repo:   users,
			Name:   "user",
			Plural: "users",
		},
	}
}

// Me handles GET /api/v1/users/me.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		h.resp.Error(w, r, apperr.Unauthorized("Unauthorized. There seems to be no user logged in."))
		return
	}
	h.resp.Data(w, http.StatusOK, "user", user)
}

// UpdateMe handles PATCH /api/v1/users/update. Only profile fields may
// change here; password changes have their own route.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		h.resp.Error(w, r, apperr.Unauthorized("Unauthorized. There seems to be no user logged in."))
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.resp.Error(w, r, apperr.BadRequest("Invalid request body."))
		return
	}

	for _, key := range []string{"password", "password_confirm", "new_password", "current_password"} {
		if _, ok := patch[key]; ok {
			h.resp.Error(w, r, apperr.BadRequest("This route is not for password updates. Please use /password."))
			return
		}
	}

	// Whitelist rather than blacklist: anything beyond the profile
	// fields (role above all) is silently dropped.
	filtered := make(map[string]any, 3)
	for _, key := range []string{"name", "email", "photo"} {
		if v, ok := patch[key]; ok {
			filtered[key] = v
		}
	}

	updated, err := h.users.Update(r.Context(), user.ID, filtered)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.Data(w, http.StatusOK, "user", updated)
}

// DeleteMe handles DELETE /api/v1/users/delete. The account is
// deactivated, not erased; deactivated users disappear from every
// lookup.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		h.resp.Error(w, r, apperr.Unauthorized("Unauthorized. There seems to be no user logged in."))
		return
	}
	if err := h.users.Deactivate(r.Context(), user.ID); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
