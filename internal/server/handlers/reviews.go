package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/server/apperr"
	"github.com/iudanet/tourbook/internal/server/middleware"
	"github.com/iudanet/tourbook/internal/server/query"
	"github.com/iudanet/tourbook/internal/server/storage"
)

// ReviewHandler serves reviews, both standalone and nested under a
// tour. Writes go through hand-rolled handlers because every mutation
// must be followed by an explicit recomputation of the tour's rating
// aggregate.
type ReviewHandler struct {
	logger  *slog.Logger
	resp    *Responder
	reviews storage.ReviewRepository

	CRUD *CRUD[models.Review]
}

func NewReviewHandler(logger *slog.Logger, resp *Responder, reviews storage.ReviewRepository) *ReviewHandler {
	return &ReviewHandler{
		logger:  logger,
		resp:    resp,
		reviews: reviews,
		CRUD: &CRUD[models.Review]{
			Resp:   resp,
			Repo:   reviews,
			Name:   "review",
			Plural: "reviews",
			Scope:  tourScope,
		},
	}
}

// tourScope constrains a nested listing to its parent tour. On the flat
// route there is no path parameter and no constraint.
func tourScope(r *http.Request) []query.Clause {
	tourID := r.PathValue("id")
	if tourID == "" {
		return nil
	}
	return []query.Clause{{Field: "tour_id", Op: "=", Value: tourID}}
}

// Create handles POST /api/v1/tours/{id}/reviews. The author always
// comes from the session, the tour from the path.
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := middleware.UserFrom(ctx)
	if !ok {
		h.resp.Error(w, r, apperr.Unauthorized("Unauthorized. There seems to be no user logged in."))
		return
	}

	var review models.Review
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		h.resp.Error(w, r, apperr.BadRequest("Invalid request body."))
		return
	}
	review.TourID = r.PathValue("id")
	review.CreatedBy = user.ID

	if err := h.reviews.Create(ctx, &review); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.recalc(r, review.TourID)

	h.resp.Data(w, http.StatusCreated, "review", &review)
}

// Update handles PATCH /api/v1/reviews/{id}.
func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.resp.Error(w, r, apperr.BadRequest("Invalid request body."))
		return
	}

	review, err := h.reviews.Update(r.Context(), id, patch)
	if err != nil {
		h.resp.Error(w, r, h.CRUD.notFound(err, id))
		return
	}
	h.recalc(r, review.TourID)

	h.resp.Data(w, http.StatusOK, "review", review)
}

// Delete handles DELETE /api/v1/reviews/{id}.
func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// The parent tour id is needed after the row is gone.
	review, err := h.reviews.Get(r.Context(), id)
	if err != nil {
		h.resp.Error(w, r, h.CRUD.notFound(err, id))
		return
	}

	if err := h.reviews.Delete(r.Context(), id); err != nil {
		h.resp.Error(w, r, h.CRUD.notFound(err, id))
		return
	}
	h.recalc(r, review.TourID)

	w.WriteHeader(http.StatusNoContent)
}

// recalc refreshes the parent tour's rating aggregate. A failure leaves
// the aggregate stale until the next mutation, which is preferable to
// failing a write that already happened.
func (h *ReviewHandler) recalc(r *http.Request, tourID string) {
	if err := h.reviews.RecalcTourRating(r.Context(), tourID); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to recompute tour rating",
			slog.String("tour_id", tourID), slog.Any("error", err))
	}
}
