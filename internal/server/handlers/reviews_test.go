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
	"github.com/iudanet/tourbook/internal/server/query"
	"github.com/iudanet/tourbook/internal/server/storage"
)

// memReviewRepo records writes and every rating recomputation trigger.
type memReviewRepo struct {
	reviews  map[string]*models.Review
	recalced []string
}

func newMemReviewRepo() *memReviewRepo {
	return &memReviewRepo{reviews: make(map[string]*models.Review)}
}

func (m *memReviewRepo) List(context.Context, *query.Directive) ([]models.Review, error) {
	out := make([]models.Review, 0, len(m.reviews))
	for _, r := range m.reviews {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memReviewRepo) Get(_ context.Context, id string) (*models.Review, error) {
	if r, ok := m.reviews[id]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memReviewRepo) Create(_ context.Context, r *models.Review) error {
	if r.ID == "" {
		r.ID = "review-1"
	}
	r.Rating = models.RoundRating(r.Rating)
	if err := r.Validate(); err != nil {
		return err
	}
	clone := *r
	m.reviews[r.ID] = &clone
	return nil
}

func (m *memReviewRepo) Update(_ context.Context, id string, patch map[string]any) (*models.Review, error) {
	r, ok := m.reviews[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if body, ok := patch["review"].(string); ok {
		r.Body = body
	}
	if rating, ok := patch["rating"].(float64); ok {
		r.Rating = models.RoundRating(rating)
	}
	clone := *r
	return &clone, nil
}

func (m *memReviewRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.reviews[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.reviews, id)
	return nil
}

func (m *memReviewRepo) RecalcTourRating(_ context.Context, tourID string) error {
	m.recalced = append(m.recalced, tourID)
	return nil
}

func setupReviewHandler(t *testing.T) (*ReviewHandler, *memReviewRepo) {
	t.Helper()
	repo := newMemReviewRepo()
	h := NewReviewHandler(setupTestLogger(), &Responder{Logger: setupTestLogger()}, repo)
	return h, repo
}

func TestReviewCreate_InjectsTourAndAuthor(t *testing.T) {
	h, repo := setupReviewHandler(t)
	author := &models.User{ID: "user-1", Role: models.RoleUser}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tours/tour-1/reviews",
		strings.NewReader(`{"review":"Wonderful trip","rating":4.5,"tour_id":"spoofed","created_by":"spoofed"}`))
	req.SetPathValue("id", "tour-1")
	req = requestWithUser(req, author)
	w := httptest.NewRecorder()
	h.Create(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	review := body["data"].(map[string]any)["review"].(map[string]any)
	assert.Equal(t, "tour-1", review["tour_id"])
	assert.Equal(t, "user-1", review["created_by"])

	// Every write triggers an explicit rating recomputation.
	assert.Equal(t, []string{"tour-1"}, repo.recalced)
}

func TestReviewUpdate_TriggersRecalc(t *testing.T) {
	h, repo := setupReviewHandler(t)
	repo.reviews["review-1"] = &models.Review{
		ID: "review-1", Body: "Old", Rating: 3, TourID: "tour-1", CreatedBy: "user-1",
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/reviews/review-1",
		strings.NewReader(`{"rating":5}`))
	req.SetPathValue("id", "review-1")
	w := httptest.NewRecorder()
	h.Update(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"tour-1"}, repo.recalced)
}

func TestReviewDelete_TriggersRecalc(t *testing.T) {
	h, repo := setupReviewHandler(t)
	repo.reviews["review-1"] = &models.Review{
		ID: "review-1", Body: "Bye", Rating: 2, TourID: "tour-1", CreatedBy: "user-1",
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/reviews/review-1", nil)
	req.SetPathValue("id", "review-1")
	w := httptest.NewRecorder()
	h.Delete(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, repo.reviews)
	assert.Equal(t, []string{"tour-1"}, repo.recalced)
}

func TestReviewDelete_NotFound(t *testing.T) {
	h, repo := setupReviewHandler(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/reviews/missing", nil)
	req.SetPathValue("id", "missing")
	w := httptest.NewRecorder()
	h.Delete(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "No review found with id missing.")
	assert.Empty(t, repo.recalced)
}
