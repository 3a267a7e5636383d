package handlers

import (
	"net/http"
	"strconv"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/server/apperr"
	"github.com/iudanet/tourbook/internal/server/storage"
)

// TourHandler serves the tour collection plus its aggregation routes.
type TourHandler struct {
	resp  *Responder
	tours storage.TourRepository

	CRUD *CRUD[models.Tour]
}

func NewTourHandler(resp *Responder, tours storage.TourRepository) *TourHandler {
	return &TourHandler{
		resp:  resp,
		tours: tours,
		CRUD: &CRUD[models.Tour]{
			Resp:   resp,
			Repo:   tours,
			Name:   "tour",
			Plural: "tours",
		},
	}
}

// TopCheap handles GET /api/v1/tours/top-5-cheap: a preset listing of
// the five best-rated tours, cheapest first among equals.
func (h *TourHandler) TopCheap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	q.Set("limit", "5")
	q.Set("sort", "-avg_rating,price")
	q.Set("fields", "name,price,avg_rating,summary,difficulty")
	r.URL.RawQuery = q.Encode()

	h.CRUD.List(w, r)
}

// Stats handles GET /api/v1/tours/stats with per-difficulty aggregates.
func (h *TourHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tours.Stats(r.Context())
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if stats == nil {
		stats = []storage.DifficultyStats{}
	}
	h.resp.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
	})
}

// MonthlyPlan handles GET /api/v1/tours/monthly-plan/{year}: the
// year's departures grouped per calendar month.
func (h *TourHandler) MonthlyPlan(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 1 {
		h.resp.Error(w, r, apperr.BadRequest("Please provide a valid year."))
		return
	}

	plan, err := h.tours.MonthlyPlan(r.Context(), year)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if plan == nil {
		plan = []storage.MonthlyPlanEntry{}
	}
	h.resp.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"results": len(plan),
			"plan":    plan,
		},
	})
}
