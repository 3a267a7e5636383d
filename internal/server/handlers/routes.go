package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/server/middleware"
)

// Handlers bundles every route handler of the API.
type Handlers struct {
	Auth     *AuthHandler
	Users    *UserHandler
	Tours    *TourHandler
	Reviews  *ReviewHandler
	Bookings *BookingHandler
}

// Routes assembles the full route table. The returned handler already
// carries the outer middleware chain.
func Routes(h *Handlers, auth *middleware.Auth, logger *slog.Logger, renderer middleware.ErrorFunc) http.Handler {
	mux := http.NewServeMux()

	requireStaff := auth.RestrictTo(models.RoleAdmin, models.RoleLeadGuide)
	requireAdmin := auth.RestrictTo(models.RoleAdmin)
	requireUser := auth.RestrictTo(models.RoleUser)

	gate := func(pattern string, next http.HandlerFunc) {
		mux.Handle(pattern, auth.Require(next))
	}
	gateRole := func(pattern string, role func(http.Handler) http.Handler, next http.HandlerFunc) {
		mux.Handle(pattern, auth.Require(role(next)))
	}

	// Users: session and password lifecycle.
	mux.HandleFunc("POST /api/v1/users/signup", h.Auth.Signup)
	mux.HandleFunc("POST /api/v1/users/login", h.Auth.Login)
	mux.HandleFunc("GET /api/v1/users/logout", h.Auth.Logout)
	mux.HandleFunc("POST /api/v1/users/forgot", h.Auth.ForgotPassword)
	mux.HandleFunc("PATCH /api/v1/users/reset/{token}", h.Auth.ResetPassword)
	gate("PATCH /api/v1/users/password", h.Auth.UpdatePassword)
	gate("GET /api/v1/users/me", h.Users.Me)
	gate("PATCH /api/v1/users/update", h.Users.UpdateMe)
	gate("DELETE /api/v1/users/delete", h.Users.DeleteMe)

	// Users: admin collection.
	gateRole("GET /api/v1/users", requireAdmin, h.Users.CRUD.List)
	gateRole("GET /api/v1/users/{id}", requireAdmin, h.Users.CRUD.Get)
	gateRole("PATCH /api/v1/users/{id}", requireAdmin, h.Users.CRUD.Update)
	gateRole("DELETE /api/v1/users/{id}", requireAdmin, h.Users.CRUD.Delete)

	// Tours: public reads, staff writes.
	mux.HandleFunc("GET /api/v1/tours", h.Tours.CRUD.List)
	mux.HandleFunc("GET /api/v1/tours/top-5-cheap", h.Tours.TopCheap)
	mux.HandleFunc("GET /api/v1/tours/stats", h.Tours.Stats)
	mux.HandleFunc("GET /api/v1/tours/monthly-plan/{year}", h.Tours.MonthlyPlan)
	mux.HandleFunc("GET /api/v1/tours/{id}", h.Tours.CRUD.Get)
	gateRole("POST /api/v1/tours", requireStaff, h.Tours.CRUD.Create)
	gateRole("PATCH /api/v1/tours/{id}", requireStaff, h.Tours.CRUD.Update)
	gateRole("DELETE /api/v1/tours/{id}", requireStaff, h.Tours.CRUD.Delete)

	// Reviews: nested under the tour for listing and creation.
	mux.HandleFunc("GET /api/v1/tours/{id}/reviews", h.Reviews.CRUD.List)
	gateRole("POST /api/v1/tours/{id}/reviews", requireUser, h.Reviews.Create)
	mux.HandleFunc("GET /api/v1/reviews", h.Reviews.CRUD.List)
	mux.HandleFunc("GET /api/v1/reviews/{id}", h.Reviews.CRUD.Get)
	gateRole("PATCH /api/v1/reviews/{id}", auth.RestrictTo(models.RoleUser, models.RoleAdmin), h.Reviews.Update)
	gateRole("DELETE /api/v1/reviews/{id}", auth.RestrictTo(models.RoleUser, models.RoleAdmin), h.Reviews.Delete)

	// Bookings: checkout for any logged-in user, collection for staff,
	// webhook authenticated by its signature instead of a session.
	gate("GET /api/v1/bookings/checkout/{tourId}", h.Bookings.Checkout)
	mux.HandleFunc("POST /api/v1/bookings/webhook", h.Bookings.Webhook)
	gateRole("GET /api/v1/bookings", requireStaff, h.Bookings.CRUD.List)
	gateRole("POST /api/v1/bookings", requireStaff, h.Bookings.CRUD.Create)
	gateRole("GET /api/v1/bookings/{id}", requireStaff, h.Bookings.CRUD.Get)
	gateRole("PATCH /api/v1/bookings/{id}", requireStaff, h.Bookings.CRUD.Update)
	gateRole("DELETE /api/v1/bookings/{id}", requireStaff, h.Bookings.CRUD.Delete)

	var handler http.Handler = mux
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Recovery(logger, renderer)(handler)
	return handler
}
