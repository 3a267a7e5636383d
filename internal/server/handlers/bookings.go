package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/iudanet/tourbook/internal/models"
	"github.com/iudanet/tourbook/internal/payment"
	"github.com/iudanet/tourbook/internal/server/apperr"
	"github.com/iudanet/tourbook/internal/server/middleware"
	"github.com/iudanet/tourbook/internal/server/storage"
	"github.com/iudanet/tourbook/internal/server/webhookdedup"
)

// SignatureHeader carries the webhook payload signature.
const SignatureHeader = "X-Webhook-Signature"

// maxWebhookBody bounds how much of a webhook payload is read.
const maxWebhookBody = 1 << 20

// BookingHandler serves the booking collection, checkout session
// creation and the payment completion webhook.
type BookingHandler struct {
	logger   *slog.Logger
	resp     *Responder
	bookings storage.BookingRepository
	tours    storage.TourRepository
	users    storage.UserRepository
	payments payment.Provider
	dedup    *webhookdedup.Store

	CRUD *CRUD[models.Booking]
}

func NewBookingHandler(
	logger *slog.Logger,
	resp *Responder,
	bookings storage.BookingRepository,
	tours storage.TourRepository,
	users storage.UserRepository,
	payments payment.Provider,
	dedup *webhookdedup.Store,
) *BookingHandler {
	return &BookingHandler{
		logger:   logger,
		resp:     resp,
		bookings: bookings,
		tours:    tours,
		users:    users,
		payments: payments,
		dedup:    dedup,
		CRUD: &CRUD[models.Booking]{
			Resp:   resp,
			Repo:   bookings,
			Name:   "booking",
			Plural: "bookings",
		},
	}
}

// Checkout handles GET /api/v1/bookings/checkout/{tourId}: it creates a
// provider session for the tour priced at creation time.
func (h *BookingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := middleware.UserFrom(ctx)
	if !ok {
		h.resp.Error(w, r, apperr.Unauthorized("Unauthorized. There seems to be no user logged in."))
		return
	}

	tourID := r.PathValue("tourId")
	tour, err := h.tours.Get(ctx, tourID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.resp.Error(w, r, apperr.NotFound("No tour found with id "+tourID+"."))
			return
		}
		h.resp.Error(w, r, err)
		return
	}

	base := requestBaseURL(r)
	session, err := h.payments.CreateCheckout(ctx, payment.CheckoutParams{
		TourID:        tour.ID,
		TourName:      tour.Name,
		TourSummary:   tour.Summary,
		CustomerEmail: user.Email,
		AmountCents:   int64(tour.Price * 100),
		SuccessURL:    base + "/my-bookings",
		CancelURL:     base + "/tours/" + tour.Slug,
	})
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "checkout session created",
		slog.String("session_id", session.ID),
		slog.String("tour_id", tour.ID),
		slog.String("user_id", user.ID))
	h.resp.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": session,
	})
}

// Webhook handles POST /api/v1/bookings/webhook. A verified completion
// event books the tour exactly once; redeliveries acknowledge without
// booking again.
func (h *BookingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.resp.Error(w, r, apperr.BadRequest("Invalid request body."))
		return
	}

	event, err := h.payments.ParseWebhook(body, r.Header.Get(SignatureHeader))
	if err != nil {
		if errors.Is(err, payment.ErrBadSignature) {
			h.resp.Error(w, r, apperr.BadRequest("Webhook signature verification failed."))
			return
		}
		h.resp.Error(w, r, apperr.BadRequest("Invalid webhook payload."))
		return
	}

	if event.Type != payment.EventCheckoutCompleted {
		h.resp.JSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	first, err := h.dedup.MarkProcessed(event.Session.ID)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if !first {
		h.logger.InfoContext(ctx, "webhook redelivery skipped",
			slog.String("session_id", event.Session.ID))
		h.resp.JSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	user, err := h.users.GetByEmail(ctx, event.Session.CustomerEmail)
	if err != nil {
		h.failWebhook(w, r, event.Session.ID, err)
		return
	}

	booking := &models.Booking{
		TourID: event.Session.TourID,
		UserID: user.ID,
		Price:  float64(event.Session.AmountTotal) / 100,
		Paid:   true,
	}
	if err := h.bookings.Create(ctx, booking); err != nil {
		h.failWebhook(w, r, event.Session.ID, err)
		return
	}

	h.logger.InfoContext(ctx, "booking created from webhook",
		slog.String("booking_id", booking.ID),
		slog.String("session_id", event.Session.ID))
	h.resp.JSON(w, http.StatusOK, map[string]any{"received": true})
}

// failWebhook unmarks the session before reporting the error, so the
// provider's retry of the same delivery is processed as first instead
// of being acknowledged as a duplicate of a booking that never landed.
func (h *BookingHandler) failWebhook(w http.ResponseWriter, r *http.Request, sessionID string, err error) {
	if unmarkErr := h.dedup.Unmark(sessionID); unmarkErr != nil {
		h.logger.ErrorContext(r.Context(), "failed to unmark webhook session",
			slog.String("session_id", sessionID), slog.Any("error", unmarkErr))
	}
	h.resp.Error(w, r, err)
}
