// Package payment is the boundary to the checkout provider. Session
// creation and webhook signature verification internals stay behind the
// Provider interface; the core only consumes the parsed event.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// EventCheckoutCompleted is the only webhook event the core acts on.
const EventCheckoutCompleted = "checkout.session.completed"

// ErrBadSignature indicates a webhook payload that fails verification.
var ErrBadSignature = errors.New("invalid webhook signature")

// CheckoutParams describes the purchase a session is created for.
type CheckoutParams struct {
	TourID        string
	TourName      string
	TourSummary   string
	CustomerEmail string
	AmountCents   int64
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the provider's session handle, echoed back on the
// completion webhook.
type CheckoutSession struct {
	ID            string `json:"id"`
	URL           string `json:"url,omitempty"`
	TourID        string `json:"client_reference_id"`
	CustomerEmail string `json:"customer_email"`
	AmountTotal   int64  `json:"amount_total"`
}

// Event is a parsed, signature-verified webhook notification.
type Event struct {
	Type    string          `json:"type"`
	Session CheckoutSession `json:"session"`
}

// Provider creates checkout sessions and verifies webhook payloads.
type Provider interface {
	CreateCheckout(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// LocalProvider is the development provider: sessions are synthesized
// locally and webhooks are authenticated with an HMAC over the payload.
type LocalProvider struct {
	secret []byte
}

// NewLocalProvider creates a provider sharing the given webhook secret.
func NewLocalProvider(secret string) *LocalProvider {
	return &LocalProvider{secret: []byte(secret)}
}

func (p *LocalProvider) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if params.TourID == "" || params.CustomerEmail == "" {
		return nil, errors.New("checkout requires a tour and a customer email")
	}
	id := "cs_" + uuid.New().String()
	return &CheckoutSession{
		ID:            id,
		URL:           params.SuccessURL,
		TourID:        params.TourID,
		CustomerEmail: params.CustomerEmail,
		AmountTotal:   params.AmountCents,
	}, nil
}

func (p *LocalProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if !hmac.Equal([]byte(p.Sign(payload)), []byte(signature)) {
		return nil, ErrBadSignature
	}
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	return &event, nil
}

// Sign computes the signature a webhook sender attaches to a payload.
func (p *LocalProvider) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
