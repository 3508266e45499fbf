package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/google/uuid"
)

const (
	HeaderIdempotencyKey  = "Idempotency-Key"
	HeaderStripeSignature = "Stripe-Signature"
)

type CheckoutHandler struct {
	checkout *service.CheckoutService
	timeout  time.Duration
}

func NewCheckoutHandler(checkout *service.CheckoutService, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
	}
}

type CheckoutRequestDTO struct {
	PaymentMethod     domain.PaymentMethod `json:"payment_method"`
	ShippingAddressID uuid.UUID            `json:"shipping_address_id"`
	IdempotencyKey    string               `json:"idempotency_key,omitempty"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ShippingAddressID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "invalid_shipping_address_id", "shipping_address_id is required")
		return
	}

	key := r.Header.Get(HeaderIdempotencyKey)
	if key == "" {
		key = req.IdempotencyKey
	}

	result, err := h.checkout.Checkout(ctx, getUserIDFromContext(r.Context()), service.CheckoutRequest{
		PaymentMethod:     req.PaymentMethod,
		ShippingAddressID: req.ShippingAddressID,
		IdempotencyKey:    key,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

type WebhookHandler struct {
	settlement *service.SettlementService
	maxBody    int64
	timeout    time.Duration
}

func NewWebhookHandler(settlement *service.SettlementService, maxBody int64, timeout time.Duration) *WebhookHandler {
	return &WebhookHandler{
		settlement: settlement,
		maxBody:    maxBody,
		timeout:    timeout,
	}
}

// POST /api/v1/webhooks/payment
//
// The body is read raw: the signature covers the exact bytes sent.
func (h *WebhookHandler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "webhook payload too large")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	if err := h.settlement.HandleWebhook(ctx, payload, r.Header.Get(HeaderStripeSignature)); err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
