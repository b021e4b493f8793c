package http

import (
	"context"
	"net/http"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/money"
)

type CheckoutService interface {
	Authorize(ctx context.Context, req domain.AuthorizeRequest) (*domain.AuthorizeResponse, error)
	Finalize(ctx context.Context, req domain.FinalizeRequest) (*domain.Order, error)
	FinalizeByAuthorization(ctx context.Context, authorizationID string) (*domain.Order, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
}

func NewCheckoutHandler(svc CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: svc}
}

type AuthorizeRequestDTO struct {
	CouponCode    string `json:"coupon_code,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

type AuthorizeResponseDTO struct {
	AttemptID       string      `json:"attempt_id"`
	AuthorizationID string      `json:"authorization_id"`
	ClientSecret    string      `json:"client_secret"`
	Amount          money.Money `json:"amount"`
	CartVersion     int64       `json:"cart_version"`
	Status          string      `json:"status"`
}

type FinalizeRequestDTO struct {
	AuthorizationID string `json:"authorization_id"`
}

// POST /api/v1/checkout/authorize
func (h *CheckoutHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req AuthorizeRequestDTO
	if err := optionalBody(decodeJSON(r, &req)); err != nil {
		respondDecodeError(w, err)
		return
	}

	resp, err := h.checkout.Authorize(r.Context(), domain.AuthorizeRequest{
		OwnerID:        ownerID,
		CouponCode:     req.CouponCode,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, AuthorizeResponseDTO{
		AttemptID:       resp.AttemptID,
		AuthorizationID: resp.AuthorizationID,
		ClientSecret:    resp.ClientSecret,
		Amount:          resp.Amount,
		CartVersion:     resp.CartVersion,
		Status:          resp.Status.String(),
	})
}

// POST /api/v1/checkout/finalize
func (h *CheckoutHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req FinalizeRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	if req.AuthorizationID == "" {
		respondError(w, http.StatusBadRequest, "missing_authorization_id", "authorization_id is required")
		return
	}

	order, err := h.checkout.Finalize(r.Context(), domain.FinalizeRequest{
		OwnerID:         ownerID,
		AuthorizationID: req.AuthorizationID,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// POST /webhooks/payments
func (h *CheckoutHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req FinalizeRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	if req.AuthorizationID == "" {
		respondError(w, http.StatusBadRequest, "missing_authorization_id", "authorization_id is required")
		return
	}

	order, err := h.checkout.FinalizeByAuthorization(r.Context(), req.AuthorizationID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"order_id": order.ID,
		"status":   string(order.Status),
	})
}
