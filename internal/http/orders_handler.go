package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/go_cart/internal/domain"
)

type OrderService interface {
	GetForOwner(ctx context.Context, ownerID, id string) (*domain.Order, error)
	ListForOwner(ctx context.Context, ownerID string) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, to domain.OrderStatus) (*domain.Order, error)
}

type OrdersHandler struct {
	orders OrderService
}

func NewOrdersHandler(svc OrderService) *OrdersHandler {
	return &OrdersHandler{orders: svc}
}

type OrdersResponseDTO struct {
	Orders []*domain.Order `json:"orders"`
}

type UpdateOrderStatusRequestDTO struct {
	Status string `json:"status"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	list, err := h.orders.ListForOwner(r.Context(), ownerID)
	if err != nil {
		handleError(w, err)
		return
	}
	if list == nil {
		list = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, OrdersResponseDTO{Orders: list})
}

// GET /api/v1/orders/{id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetForOwner(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// PATCH /api/v1/admin/orders/{id}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrderStatusRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	if req.Status == "" {
		respondError(w, http.StatusBadRequest, "missing_status", "status is required")
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), domain.OrderStatus(req.Status))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}
