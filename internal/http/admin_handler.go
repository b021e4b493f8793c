package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fjod/go_cart/internal/domain"
)

type CouponAdmin interface {
	Create(ctx context.Context, code string, percent decimal.Decimal, expiresAt time.Time) (*domain.Coupon, error)
	Delete(ctx context.Context, code string) error
	List(ctx context.Context) ([]*domain.Coupon, error)
}

type StockAdmin interface {
	GetStock(ctx context.Context, productIDs []string) ([]domain.InventoryRecord, error)
	SetStock(ctx context.Context, productID string, available int64) error
}

type AdminHandler struct {
	coupons CouponAdmin
	stock   StockAdmin
}

func NewAdminHandler(coupons CouponAdmin, stock StockAdmin) *AdminHandler {
	return &AdminHandler{
		coupons: coupons,
		stock:   stock,
	}
}

type CreateCouponRequestDTO struct {
	Code            string           `json:"code"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	ExpiresAt       time.Time        `json:"expires_at"`
}

type SetStockRequestDTO struct {
	Available *int64 `json:"available"`
}

// GET /api/v1/admin/coupons
func (h *AdminHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.coupons.List(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	if list == nil {
		list = []*domain.Coupon{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"coupons": list})
}

// POST /api/v1/admin/coupons
func (h *AdminHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req CreateCouponRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	if req.Code == "" || req.DiscountPercent == nil || req.ExpiresAt.IsZero() {
		respondError(w, http.StatusBadRequest, "missing_field", "code, discount_percent and expires_at are required")
		return
	}

	c, err := h.coupons.Create(r.Context(), req.Code, *req.DiscountPercent, req.ExpiresAt)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// DELETE /api/v1/admin/coupons/{code}
func (h *AdminHandler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/v1/admin/inventory/{product_id}
func (h *AdminHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")

	var req SetStockRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	if req.Available == nil {
		respondError(w, http.StatusBadRequest, "missing_available", "available is required")
		return
	}

	if err := h.stock.SetStock(r.Context(), productID, *req.Available); err != nil {
		handleError(w, err)
		return
	}
	records, err := h.stock.GetStock(r.Context(), []string{productID})
	if err != nil {
		handleError(w, err)
		return
	}
	if len(records) == 0 {
		respondError(w, http.StatusNotFound, "not_found", "product has no inventory record")
		return
	}
	respondJSON(w, http.StatusOK, records[0])
}

// GET /api/v1/admin/inventory?product_id=p1&product_id=p2
func (h *AdminHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["product_id"]
	if len(ids) == 0 {
		respondError(w, http.StatusBadRequest, "missing_product_id", "at least one product_id is required")
		return
	}

	records, err := h.stock.GetStock(r.Context(), ids)
	if err != nil {
		handleError(w, err)
		return
	}
	if records == nil {
		records = []domain.InventoryRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"stocks": records})
}
