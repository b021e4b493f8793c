package http

import (
	"context"
	"net/http"

	"github.com/fjod/go_cart/internal/catalog"
	"github.com/fjod/go_cart/internal/domain"
)

type CartService interface {
	Currency() string
	GetCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, ownerID string, lines []domain.CartLine, address *domain.Address) (*domain.Cart, error)
	SetAddress(ctx context.Context, ownerID string, address domain.Address) (*domain.Cart, error)
	ApplyCoupon(ctx context.Context, ownerID, code string) (*domain.Cart, error)
	Clear(ctx context.Context, ownerID string) error
}

type CartHandler struct {
	carts   CartService
	catalog catalog.Catalog
}

func NewCartHandler(carts CartService, products catalog.Catalog) *CartHandler {
	return &CartHandler{
		carts:   carts,
		catalog: products,
	}
}

type CartLineDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
}

type UpsertCartRequestDTO struct {
	Lines           []CartLineDTO   `json:"lines"`
	ShippingAddress *domain.Address `json:"shipping_address,omitempty"`
}

type ApplyCouponRequestDTO struct {
	Code string `json:"code"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	c, err := h.carts.GetCart(r.Context(), ownerID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// PUT /api/v1/cart
func (h *CartHandler) UpsertCart(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req UpsertCartRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	if req.Lines == nil {
		respondError(w, http.StatusBadRequest, "missing_lines", "lines is required")
		return
	}

	reqs := make([]catalog.LineRequest, 0, len(req.Lines))
	for _, line := range req.Lines {
		if line.ProductID == "" {
			respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
			return
		}
		if line.Quantity <= 0 || line.Quantity > 99 {
			respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
			return
		}
		reqs = append(reqs, catalog.LineRequest{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Color:     line.Color,
			Size:      line.Size,
		})
	}

	lines, err := catalog.PriceLines(r.Context(), h.catalog, h.carts.Currency(), reqs)
	if err != nil {
		handleError(w, err)
		return
	}

	c, err := h.carts.UpsertCart(r.Context(), ownerID, lines, req.ShippingAddress)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// PUT /api/v1/cart/address
func (h *CartHandler) SetAddress(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var addr domain.Address
	if err := decodeJSON(r, &addr); err != nil {
		respondDecodeError(w, err)
		return
	}

	c, err := h.carts.SetAddress(r.Context(), ownerID, addr)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// POST /api/v1/cart/coupon
func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req ApplyCouponRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "missing_code", "code is required")
		return
	}

	c, err := h.carts.ApplyCoupon(r.Context(), ownerID, req.Code)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	if err := h.carts.Clear(r.Context(), ownerID); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
