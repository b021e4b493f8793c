package domain

import (
	"time"

	"github.com/fjod/go_cart/internal/money"
)

type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "CREATED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusDispatched OrderStatus = "DISPATCHED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:    {OrderStatusProcessing, OrderStatusDispatched, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusDispatched, OrderStatusCancelled},
	OrderStatusDispatched: {OrderStatusCompleted},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusProcessing, OrderStatusDispatched, OrderStatusCancelled, OrderStatusCompleted:
		return true
	}
	return false
}

type OrderLine struct {
	ProductID string      `json:"product_id"`
	Title     string      `json:"title,omitempty"`
	Color     string      `json:"color,omitempty"`
	Size      string      `json:"size,omitempty"`
	Quantity  int64       `json:"quantity"`
	UnitPrice money.Money `json:"unit_price"`
}

// Order is immutable after creation except for Status.
type Order struct {
	ID                     string      `json:"id"`
	CartID                 string      `json:"cart_id"`
	OwnerID                string      `json:"owner_id"`
	PaymentAuthorizationID string      `json:"payment_authorization_id"`
	Lines                  []OrderLine `json:"lines"`
	Subtotal               money.Money `json:"subtotal"`
	Discount               money.Money `json:"discount"`
	Total                  money.Money `json:"total"`
	CouponCode             string      `json:"coupon_code,omitempty"`
	ShippingAddress        *Address    `json:"shipping_address,omitempty"`
	Status                 OrderStatus `json:"status"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
}

// OrderLinesFromCart copies cart lines so the order never references the cart.
func OrderLinesFromCart(lines []CartLine) []OrderLine {
	out := make([]OrderLine, len(lines))
	for i, l := range lines {
		out[i] = OrderLine{
			ProductID: l.ProductID,
			Title:     l.Title,
			Color:     l.Color,
			Size:      l.Size,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}
	return out
}
