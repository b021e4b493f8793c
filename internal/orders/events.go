package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/go_cart/internal/domain"
)

type orderCreatedPayload struct {
	OrderID                string             `json:"order_id"`
	CartID                 string             `json:"cart_id"`
	OwnerID                string             `json:"owner_id"`
	PaymentAuthorizationID string             `json:"payment_authorization_id"`
	Lines                  []domain.OrderLine `json:"lines"`
	TotalAmount            int64              `json:"total_amount"`
	Currency               string             `json:"currency"`
	CouponCode             string             `json:"coupon_code,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
}

type statusChangedPayload struct {
	OrderID   string             `json:"order_id"`
	From      domain.OrderStatus `json:"from"`
	To        domain.OrderStatus `json:"to"`
	ChangedAt time.Time          `json:"changed_at"`
}

func newOrderCreatedEvent(o *domain.Order) (*OutboxEvent, error) {
	payload, err := json.Marshal(orderCreatedPayload{
		OrderID:                o.ID,
		CartID:                 o.CartID,
		OwnerID:                o.OwnerID,
		PaymentAuthorizationID: o.PaymentAuthorizationID,
		Lines:                  o.Lines,
		TotalAmount:            o.Total.Amount,
		Currency:               o.Total.Currency,
		CouponCode:             o.CouponCode,
		CreatedAt:              o.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order created payload: %w", err)
	}
	return &OutboxEvent{
		ID:          uuid.NewString(),
		AggregateID: o.ID,
		EventType:   EventOrderCreated,
		Payload:     payload,
		CreatedAt:   o.CreatedAt,
	}, nil
}

func newStatusChangedEvent(id string, from, to domain.OrderStatus, at time.Time) (*OutboxEvent, error) {
	payload, err := json.Marshal(statusChangedPayload{OrderID: id, From: from, To: to, ChangedAt: at})
	if err != nil {
		return nil, fmt.Errorf("marshal status changed payload: %w", err)
	}
	return &OutboxEvent{
		ID:          uuid.NewString(),
		AggregateID: id,
		EventType:   EventOrderStatusChanged,
		Payload:     payload,
		CreatedAt:   at,
	}, nil
}
