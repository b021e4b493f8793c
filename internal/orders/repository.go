package orders

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/internal/domain"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateOrder    = errors.New("order for this cart or authorization already exists")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OutboxEvent is written in the same transaction as the order change it
// describes and published later by the outbox poller.
type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Repository is the order store. Orders are unique per cart and per payment
// authorization, so a checkout can never produce two orders.
type Repository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByCartID(ctx context.Context, cartID string) (*domain.Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, to domain.OrderStatus) (*domain.Order, error)

	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id string) error
}
