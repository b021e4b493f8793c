package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/internal/domain"
)

// MemoryRepository is an in-process Repository with the same uniqueness
// guarantees as the SQL schema.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	byCart map[string]string
	byAuth map[string]string
	events []*OutboxEvent
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[string]*domain.Order),
		byCart: make(map[string]string),
		byAuth: make(map[string]string),
		now:    time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, o *domain.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = r.now().UTC()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	event, err := newOrderCreatedEvent(o)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[o.ID]; ok {
		return ErrDuplicateOrder
	}
	if _, ok := r.byCart[o.CartID]; ok {
		return ErrDuplicateOrder
	}
	if _, ok := r.byAuth[o.PaymentAuthorizationID]; ok {
		return ErrDuplicateOrder
	}

	r.orders[o.ID] = cloneOrder(o)
	r.byCart[o.CartID] = o.ID
	r.byAuth[o.PaymentAuthorizationID] = o.ID
	r.events = append(r.events, event)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryRepository) GetByCartID(ctx context.Context, cartID string) (*domain.Order, error) {
	r.mu.RLock()
	id, ok := r.byCart[cartID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrOrderNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryRepository) ListByOwner(_ context.Context, ownerID string) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []*domain.Order
	for _, o := range r.orders {
		if o.OwnerID == ownerID {
			orders = append(orders, cloneOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id string, to domain.OrderStatus) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if !o.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}

	now := r.now().UTC()
	event, err := newStatusChangedEvent(id, o.Status, to, now)
	if err != nil {
		return nil, err
	}
	o.Status = to
	o.UpdatedAt = now
	r.events = append(r.events, event)
	return cloneOrder(o), nil
}

func (r *MemoryRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var events []*OutboxEvent
	for _, e := range r.events {
		if e.ProcessedAt != nil {
			continue
		}
		clone := *e
		events = append(events, &clone)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

func (r *MemoryRepository) MarkEventAsProcessed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.events {
		if e.ID == id && e.ProcessedAt == nil {
			now := r.now().UTC()
			e.ProcessedAt = &now
		}
	}
	return nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	clone := *o
	clone.Lines = append([]domain.OrderLine(nil), o.Lines...)
	if o.ShippingAddress != nil {
		addr := *o.ShippingAddress
		clone.ShippingAddress = &addr
	}
	return &clone
}
