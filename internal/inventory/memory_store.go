package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/go_cart/internal/domain"
)

// MemoryStore implements Ledger with in-memory storage. A single mutex makes
// every batch atomic.
type MemoryStore struct {
	mu           sync.RWMutex
	stocks       map[string]*domain.InventoryRecord // productID -> counters
	reservations map[string]*domain.Reservation     // reservationID -> reservation
	active       map[string]string                  // checkoutID -> reserved reservationID
	now          func() time.Time
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		stocks:       make(map[string]*domain.InventoryRecord),
		reservations: make(map[string]*domain.Reservation),
		active:       make(map[string]string),
		now:          o.now,
	}
}

func (s *MemoryStore) GetStock(_ context.Context, productIDs []string) ([]domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryRecord, 0, len(productIDs))
	for _, id := range productIDs {
		if stock, exists := s.stocks[id]; exists {
			result = append(result, *stock)
		}
	}
	return result, nil
}

func (s *MemoryStore) Reserve(_ context.Context, checkoutID string, items []domain.ReservationItem) (*domain.Reservation, error) {
	items, err := normalizeItems(items)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.active[checkoutID]; ok {
		return cloneReservation(s.reservations[id]), nil
	}

	// First pass: validate all items have sufficient stock
	for _, item := range items {
		var available int64
		if stock, exists := s.stocks[item.ProductID]; exists {
			available = stock.AvailableQty
		}
		if available < item.Quantity {
			return nil, &InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity, Available: available}
		}
	}

	// Second pass: move units from available to reserved
	for _, item := range items {
		stock := s.stocks[item.ProductID]
		stock.AvailableQty -= item.Quantity
		stock.ReservedQty += item.Quantity
	}

	now := s.now()
	reservation := &domain.Reservation{
		ID:         uuid.NewString(),
		CheckoutID: checkoutID,
		Items:      items,
		Status:     domain.StatusReserved,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.reservations[reservation.ID] = reservation
	s.active[checkoutID] = reservation.ID
	return cloneReservation(reservation), nil
}

func (s *MemoryStore) Commit(_ context.Context, reservationID string) error {
	return s.finish(reservationID, domain.StatusCommitted)
}

func (s *MemoryStore) Release(_ context.Context, reservationID string) error {
	return s.finish(reservationID, domain.StatusReleased)
}

func (s *MemoryStore) finish(reservationID string, to domain.ReservationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reservation, exists := s.reservations[reservationID]
	if !exists {
		return ErrReservationNotFound
	}
	if reservation.Status == to {
		return nil
	}
	if reservation.Status != domain.StatusReserved {
		return ErrInvalidStatus
	}

	for _, item := range reservation.Items {
		stock := s.stocks[item.ProductID]
		stock.ReservedQty -= item.Quantity
		if to == domain.StatusCommitted {
			stock.SoldQty += item.Quantity
		} else {
			stock.AvailableQty += item.Quantity
		}
	}

	reservation.Status = to
	reservation.UpdatedAt = s.now()
	delete(s.active, reservation.CheckoutID)
	return nil
}

func (s *MemoryStore) GetReservation(_ context.Context, reservationID string) (*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reservation, exists := s.reservations[reservationID]
	if !exists {
		return nil, ErrReservationNotFound
	}
	return cloneReservation(reservation), nil
}

// SetStock sets the available baseline and keeps reserved and sold counters.
func (s *MemoryStore) SetStock(_ context.Context, productID string, available int64) error {
	if available < 0 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stock, exists := s.stocks[productID]
	if !exists {
		stock = &domain.InventoryRecord{ProductID: productID}
		s.stocks[productID] = stock
	}
	stock.AvailableQty = available
	return nil
}

func (s *MemoryStore) ListStale(_ context.Context, before time.Time, limit int) ([]*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []*domain.Reservation
	for _, reservation := range s.reservations {
		if reservation.Status == domain.StatusReserved && reservation.CreatedAt.Before(before) {
			stale = append(stale, cloneReservation(reservation))
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func cloneReservation(r *domain.Reservation) *domain.Reservation {
	clone := *r
	clone.Items = append([]domain.ReservationItem(nil), r.Items...)
	return &clone
}
