package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fjod/go_cart/internal/domain"
)

// Common errors returned by the ledger
var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidStatus       = errors.New("invalid reservation status for this operation")
	ErrNoItems             = errors.New("reservation has no items")
	ErrInvalidQuantity     = errors.New("stock quantity must not be negative")
)

// InsufficientStockError names the first product that could not be reserved.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Ledger owns per-product stock counters. Every Reserve must be followed by
// exactly one Commit or Release.
type Ledger interface {
	// Reserve holds stock for every item or for none of them. A second call
	// for a checkout that already holds an active reservation returns it.
	Reserve(ctx context.Context, checkoutID string, items []domain.ReservationItem) (*domain.Reservation, error)

	// Commit moves reserved units into sold. Committing twice is a no-op.
	Commit(ctx context.Context, reservationID string) error

	// Release returns reserved units to available. Releasing twice is a no-op.
	Release(ctx context.Context, reservationID string) error

	GetReservation(ctx context.Context, reservationID string) (*domain.Reservation, error)

	// GetStock returns counters for the given products; unknown ids are skipped.
	GetStock(ctx context.Context, productIDs []string) ([]domain.InventoryRecord, error)

	// SetStock sets the available baseline for a product.
	SetStock(ctx context.Context, productID string, available int64) error

	// ListStale returns reservations still held that were created before the cutoff.
	ListStale(ctx context.Context, before time.Time, limit int) ([]*domain.Reservation, error)
}

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock sets the clock used to stamp reservations.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// normalizeItems aggregates duplicates and sorts by product so that row locks
// are always taken in the same order.
func normalizeItems(items []domain.ReservationItem) ([]domain.ReservationItem, error) {
	for _, item := range items {
		if item.Quantity < 0 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, item.ProductID)
		}
	}
	merged := domain.AggregateItems(items)
	if len(merged) == 0 {
		return nil, ErrNoItems
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}
