package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/go_cart/internal/domain"
)

var ErrCartNotFound = errors.New("cart not found")

// Repository persists one open cart per owner.
// Consumers define this interface, not the MongoDB implementation
type Repository interface {
	Get(ctx context.Context, ownerID string) (*domain.Cart, error)
	// Save replaces the owner's cart document.
	Save(ctx context.Context, cart *domain.Cart) error
	// Delete removes the owner's cart; ErrCartNotFound if there is none.
	Delete(ctx context.Context, ownerID string) error
	// DeleteIfID removes the owner's cart only while it still has the given id.
	DeleteIfID(ctx context.Context, ownerID, cartID string) (bool, error)
}

// MemoryRepository keeps carts in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]*domain.Cart)}
}

func (r *MemoryRepository) Get(_ context.Context, ownerID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.carts[ownerID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return c.Clone(), nil
}

func (r *MemoryRepository) Save(_ context.Context, c *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.carts[c.OwnerID] = c.Clone()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[ownerID]; !ok {
		return ErrCartNotFound
	}
	delete(r.carts, ownerID)
	return nil
}

func (r *MemoryRepository) DeleteIfID(_ context.Context, ownerID, cartID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[ownerID]
	if !ok || c.ID != cartID {
		return false, nil
	}
	delete(r.carts, ownerID)
	return true, nil
}
