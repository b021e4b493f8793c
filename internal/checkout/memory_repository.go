package checkout

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/internal/domain"
)

// MemoryRepository is an in-process AttemptRepository.
type MemoryRepository struct {
	mu       sync.RWMutex
	attempts map[string]*domain.CheckoutAttempt
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		attempts: make(map[string]*domain.CheckoutAttempt),
		now:      time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, a *domain.CheckoutAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.attempts[a.ID]; ok {
		return fmt.Errorf("checkout attempt %s already exists", a.ID)
	}
	if a.IdempotencyKey != "" {
		for _, other := range r.attempts {
			if other.OwnerID == a.OwnerID && other.IdempotencyKey == a.IdempotencyKey && holdsKey(other.Status) {
				return fmt.Errorf("%w: %s", ErrDuplicateKey, a.IdempotencyKey)
			}
		}
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now().UTC()
	}
	a.UpdatedAt = a.CreatedAt
	clone := *a
	r.attempts[a.ID] = &clone
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, a *domain.CheckoutAttempt, from domain.CheckoutStatus) error {
	if err := checkTransition(from, a.Status); err != nil {
		return fmt.Errorf("%w: %s -> %s", err, from, a.Status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.expect(a.ID, from)
	if err != nil {
		return err
	}
	a.UpdatedAt = r.now().UTC()
	a.CreatedAt = stored.CreatedAt
	clone := *a
	r.attempts[a.ID] = &clone
	return nil
}

func (r *MemoryRepository) Transition(_ context.Context, id string, from, to domain.CheckoutStatus) error {
	if err := checkTransition(from, to); err != nil {
		return fmt.Errorf("%w: %s -> %s", err, from, to)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.expect(id, from)
	if err != nil {
		return err
	}
	stored.Status = to
	stored.UpdatedAt = r.now().UTC()
	return nil
}

// expect must be called with mu held.
func (r *MemoryRepository) expect(id string, from domain.CheckoutStatus) (*domain.CheckoutAttempt, error) {
	stored, ok := r.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	if stored.Status != from {
		return nil, fmt.Errorf("%w: now %s", ErrStatusConflict, stored.Status)
	}
	return stored, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.CheckoutAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	clone := *a
	return &clone, nil
}

func (r *MemoryRepository) GetByAuthorizationID(_ context.Context, authorizationID string) (*domain.CheckoutAttempt, error) {
	if authorizationID == "" {
		return nil, ErrAttemptNotFound
	}
	return r.newest(func(a *domain.CheckoutAttempt) bool {
		return a.AuthorizationID == authorizationID
	})
}

func (r *MemoryRepository) FindAuthorized(_ context.Context, ownerID, cartID string, cartVersion int64) (*domain.CheckoutAttempt, error) {
	return r.newest(func(a *domain.CheckoutAttempt) bool {
		return a.OwnerID == ownerID &&
			a.CartID == cartID &&
			a.CartVersion == cartVersion &&
			a.Status == domain.CheckoutStatusAuthorized
	})
}

func (r *MemoryRepository) GetByIdempotencyKey(_ context.Context, ownerID, key string) (*domain.CheckoutAttempt, error) {
	if key == "" {
		return nil, ErrAttemptNotFound
	}
	return r.newest(func(a *domain.CheckoutAttempt) bool {
		return a.OwnerID == ownerID && a.IdempotencyKey == key
	})
}

func (r *MemoryRepository) newest(match func(*domain.CheckoutAttempt) bool) (*domain.CheckoutAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *domain.CheckoutAttempt
	for _, a := range r.attempts {
		if !match(a) {
			continue
		}
		if found == nil || a.CreatedAt.After(found.CreatedAt) {
			found = a
		}
	}
	if found == nil {
		return nil, ErrAttemptNotFound
	}
	clone := *found
	return &clone, nil
}

func (r *MemoryRepository) ListByStatus(_ context.Context, status domain.CheckoutStatus, updatedBefore time.Time, limit int) ([]*domain.CheckoutAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.CheckoutAttempt
	for _, a := range r.attempts {
		if a.Status == status && a.UpdatedAt.Before(updatedBefore) {
			clone := *a
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
