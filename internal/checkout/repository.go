package checkout

import (
	"context"
	"time"

	"github.com/fjod/go_cart/internal/domain"
)

// AttemptRepository persists checkout attempts. Status changes are
// compare-and-set on the expected current status so that two finalizers of
// the same authorization cannot both proceed.
type AttemptRepository interface {
	// Create fails with ErrDuplicateKey when a live attempt of the same owner
	// already holds a's idempotency key.
	Create(ctx context.Context, a *domain.CheckoutAttempt) error

	// Update writes every mutable field of a if the stored status is still from.
	Update(ctx context.Context, a *domain.CheckoutAttempt, from domain.CheckoutStatus) error

	// Transition changes only the status.
	Transition(ctx context.Context, id string, from, to domain.CheckoutStatus) error

	GetByID(ctx context.Context, id string) (*domain.CheckoutAttempt, error)
	GetByAuthorizationID(ctx context.Context, authorizationID string) (*domain.CheckoutAttempt, error)

	// FindAuthorized returns the newest Authorized attempt for the exact cart version.
	FindAuthorized(ctx context.Context, ownerID, cartID string, cartVersion int64) (*domain.CheckoutAttempt, error)

	// GetByIdempotencyKey returns the newest attempt the owner made with key.
	GetByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.CheckoutAttempt, error)

	// ListByStatus returns attempts in status last touched before updatedBefore, oldest first.
	ListByStatus(ctx context.Context, status domain.CheckoutStatus, updatedBefore time.Time, limit int) ([]*domain.CheckoutAttempt, error)
}

func checkTransition(from, to domain.CheckoutStatus) error {
	if from == to || domain.CanTransitionTo(from, to) {
		return nil
	}
	return IllegalTransitionError
}

// holdsKey reports whether an attempt in status still owns its idempotency
// key. Failed attempts give it up so the client can retry with it.
func holdsKey(status domain.CheckoutStatus) bool {
	switch status {
	case domain.CheckoutStatusAuthFailed, domain.CheckoutStatusStockFailed, domain.CheckoutStatusAbandoned:
		return false
	}
	return true
}
