package domain

import (
	"time"

	"github.com/fjod/go_cart/internal/money"
)

// CheckoutAttempt is the persisted state of one checkout: the cart snapshot the
// payment authorization was computed against plus the progress made so far.
type CheckoutAttempt struct {
	ID                  string
	OwnerID             string
	CartID              string
	CartVersion         int64
	Amount              money.Money
	CouponCode          string
	IdempotencyKey      string
	Status              CheckoutStatus
	AuthorizationID     string
	AuthorizationStatus AuthorizationStatus
	ClientSecret        string
	ReservationID       string
	OrderID             string
	FailureReason       string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Matches reports whether the attempt was authorized against this exact cart state.
func (a *CheckoutAttempt) Matches(cart *Cart) bool {
	return cart != nil &&
		a.CartID == cart.ID &&
		a.CartVersion == cart.Version &&
		a.Amount == cart.TotalAfterDiscount
}
