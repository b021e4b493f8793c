package payment

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/internal/money"
)

var (
	ErrGatewayUnavailable    = errors.New("payment gateway unavailable")
	ErrInvalidAmount         = errors.New("authorization amount must be positive")
	ErrAuthorizationNotFound = errors.New("authorization not found")
	ErrPaymentDeclined       = errors.New("payment declined")
)

type IntentStatus string

const (
	IntentRequiresConfirmation IntentStatus = "requires_confirmation"
	IntentSucceeded            IntentStatus = "succeeded"
	IntentDeclined             IntentStatus = "declined"
	IntentCanceled             IntentStatus = "canceled"
)

type AuthorizationRequest struct {
	Amount         money.Money
	PaymentMethod  string
	IdempotencyKey string
}

// Authorization is the processor's handle for a payment intent. ClientSecret
// is what the client uses to complete payment on its side.
type Authorization struct {
	ID           string
	ClientSecret string
	Amount       money.Money
	Status       IntentStatus
}

// Gateway is the narrow interface to the external payment processor.
type Gateway interface {
	CreateAuthorization(ctx context.Context, req AuthorizationRequest) (*Authorization, error)
	// ConfirmReceived reports whether the client completed payment. false with
	// a nil error means not yet; a definite refusal returns ErrPaymentDeclined
	// and the handle can never be confirmed. Repeated calls for one handle
	// return the same answer.
	ConfirmReceived(ctx context.Context, handle string) (bool, error)
	// Cancel voids the authorization. Canceling twice is a no-op.
	Cancel(ctx context.Context, handle string) error
}
