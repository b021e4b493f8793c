package domain

type CheckoutStatus string

const (
	CheckoutStatusDraft       CheckoutStatus = "DRAFT"
	CheckoutStatusAuthorizing CheckoutStatus = "AUTHORIZING"
	CheckoutStatusAuthorized  CheckoutStatus = "AUTHORIZED"
	CheckoutStatusReserving   CheckoutStatus = "RESERVING"
	CheckoutStatusFinalized   CheckoutStatus = "FINALIZED"
	CheckoutStatusAuthFailed  CheckoutStatus = "AUTH_FAILED"
	CheckoutStatusStockFailed CheckoutStatus = "STOCK_FAILED"
	CheckoutStatusAbandoned   CheckoutStatus = "ABANDONED"
)

var checkoutTransitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusDraft:       {CheckoutStatusAuthorizing},
	CheckoutStatusAuthorizing: {CheckoutStatusAuthorized, CheckoutStatusAuthFailed, CheckoutStatusAbandoned},
	CheckoutStatusAuthorized:  {CheckoutStatusReserving, CheckoutStatusAbandoned},
	// Reserving falls back to Authorized when payment is not confirmed yet,
	// and fails the authorization when the payment was declined.
	CheckoutStatusReserving: {CheckoutStatusFinalized, CheckoutStatusStockFailed, CheckoutStatusAuthorized, CheckoutStatusAuthFailed, CheckoutStatusAbandoned},
}

// CanTransitionTo reports whether the state machine allows from -> to.
func CanTransitionTo(from, to CheckoutStatus) bool {
	for _, allowed := range checkoutTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s CheckoutStatus) IsTerminal() bool {
	switch s {
	case CheckoutStatusFinalized, CheckoutStatusAuthFailed, CheckoutStatusStockFailed, CheckoutStatusAbandoned:
		return true
	}
	return false
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}

// AuthorizationStatus tracks the payment authorization bound to an attempt.
type AuthorizationStatus string

const (
	AuthorizationPending   AuthorizationStatus = "PENDING"
	AuthorizationConfirmed AuthorizationStatus = "CONFIRMED"
	AuthorizationCanceled  AuthorizationStatus = "CANCELED"
	AuthorizationExpired   AuthorizationStatus = "EXPIRED"
)
