package domain

import "github.com/fjod/go_cart/internal/money"

type AuthorizeRequest struct {
	OwnerID        string
	CouponCode     string
	PaymentMethod  string
	IdempotencyKey string
}

type AuthorizeResponse struct {
	AttemptID       string
	AuthorizationID string
	ClientSecret    string
	Amount          money.Money
	CartVersion     int64
	Status          CheckoutStatus
}

type FinalizeRequest struct {
	OwnerID         string
	AuthorizationID string
}
