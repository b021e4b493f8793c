package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to CheckoutStatus
		allowed  bool
	}{
		{CheckoutStatusDraft, CheckoutStatusAuthorizing, true},
		{CheckoutStatusAuthorizing, CheckoutStatusAuthorized, true},
		{CheckoutStatusAuthorizing, CheckoutStatusAuthFailed, true},
		{CheckoutStatusAuthorized, CheckoutStatusReserving, true},
		{CheckoutStatusReserving, CheckoutStatusFinalized, true},
		{CheckoutStatusReserving, CheckoutStatusStockFailed, true},
		{CheckoutStatusReserving, CheckoutStatusAuthorized, true},
		{CheckoutStatusReserving, CheckoutStatusAuthFailed, true},
		{CheckoutStatusAuthorized, CheckoutStatusAuthFailed, false},
		{CheckoutStatusAuthorized, CheckoutStatusFinalized, false},
		{CheckoutStatusFinalized, CheckoutStatusReserving, false},
		{CheckoutStatusStockFailed, CheckoutStatusAuthorized, false},
		{CheckoutStatusAbandoned, CheckoutStatusAuthorized, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, CanTransitionTo(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCheckoutStatus_IsTerminal(t *testing.T) {
	for _, s := range []CheckoutStatus{CheckoutStatusFinalized, CheckoutStatusAuthFailed, CheckoutStatusStockFailed, CheckoutStatusAbandoned} {
		assert.True(t, s.IsTerminal(), s.String())
	}
	for _, s := range []CheckoutStatus{CheckoutStatusDraft, CheckoutStatusAuthorizing, CheckoutStatusAuthorized, CheckoutStatusReserving} {
		assert.False(t, s.IsTerminal(), s.String())
	}
}

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, OrderStatusCreated.CanTransitionTo(OrderStatusProcessing))
	assert.True(t, OrderStatusCreated.CanTransitionTo(OrderStatusCancelled))
	assert.True(t, OrderStatusProcessing.CanTransitionTo(OrderStatusDispatched))
	assert.True(t, OrderStatusDispatched.CanTransitionTo(OrderStatusCompleted))
	assert.False(t, OrderStatusDispatched.CanTransitionTo(OrderStatusCancelled))
	assert.False(t, OrderStatusCompleted.CanTransitionTo(OrderStatusCreated))
	assert.False(t, OrderStatusCancelled.CanTransitionTo(OrderStatusProcessing))

	assert.True(t, OrderStatusCompleted.Valid())
	assert.False(t, OrderStatus("NOT_PROCESSED").Valid())
}

func TestAggregateItems(t *testing.T) {
	got := AggregateItems([]ReservationItem{
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 3},
		{ProductID: "c", Quantity: 0},
	})
	assert.Equal(t, []ReservationItem{{ProductID: "b", Quantity: 4}, {ProductID: "a", Quantity: 2}}, got)
}

func TestCouponHelpers(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizeCode("  save10 "))
}
