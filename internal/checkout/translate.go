package checkout

import (
	"errors"

	"github.com/fjod/go_cart/internal/cart"
	"github.com/fjod/go_cart/internal/coupon"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/inventory"
	"github.com/fjod/go_cart/internal/money"
	"github.com/fjod/go_cart/internal/orders"
	"github.com/fjod/go_cart/internal/payment"
)

// translate wraps err with the Kind the caller should see. Errors that are
// already classified pass through unchanged.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return newError(classify(err), op, err)
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, ErrCartEmpty),
		errors.Is(err, ErrAddressRequired),
		errors.Is(err, ErrZeroTotal),
		errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, coupon.ErrCouponNotFound),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidLine),
		errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, money.ErrOverflow),
		errors.Is(err, payment.ErrInvalidAmount):
		return KindValidation
	case errors.Is(err, ErrAttemptNotFound),
		errors.Is(err, orders.ErrOrderNotFound):
		return KindNotFound
	case errors.Is(err, ErrStaleAuthorization),
		errors.Is(err, ErrFinalizeInProgress),
		errors.Is(err, ErrAttemptClosed),
		errors.Is(err, ErrNotAuthorized),
		errors.Is(err, ErrPaymentNotConfirmed),
		errors.Is(err, payment.ErrPaymentDeclined),
		errors.Is(err, ErrStatusConflict),
		errors.Is(err, ErrAuthorizeInProgress),
		errors.Is(err, ErrDuplicateKey),
		errors.Is(err, orders.ErrDuplicateOrder):
		return KindConflict
	case errors.Is(err, inventory.ErrInsufficientStock):
		return KindResourceExhaustion
	case errors.Is(err, IllegalTransitionError),
		errors.Is(err, inventory.ErrInvalidStatus):
		return KindInvariantViolation
	default:
		return KindDependencyFailure
	}
}
