package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fjod/go_cart/internal/cart"
	"github.com/fjod/go_cart/internal/catalog"
	"github.com/fjod/go_cart/internal/checkout"
	"github.com/fjod/go_cart/internal/coupon"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/inventory"
	"github.com/fjod/go_cart/internal/money"
	"github.com/fjod/go_cart/internal/orders"
	"github.com/fjod/go_cart/internal/payment"
)

// StatusFromError converts a domain error into a gRPC status. Orchestrator
// errors map by Kind; everything else by sentinel. Unrecognized errors and
// orchestrator failures of our own making become Internal or Unavailable
// without leaking their text.
func StatusFromError(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	if st, ok := status.FromError(err); ok {
		return st
	}

	var checkoutErr *checkout.Error
	if errors.As(err, &checkoutErr) {
		code := codeForKind(checkoutErr.Kind)
		switch checkoutErr.Kind {
		case checkout.KindDependencyFailure:
			return status.New(code, "service temporarily unavailable")
		case checkout.KindInvariantViolation, checkout.KindUnknown:
			return status.New(code, "internal error")
		}
		return status.New(code, err.Error())
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, "request canceled")

	case errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, coupon.ErrCouponNotFound),
		errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, inventory.ErrReservationNotFound):
		return status.New(codes.NotFound, err.Error())

	case errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrCurrencyNotSupported),
		errors.Is(err, domain.ErrInvalidLine),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrNoItems),
		errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, money.ErrNegativeAmount),
		errors.Is(err, money.ErrInvalidPercent),
		errors.Is(err, money.ErrInvalidQuantity),
		errors.Is(err, money.ErrOverflow),
		errors.Is(err, payment.ErrInvalidAmount):
		return status.New(codes.InvalidArgument, err.Error())

	case errors.Is(err, coupon.ErrDuplicateCoupon),
		errors.Is(err, orders.ErrDuplicateOrder):
		return status.New(codes.AlreadyExists, err.Error())

	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, inventory.ErrInvalidStatus),
		errors.Is(err, payment.ErrPaymentDeclined):
		return status.New(codes.FailedPrecondition, err.Error())

	case errors.Is(err, payment.ErrGatewayUnavailable):
		return status.New(codes.Unavailable, "payment gateway unavailable")
	}
	return status.New(codes.Internal, "internal error")
}

func codeForKind(kind checkout.Kind) codes.Code {
	switch kind {
	case checkout.KindValidation:
		return codes.InvalidArgument
	case checkout.KindNotFound:
		return codes.NotFound
	case checkout.KindConflict:
		return codes.Aborted
	case checkout.KindResourceExhaustion:
		return codes.FailedPrecondition
	case checkout.KindDependencyFailure:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
