package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/cart"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/inventory"
	"github.com/fjod/go_cart/internal/orders"
	"github.com/fjod/go_cart/internal/payment"
)

// Finalize turns an authorized checkout into an order. It is idempotent per
// authorization: once finalized, every further call returns the same order
// without touching inventory again.
func (s *Service) Finalize(ctx context.Context, req domain.FinalizeRequest) (*domain.Order, error) {
	const op = "checkout.Finalize"

	a, err := s.attempts.GetByAuthorizationID(ctx, req.AuthorizationID)
	if err != nil {
		return nil, translate(op, err)
	}
	if a.OwnerID != req.OwnerID {
		return nil, newError(KindNotFound, op, ErrAttemptNotFound)
	}
	return s.finalize(ctx, op, a)
}

// FinalizeByAuthorization serves payment webhooks, where the owner is only
// known through the attempt that holds the authorization.
func (s *Service) FinalizeByAuthorization(ctx context.Context, authorizationID string) (*domain.Order, error) {
	const op = "checkout.FinalizeByAuthorization"

	a, err := s.attempts.GetByAuthorizationID(ctx, authorizationID)
	if err != nil {
		return nil, translate(op, err)
	}
	return s.finalize(ctx, op, a)
}

func (s *Service) finalize(ctx context.Context, op string, a *domain.CheckoutAttempt) (*domain.Order, error) {
	order, err := s.runFinalize(ctx, a)
	if err != nil {
		s.recorder.Finalization(KindOf(translate(op, err)).String())
		return nil, translate(op, err)
	}
	s.recorder.Finalization("finalized")
	return order, nil
}

func (s *Service) runFinalize(ctx context.Context, a *domain.CheckoutAttempt) (*domain.Order, error) {
	log := s.log.With(zap.String("attempt_id", a.ID), zap.String("authorization_id", a.AuthorizationID))

	switch a.Status {
	case domain.CheckoutStatusFinalized:
		log.Debug("finalize replay")
		return s.orders.GetByID(ctx, a.OrderID)
	case domain.CheckoutStatusAbandoned, domain.CheckoutStatusStockFailed, domain.CheckoutStatusAuthFailed:
		// A losing duplicate still sees the order its cart produced.
		if existing, err := s.orders.GetByCartID(ctx, a.CartID); err == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrAttemptClosed, a.Status)
	case domain.CheckoutStatusReserving:
		existing, err := s.orderForAttempt(ctx, a)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.complete(ctx, a, existing)
		}
		return nil, ErrFinalizeInProgress
	case domain.CheckoutStatusAuthorized:
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotAuthorized, a.Status)
	}

	existing, err := s.orders.GetByCartID(ctx, a.CartID)
	switch {
	case err == nil && existing.PaymentAuthorizationID == a.AuthorizationID:
		return s.complete(ctx, a, existing)
	case err == nil:
		log.Info("cart already ordered by another authorization", zap.String("order_id", existing.ID))
		if err := s.closeAttempt(ctx, a, domain.CheckoutStatusAbandoned, "duplicate authorization"); errors.Is(err, ErrStatusConflict) {
			return s.afterLostRace(ctx, a.ID)
		}
		return existing, nil
	case !errors.Is(err, orders.ErrOrderNotFound):
		return nil, err
	}

	c, err := s.carts.Load(ctx, a.OwnerID)
	if err != nil && !errors.Is(err, cart.ErrCartNotFound) {
		return nil, err
	}
	if !a.Matches(c) {
		log.Info("stale authorization, cart changed since authorize", zap.Int64("authorized_version", a.CartVersion))
		if err := s.closeAttempt(ctx, a, domain.CheckoutStatusAbandoned, ErrStaleAuthorization.Error()); errors.Is(err, ErrStatusConflict) {
			return s.afterLostRace(ctx, a.ID)
		}
		return nil, ErrStaleAuthorization
	}

	// Only one finalizer per authorization gets past this point.
	if err := s.attempts.Transition(ctx, a.ID, domain.CheckoutStatusAuthorized, domain.CheckoutStatusReserving); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return s.afterLostRace(ctx, a.ID)
		}
		return nil, err
	}
	a.Status = domain.CheckoutStatusReserving

	reservation, err := s.ledger.Reserve(ctx, a.ID, reservationItems(c.Lines))
	if err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			log.Info("insufficient stock, voiding authorization", zap.Error(err))
			if cerr := s.closeAttempt(ctx, a, domain.CheckoutStatusStockFailed, err.Error()); cerr != nil {
				log.Error("failed to close attempt after stock failure", zap.Error(cerr))
			}
			return nil, err
		}
		s.revert(ctx, a)
		return nil, fmt.Errorf("failed to reserve inventory: %w", err)
	}
	a.ReservationID = reservation.ID
	if err := s.attempts.Update(ctx, a, domain.CheckoutStatusReserving); err != nil {
		s.release(ctx, a, reservation.ID)
		a.ReservationID = ""
		s.revert(ctx, a)
		return nil, fmt.Errorf("failed to record reservation: %w", err)
	}

	confirmed, err := s.gateway.ConfirmReceived(ctx, a.AuthorizationID)
	if errors.Is(err, payment.ErrPaymentDeclined) {
		// The handle can never be confirmed; close it so re-authorize starts a new intent.
		log.Info("payment declined, voiding authorization", zap.Error(err))
		if cerr := s.closeAttempt(ctx, a, domain.CheckoutStatusAuthFailed, err.Error()); cerr != nil {
			log.Error("failed to close attempt after decline", zap.Error(cerr))
		}
		s.release(ctx, a, reservation.ID)
		return nil, err
	}
	if err != nil || !confirmed {
		s.release(ctx, a, reservation.ID)
		a.ReservationID = ""
		s.revert(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("failed to confirm payment: %w", err)
		}
		return nil, ErrPaymentNotConfirmed
	}
	a.AuthorizationStatus = domain.AuthorizationConfirmed

	order := newOrder(a, c, s.now().UTC())
	if err := s.orders.Create(ctx, order); err != nil {
		if errors.Is(err, orders.ErrDuplicateOrder) {
			s.release(ctx, a, reservation.ID)
			a.ReservationID = ""
			if cerr := s.closeAttempt(ctx, a, domain.CheckoutStatusAbandoned, "duplicate authorization"); cerr != nil {
				log.Error("failed to close duplicate attempt", zap.Error(cerr))
			}
			return s.orders.GetByCartID(ctx, a.CartID)
		}
		// The write may or may not have landed. The reservation stays held
		// and the sweep either completes or releases it.
		log.Error("order write failed, leaving attempt for the sweep", zap.Error(err))
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	return s.complete(ctx, a, order)
}

// complete runs the effects that follow the order write: commit the stock,
// clear the cart and mark the attempt finalized. Each step is safe to repeat.
func (s *Service) complete(ctx context.Context, a *domain.CheckoutAttempt, order *domain.Order) (*domain.Order, error) {
	ctx = context.WithoutCancel(ctx)
	log := s.log.With(zap.String("attempt_id", a.ID), zap.String("order_id", order.ID))

	if a.Status == domain.CheckoutStatusAuthorized {
		if err := s.attempts.Transition(ctx, a.ID, domain.CheckoutStatusAuthorized, domain.CheckoutStatusReserving); err != nil {
			return s.afterLostRace(ctx, a.ID)
		}
		a.Status = domain.CheckoutStatusReserving
	}
	a.OrderID = order.ID
	if a.ReservationID == "" {
		// Our copy may predate the reservation being recorded.
		if fresh, err := s.attempts.GetByID(ctx, a.ID); err == nil {
			a.ReservationID = fresh.ReservationID
		}
	}

	if a.ReservationID == "" {
		s.invariant(a, "order_without_reservation", errors.New("no reservation recorded for finalized order"))
	} else if err := s.ledger.Commit(ctx, a.ReservationID); err != nil {
		// The order is durable; a reservation left behind is picked up by the sweep.
		s.invariant(a, "reservation_commit", err)
	}

	if cleared, err := s.carts.ClearIfCurrent(ctx, a.OwnerID, a.CartID); err != nil {
		log.Warn("failed to clear cart after order", zap.Error(err))
	} else if !cleared {
		log.Debug("cart already replaced, left untouched")
	}

	a.Status = domain.CheckoutStatusFinalized
	a.AuthorizationStatus = domain.AuthorizationConfirmed
	a.FailureReason = ""
	if err := s.attempts.Update(ctx, a, domain.CheckoutStatusReserving); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			log.Debug("attempt finalized concurrently")
			return order, nil
		}
		log.Error("failed to mark attempt finalized", zap.Error(err))
		return order, nil
	}

	log.Info("checkout finalized", zap.Int64("total", order.Total.Amount))
	return order, nil
}

// revert hands a Reserving attempt back to Authorized so the client can retry.
func (s *Service) revert(ctx context.Context, a *domain.CheckoutAttempt) {
	a.Status = domain.CheckoutStatusAuthorized
	if err := s.attempts.Update(context.WithoutCancel(ctx), a, domain.CheckoutStatusReserving); err != nil {
		s.log.Error("failed to revert attempt to authorized", zap.String("attempt_id", a.ID), zap.Error(err))
	}
}

// afterLostRace is what a finalizer sees when another one won the
// Authorized -> Reserving compare-and-set.
func (s *Service) afterLostRace(ctx context.Context, attemptID string) (*domain.Order, error) {
	current, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.CheckoutStatusFinalized {
		return s.orders.GetByID(ctx, current.OrderID)
	}
	return nil, ErrFinalizeInProgress
}

// orderForAttempt returns the order written for this attempt's authorization,
// or nil if there is none yet.
func (s *Service) orderForAttempt(ctx context.Context, a *domain.CheckoutAttempt) (*domain.Order, error) {
	existing, err := s.orders.GetByCartID(ctx, a.CartID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.PaymentAuthorizationID != a.AuthorizationID {
		return nil, nil
	}
	return existing, nil
}

func reservationItems(lines []domain.CartLine) []domain.ReservationItem {
	items := make([]domain.ReservationItem, len(lines))
	for i, l := range lines {
		items[i] = domain.ReservationItem{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return items
}

func newOrder(a *domain.CheckoutAttempt, c *domain.Cart, now time.Time) *domain.Order {
	var address *domain.Address
	if c.ShippingAddress != nil {
		addr := *c.ShippingAddress
		address = &addr
	}
	return &domain.Order{
		ID:                     uuid.NewString(),
		CartID:                 c.ID,
		OwnerID:                a.OwnerID,
		PaymentAuthorizationID: a.AuthorizationID,
		Lines:                  domain.OrderLinesFromCart(c.Lines),
		Subtotal:               c.Subtotal,
		Discount:               c.Discount,
		Total:                  c.TotalAfterDiscount,
		CouponCode:             c.CouponCode,
		ShippingAddress:        address,
		Status:                 domain.OrderStatusCreated,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}
