package checkout

import (
	"context"

	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/domain"
)

// void cancels the attempt's authorization. Failures are logged; the sweep
// retries abandoned attempts whose authorization is still pending.
func (s *Service) void(ctx context.Context, a *domain.CheckoutAttempt, reason string) {
	if a.AuthorizationID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.gateway.Cancel(ctx, a.AuthorizationID); err != nil {
		s.log.Error("failed to void authorization",
			zap.String("attempt_id", a.ID),
			zap.String("authorization_id", a.AuthorizationID),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}
	if a.AuthorizationStatus != domain.AuthorizationExpired {
		a.AuthorizationStatus = domain.AuthorizationCanceled
	}
	s.recorder.Compensation("void")
}

// release returns reserved stock. A reservation that is already released is
// not an error.
func (s *Service) release(ctx context.Context, a *domain.CheckoutAttempt, reservationID string) {
	if reservationID == "" {
		return
	}
	if err := s.ledger.Release(context.WithoutCancel(ctx), reservationID); err != nil {
		s.log.Error("failed to release reservation",
			zap.String("attempt_id", a.ID),
			zap.String("reservation_id", reservationID),
			zap.Error(err))
		return
	}
	s.recorder.Compensation("release")
}

// closeAttempt claims the attempt for a terminal failure status and only then
// voids its authorization, so a finalizer that lost the race never voids a
// payment the winner is about to capture.
func (s *Service) closeAttempt(ctx context.Context, a *domain.CheckoutAttempt, to domain.CheckoutStatus, reason string) error {
	if err := s.attempts.Transition(ctx, a.ID, a.Status, to); err != nil {
		return err
	}
	a.Status = to
	a.FailureReason = reason
	s.void(ctx, a, reason)
	s.persistClosed(ctx, a)
	return nil
}

func (s *Service) persistClosed(ctx context.Context, a *domain.CheckoutAttempt) {
	if err := s.attempts.Update(context.WithoutCancel(ctx), a, a.Status); err != nil {
		s.log.Error("failed to record closed attempt", zap.String("attempt_id", a.ID), zap.Error(err))
	}
}

func (s *Service) invariant(a *domain.CheckoutAttempt, name string, err error) {
	s.log.Error("checkout invariant violated",
		zap.String("invariant", name),
		zap.String("attempt_id", a.ID),
		zap.String("order_id", a.OrderID),
		zap.String("reservation_id", a.ReservationID),
		zap.Error(err))
	s.recorder.Compensation("invariant_" + name)
}
