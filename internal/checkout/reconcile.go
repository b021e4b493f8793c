package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/inventory"
)

// ReconcileReport counts what one sweep did.
type ReconcileReport struct {
	Released  int
	Repaired  int
	Expired   int
	Abandoned int
}

func (r ReconcileReport) Empty() bool {
	return r == ReconcileReport{}
}

// Reconcile releases reservations nobody will finish, completes
// finalizations that crashed after the order write and expires unused
// authorizations. A failure on one item is logged and the sweep moves on.
func (s *Service) Reconcile(ctx context.Context, now time.Time) (ReconcileReport, error) {
	var (
		report ReconcileReport
		errs   []error
	)
	reservationCutoff := now.Add(-s.reservationTimeout)
	authorizationCutoff := now.Add(-s.authorizationTTL)

	if err := s.sweepReservations(ctx, reservationCutoff, &report); err != nil {
		errs = append(errs, err)
	}
	if err := s.sweepReserving(ctx, reservationCutoff, &report); err != nil {
		errs = append(errs, err)
	}
	if err := s.sweepAuthorized(ctx, authorizationCutoff, &report); err != nil {
		errs = append(errs, err)
	}
	if err := s.sweepAuthorizing(ctx, authorizationCutoff, &report); err != nil {
		errs = append(errs, err)
	}

	s.recorder.Reconciled("released", report.Released)
	s.recorder.Reconciled("repaired", report.Repaired)
	s.recorder.Reconciled("expired", report.Expired)
	s.recorder.Reconciled("abandoned", report.Abandoned)
	if !report.Empty() {
		s.log.Info("reconcile sweep",
			zap.Int("released", report.Released),
			zap.Int("repaired", report.Repaired),
			zap.Int("expired", report.Expired),
			zap.Int("abandoned", report.Abandoned))
	}
	return report, errors.Join(errs...)
}

// sweepReservations looks at every reservation held past the timeout.
func (s *Service) sweepReservations(ctx context.Context, cutoff time.Time, report *ReconcileReport) error {
	stale, err := s.ledger.ListStale(ctx, cutoff, s.sweepLimit)
	if err != nil {
		return fmt.Errorf("list stale reservations: %w", err)
	}

	for _, res := range stale {
		log := s.log.With(zap.String("reservation_id", res.ID), zap.String("checkout_id", res.CheckoutID))

		a, err := s.attempts.GetByID(ctx, res.CheckoutID)
		if errors.Is(err, ErrAttemptNotFound) {
			if err := s.ledger.Release(ctx, res.ID); err != nil {
				log.Error("failed to release orphaned reservation", zap.Error(err))
				continue
			}
			report.Released++
			continue
		}
		if err != nil {
			log.Error("failed to load attempt for reservation", zap.Error(err))
			continue
		}

		existing, err := s.orderForAttempt(ctx, a)
		if err != nil {
			log.Error("failed to look up order for reservation", zap.Error(err))
			continue
		}
		if existing != nil {
			if a.ReservationID == "" {
				a.ReservationID = res.ID
			}
			if _, err := s.complete(ctx, a, existing); err != nil {
				log.Error("failed to complete finalization", zap.Error(err))
				continue
			}
			report.Repaired++
			continue
		}

		if a.Status != domain.CheckoutStatusReserving {
			// The attempt moved on without this reservation.
			if err := s.ledger.Release(ctx, res.ID); err != nil {
				log.Error("failed to release reservation", zap.Error(err))
				continue
			}
			report.Released++
			continue
		}

		if s.abandonStalled(ctx, a, res.ID, "reservation timed out") {
			report.Released++
			report.Abandoned++
		}
	}
	return nil
}

// sweepReserving handles attempts stuck in Reserving whose reservation is no
// longer held, or was never recorded.
func (s *Service) sweepReserving(ctx context.Context, cutoff time.Time, report *ReconcileReport) error {
	stuck, err := s.attempts.ListByStatus(ctx, domain.CheckoutStatusReserving, cutoff, s.sweepLimit)
	if err != nil {
		return fmt.Errorf("list reserving attempts: %w", err)
	}

	for _, a := range stuck {
		log := s.log.With(zap.String("attempt_id", a.ID))

		existing, err := s.orderForAttempt(ctx, a)
		if err != nil {
			log.Error("failed to look up order for attempt", zap.Error(err))
			continue
		}
		if existing != nil {
			if _, err := s.complete(ctx, a, existing); err != nil {
				log.Error("failed to complete finalization", zap.Error(err))
				continue
			}
			report.Repaired++
			continue
		}

		if a.ReservationID != "" {
			res, err := s.ledger.GetReservation(ctx, a.ReservationID)
			switch {
			case errors.Is(err, inventory.ErrReservationNotFound):
			case err != nil:
				log.Error("failed to load reservation", zap.Error(err))
				continue
			case res.Status == domain.StatusReserved:
				// Still held; released by sweepReservations once stale.
				continue
			case res.Status == domain.StatusCommitted:
				s.invariant(a, "commit_without_order", errors.New("reservation committed but no order exists"))
				continue
			}
		}

		if s.abandonStalled(ctx, a, "", "finalize stalled before reservation") {
			report.Abandoned++
		}
	}
	return nil
}

func (s *Service) sweepAuthorized(ctx context.Context, cutoff time.Time, report *ReconcileReport) error {
	expired, err := s.attempts.ListByStatus(ctx, domain.CheckoutStatusAuthorized, cutoff, s.sweepLimit)
	if err != nil {
		return fmt.Errorf("list authorized attempts: %w", err)
	}

	for _, a := range expired {
		if err := s.attempts.Transition(ctx, a.ID, domain.CheckoutStatusAuthorized, domain.CheckoutStatusAbandoned); err != nil {
			s.log.Debug("authorized attempt changed before expiry", zap.String("attempt_id", a.ID), zap.Error(err))
			continue
		}
		a.Status = domain.CheckoutStatusAbandoned
		a.AuthorizationStatus = domain.AuthorizationExpired
		a.FailureReason = "authorization expired"
		s.void(ctx, a, "authorization expired")
		s.persistClosed(ctx, a)
		report.Expired++
	}
	return nil
}

func (s *Service) sweepAuthorizing(ctx context.Context, cutoff time.Time, report *ReconcileReport) error {
	stuck, err := s.attempts.ListByStatus(ctx, domain.CheckoutStatusAuthorizing, cutoff, s.sweepLimit)
	if err != nil {
		return fmt.Errorf("list authorizing attempts: %w", err)
	}

	for _, a := range stuck {
		if err := s.attempts.Transition(ctx, a.ID, domain.CheckoutStatusAuthorizing, domain.CheckoutStatusAbandoned); err != nil {
			continue
		}
		a.Status = domain.CheckoutStatusAbandoned
		a.FailureReason = "authorization never completed"
		s.persistClosed(ctx, a)
		report.Abandoned++
	}
	return nil
}

// abandonStalled claims a Reserving attempt for the sweep before undoing its
// effects, so a finalizer that is still running cannot be undercut.
func (s *Service) abandonStalled(ctx context.Context, a *domain.CheckoutAttempt, reservationID, reason string) bool {
	if err := s.closeAttempt(ctx, a, domain.CheckoutStatusAbandoned, reason); err != nil {
		s.log.Debug("stalled attempt changed before sweep", zap.String("attempt_id", a.ID), zap.Error(err))
		return false
	}
	s.release(ctx, a, reservationID)
	return true
}
