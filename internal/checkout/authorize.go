package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/cart"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/payment"
)

// Authorize snapshots the owner's cart and obtains a payment authorization for
// its discounted total. Replays with the same idempotency key, or a second
// authorize for an unchanged cart, return the existing authorization.
func (s *Service) Authorize(ctx context.Context, req domain.AuthorizeRequest) (*domain.AuthorizeResponse, error) {
	const op = "checkout.Authorize"
	log := s.log.With(zap.String("owner_id", req.OwnerID))

	if req.OwnerID == "" {
		return nil, newError(KindValidation, op, errors.New("owner id is required"))
	}

	// check attempt by idempotency key
	if req.IdempotencyKey != "" {
		existing, err := s.attempts.GetByIdempotencyKey(ctx, req.OwnerID, req.IdempotencyKey)
		if err != nil && !errors.Is(err, ErrAttemptNotFound) {
			return nil, translate(op, fmt.Errorf("failed to check idempotency: %w", err))
		}
		if existing != nil {
			if resp, err := s.replay(op, req, existing); resp != nil || err != nil {
				return resp, err
			}
		}
	}

	c, err := s.carts.Load(ctx, req.OwnerID)
	if errors.Is(err, cart.ErrCartNotFound) {
		return nil, newError(KindValidation, op, ErrCartEmpty)
	}
	if err != nil {
		return nil, translate(op, err)
	}
	if len(c.Lines) == 0 {
		return nil, newError(KindValidation, op, ErrCartEmpty)
	}
	if req.CouponCode != "" {
		if c, err = s.carts.ApplyCoupon(ctx, req.OwnerID, req.CouponCode); err != nil {
			return nil, translate(op, err)
		}
	}
	if c.ShippingAddress == nil {
		return nil, newError(KindValidation, op, ErrAddressRequired)
	}
	if c.TotalAfterDiscount.IsZero() {
		return nil, newError(KindValidation, op, ErrZeroTotal)
	}

	existing, err := s.attempts.FindAuthorized(ctx, req.OwnerID, c.ID, c.Version)
	if err != nil && !errors.Is(err, ErrAttemptNotFound) {
		return nil, translate(op, err)
	}
	if existing != nil && existing.Matches(c) {
		log.Debug("reusing authorization for unchanged cart", zap.String("attempt_id", existing.ID))
		s.recorder.Authorization("reused")
		return responseFor(existing), nil
	}

	attempt := &domain.CheckoutAttempt{
		ID:             uuid.NewString(),
		OwnerID:        req.OwnerID,
		CartID:         c.ID,
		CartVersion:    c.Version,
		Amount:         c.TotalAfterDiscount,
		CouponCode:     c.CouponCode,
		IdempotencyKey: req.IdempotencyKey,
		Status:         domain.CheckoutStatusAuthorizing,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// A concurrent request with the same key got there first.
			winner, gerr := s.attempts.GetByIdempotencyKey(ctx, req.OwnerID, req.IdempotencyKey)
			if gerr != nil {
				return nil, translate(op, gerr)
			}
			if resp, rerr := s.replay(op, req, winner); resp != nil || rerr != nil {
				return resp, rerr
			}
		}
		return nil, translate(op, err)
	}

	// The attempt id doubles as the processor idempotency key, so a retried
	// call for this attempt can never create a second intent.
	auth, err := s.gateway.CreateAuthorization(ctx, payment.AuthorizationRequest{
		Amount:         attempt.Amount,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: attempt.ID,
	})
	if err != nil {
		attempt.Status = domain.CheckoutStatusAuthFailed
		attempt.FailureReason = err.Error()
		if uerr := s.attempts.Update(ctx, attempt, domain.CheckoutStatusAuthorizing); uerr != nil {
			log.Error("failed to record authorization failure", zap.String("attempt_id", attempt.ID), zap.Error(uerr))
		}
		log.Warn("payment authorization failed", zap.String("attempt_id", attempt.ID), zap.Error(err))
		s.recorder.Authorization("failed")
		return nil, translate(op, err)
	}

	attempt.Status = domain.CheckoutStatusAuthorized
	attempt.AuthorizationID = auth.ID
	attempt.AuthorizationStatus = domain.AuthorizationPending
	attempt.ClientSecret = auth.ClientSecret
	if err := s.attempts.Update(ctx, attempt, domain.CheckoutStatusAuthorizing); err != nil {
		s.void(ctx, attempt, "authorize_persist_failed")
		return nil, translate(op, fmt.Errorf("failed to store authorization: %w", err))
	}

	log.Info("checkout authorized",
		zap.String("attempt_id", attempt.ID),
		zap.String("authorization_id", auth.ID),
		zap.Int64("amount", attempt.Amount.Amount),
		zap.Int64("cart_version", attempt.CartVersion))
	s.recorder.Authorization("authorized")
	return responseFor(attempt), nil
}

// replay answers a request whose idempotency key already belongs to attempt
// a. It returns nil, nil when a failed and the request should start over.
func (s *Service) replay(op string, req domain.AuthorizeRequest, a *domain.CheckoutAttempt) (*domain.AuthorizeResponse, error) {
	switch {
	case replayable(a.Status):
		s.log.Info("duplicate authorize request",
			zap.String("owner_id", req.OwnerID),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("attempt_id", a.ID),
			zap.String("status", a.Status.String()))
		s.recorder.Authorization("replayed")
		return responseFor(a), nil
	case holdsKey(a.Status):
		return nil, newError(KindConflict, op, ErrAuthorizeInProgress)
	}
	return nil, nil
}

// replayable reports whether an idempotent replay should return the attempt
// as is. Failed attempts are retried with a fresh authorization.
func replayable(status domain.CheckoutStatus) bool {
	switch status {
	case domain.CheckoutStatusAuthorized, domain.CheckoutStatusReserving, domain.CheckoutStatusFinalized:
		return true
	}
	return false
}

func responseFor(a *domain.CheckoutAttempt) *domain.AuthorizeResponse {
	return &domain.AuthorizeResponse{
		AttemptID:       a.ID,
		AuthorizationID: a.AuthorizationID,
		ClientSecret:    a.ClientSecret,
		Amount:          a.Amount,
		CartVersion:     a.CartVersion,
		Status:          a.Status,
	}
}
