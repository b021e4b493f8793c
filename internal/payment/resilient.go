package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ResilienceConfig struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	MaxFailures   uint32
	OpenTimeout   time.Duration
}

func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		Timeout:       5 * time.Second,
		RatePerSecond: 50,
		Burst:         10,
		MaxFailures:   5,
		OpenTimeout:   30 * time.Second,
	}
}

// Resilient guards a Gateway with a rate limiter, a per-call timeout and a
// circuit breaker. Transport failures surface as ErrGatewayUnavailable.
type Resilient struct {
	next    Gateway
	cb      *gobreaker.CircuitBreaker[any]
	limiter *rate.Limiter
	timeout time.Duration
	log     *zap.Logger
}

func NewResilient(next Gateway, cfg ResilienceConfig, log *zap.Logger) *Resilient {
	log = log.Named("payment-gateway")
	settings := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Caller mistakes and declines say nothing about the processor's health.
			return err == nil || isDefinite(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Resilient{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker[any](settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		timeout: cfg.Timeout,
		log:     log,
	}
}

func (r *Resilient) CreateAuthorization(ctx context.Context, req AuthorizationRequest) (*Authorization, error) {
	if req.Amount.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return call(ctx, r, "create_authorization", func(ctx context.Context) (*Authorization, error) {
		return r.next.CreateAuthorization(ctx, req)
	})
}

func (r *Resilient) ConfirmReceived(ctx context.Context, handle string) (bool, error) {
	return call(ctx, r, "confirm_received", func(ctx context.Context) (bool, error) {
		return r.next.ConfirmReceived(ctx, handle)
	})
}

func (r *Resilient) Cancel(ctx context.Context, handle string) error {
	_, err := call(ctx, r, "cancel", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.Cancel(ctx, handle)
	})
	return err
}

func call[T any](ctx context.Context, r *Resilient, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := r.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("%w: %s rate limited: %v", ErrGatewayUnavailable, op, err)
	}

	res, err := r.cb.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return fn(callCtx)
	})
	if err != nil {
		switch {
		case isDefinite(err), errors.Is(err, ErrGatewayUnavailable):
			return zero, err
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return zero, fmt.Errorf("%w: %s: circuit open", ErrGatewayUnavailable, op)
		default:
			r.log.Warn("gateway call failed", zap.String("op", op), zap.Error(err))
			return zero, fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, op, err)
		}
	}
	return res.(T), nil
}

// isDefinite reports whether err is an answer from the processor rather than a
// failure to reach it.
func isDefinite(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAuthorizationNotFound) ||
		errors.Is(err, ErrPaymentDeclined)
}
