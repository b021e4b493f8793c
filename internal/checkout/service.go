package checkout

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/inventory"
	"github.com/fjod/go_cart/internal/orders"
	"github.com/fjod/go_cart/internal/payment"
)

const (
	DefaultReservationTimeout = 15 * time.Minute
	DefaultAuthorizationTTL   = 24 * time.Hour
	defaultSweepLimit         = 100
)

// Carts is the part of the cart store the orchestrator depends on.
type Carts interface {
	Load(ctx context.Context, ownerID string) (*domain.Cart, error)
	ApplyCoupon(ctx context.Context, ownerID, code string) (*domain.Cart, error)
	ClearIfCurrent(ctx context.Context, ownerID, cartID string) (bool, error)
}

// Recorder receives checkout outcomes, usually for metrics.
type Recorder interface {
	Authorization(result string)
	Finalization(result string)
	Compensation(action string)
	Reconciled(action string, n int)
}

type noopRecorder struct{}

func (noopRecorder) Authorization(string)   {}
func (noopRecorder) Finalization(string)    {}
func (noopRecorder) Compensation(string)    {}
func (noopRecorder) Reconciled(string, int) {}

// Service drives a checkout attempt through authorize and finalize and is the
// only place where lower-level errors are translated into caller outcomes.
type Service struct {
	attempts AttemptRepository
	carts    Carts
	ledger   inventory.Ledger
	gateway  payment.Gateway
	orders   orders.Repository
	recorder Recorder
	log      *zap.Logger
	now      func() time.Time

	reservationTimeout time.Duration
	authorizationTTL   time.Duration
	sweepLimit         int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithReservationTimeout sets how long a reservation may stay held before
// the sweep releases it.
func WithReservationTimeout(d time.Duration) Option {
	return func(s *Service) { s.reservationTimeout = d }
}

// WithAuthorizationTTL sets how long an unused authorization stays valid.
func WithAuthorizationTTL(d time.Duration) Option {
	return func(s *Service) { s.authorizationTTL = d }
}

func WithSweepLimit(n int) Option {
	return func(s *Service) { s.sweepLimit = n }
}

func NewService(
	attempts AttemptRepository,
	carts Carts,
	ledger inventory.Ledger,
	gateway payment.Gateway,
	orderRepo orders.Repository,
	log *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		attempts:           attempts,
		carts:              carts,
		ledger:             ledger,
		gateway:            gateway,
		orders:             orderRepo,
		recorder:           noopRecorder{},
		log:                log.Named("checkout"),
		now:                time.Now,
		reservationTimeout: DefaultReservationTimeout,
		authorizationTTL:   DefaultAuthorizationTTL,
		sweepLimit:         defaultSweepLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
