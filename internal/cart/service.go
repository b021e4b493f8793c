package cart

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_cart/internal/domain"
)

const lockShards = 256

// CouponValidator resolves a coupon code to its discount percent.
type CouponValidator interface {
	Validate(ctx context.Context, code string) (decimal.Decimal, error)
}

// Service is the cart store. Mutations for one owner are serialized through a
// sharded lock table; unrelated owners only contend on a shared shard.
type Service struct {
	repo     Repository
	cache    Cache
	coupons  CouponValidator
	currency string
	now      func() time.Time
	onClamp  func()
	log      *zap.Logger

	locks [lockShards]sync.Mutex
	sfg   singleflight.Group // Prevents cache stampede
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithClampHook is called whenever a discount had to be clamped at zero.
func WithClampHook(fn func()) Option {
	return func(s *Service) { s.onClamp = fn }
}

func NewService(repo Repository, coupons CouponValidator, currency string, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		cache:    NoopCache{},
		coupons:  coupons,
		currency: currency,
		now:      time.Now,
		onClamp:  func() {},
		log:      log.Named("cart"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Currency() string {
	return s.currency
}

func (s *Service) lock(ownerID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ownerID))
	mu := &s.locks[h.Sum32()%lockShards]
	mu.Lock()
	return mu.Unlock
}

// GetCart reads through the cache. Misses are filled under the owner lock so
// a concurrent mutation cannot be overwritten by an older read.
func (s *Service) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	c, err := s.cache.Get(ctx, ownerID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.log.Warn("cache get error", zap.String("owner_id", ownerID), zap.Error(err))
	}

	v, err, _ := s.sfg.Do(ownerID, func() (interface{}, error) {
		unlock := s.lock(ownerID)
		defer unlock()

		c, err := s.repo.Get(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		s.writeCache(ctx, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart).Clone(), nil
}

// Load reads the authoritative copy, bypassing the cache.
func (s *Service) Load(ctx context.Context, ownerID string) (*domain.Cart, error) {
	return s.repo.Get(ctx, ownerID)
}

// UpsertCart replaces the owner's lines and drops any applied coupon. A nil
// address keeps the stored one.
func (s *Service) UpsertCart(ctx context.Context, ownerID string, lines []domain.CartLine, address *domain.Address) (*domain.Cart, error) {
	for _, line := range lines {
		if err := line.Validate(); err != nil {
			return nil, err
		}
	}
	if address != nil {
		addr := *address
		addr.Normalize()
		if err := addr.Validate(); err != nil {
			return nil, err
		}
		address = &addr
	}

	unlock := s.lock(ownerID)
	defer unlock()

	existing, err := s.repo.Get(ctx, ownerID)
	if err != nil && !errors.Is(err, ErrCartNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	c := existing
	if c == nil {
		c = &domain.Cart{
			ID:        uuid.NewString(),
			OwnerID:   ownerID,
			Currency:  s.currency,
			CreatedAt: now,
		}
	}
	c.Lines = append([]domain.CartLine(nil), lines...)
	c.CouponCode = ""
	c.DiscountPercent = ""
	if address != nil {
		c.ShippingAddress = address
	}

	if err := s.save(ctx, c, now); err != nil {
		return nil, err
	}
	s.log.Debug("cart replaced", zap.String("owner_id", ownerID), zap.Int("lines", len(lines)), zap.Int64("version", c.Version))
	return c.Clone(), nil
}

// ApplyCoupon recomputes the discount from the current subtotal. Applying the
// same coupon again leaves the cart and its version untouched.
func (s *Service) ApplyCoupon(ctx context.Context, ownerID, code string) (*domain.Cart, error) {
	percent, err := s.coupons.Validate(ctx, code)
	if err != nil {
		return nil, err
	}
	code = domain.NormalizeCode(code)

	unlock := s.lock(ownerID)
	defer unlock()

	c, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if c.CouponCode == code && c.DiscountPercent == percent.String() {
		return c, nil
	}

	c.CouponCode = code
	c.DiscountPercent = percent.String()
	if err := s.save(ctx, c, s.now().UTC()); err != nil {
		return nil, err
	}
	s.log.Debug("coupon applied", zap.String("owner_id", ownerID), zap.String("code", code), zap.Int64("version", c.Version))
	return c.Clone(), nil
}

func (s *Service) SetAddress(ctx context.Context, ownerID string, address domain.Address) (*domain.Cart, error) {
	address.Normalize()
	if err := address.Validate(); err != nil {
		return nil, err
	}

	unlock := s.lock(ownerID)
	defer unlock()

	c, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	c.ShippingAddress = &address
	if err := s.save(ctx, c, s.now().UTC()); err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// Clear removes the owner's cart. Clearing an absent cart is not an error.
func (s *Service) Clear(ctx context.Context, ownerID string) error {
	unlock := s.lock(ownerID)
	defer unlock()

	if err := s.repo.Delete(ctx, ownerID); err != nil && !errors.Is(err, ErrCartNotFound) {
		return err
	}
	s.invalidate(ctx, ownerID)
	return nil
}

// ClearIfCurrent removes the cart only if it is still the cart with cartID,
// so a cart the owner started after checkout survives.
func (s *Service) ClearIfCurrent(ctx context.Context, ownerID, cartID string) (bool, error) {
	unlock := s.lock(ownerID)
	defer unlock()

	deleted, err := s.repo.DeleteIfID(ctx, ownerID, cartID)
	if err != nil {
		return false, err
	}
	if deleted {
		s.invalidate(ctx, ownerID)
	}
	return deleted, nil
}

// save bumps the version, recomputes totals and writes through to the cache.
// Callers hold the owner lock.
func (s *Service) save(ctx context.Context, c *domain.Cart, now time.Time) error {
	clamped, err := c.Recompute()
	if err != nil {
		return fmt.Errorf("recompute cart: %w", err)
	}
	if clamped {
		s.onClamp()
		s.log.Warn("cart total clamped at zero", zap.String("owner_id", c.OwnerID), zap.String("coupon", c.CouponCode))
	}

	c.Version++
	c.UpdatedAt = now
	if err := s.repo.Save(ctx, c); err != nil {
		return err
	}
	s.writeCache(ctx, c)
	return nil
}

func (s *Service) writeCache(ctx context.Context, c *domain.Cart) {
	if err := s.cache.Set(ctx, c); err != nil {
		s.log.Warn("cache set error", zap.String("owner_id", c.OwnerID), zap.Error(err))
		s.invalidate(ctx, c.OwnerID)
	}
}

func (s *Service) invalidate(ctx context.Context, ownerID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, ownerID); err != nil {
		s.log.Warn("cache invalidate error", zap.String("owner_id", ownerID), zap.Error(err))
	}
}
