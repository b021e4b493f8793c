package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/domain"
)

const (
	minCodeLength = 3
	maxCodeLength = 12

	defaultCacheSize = 1024
	defaultCacheTTL  = time.Minute
)

var hundred = decimal.NewFromInt(100)

// Validator resolves coupon codes to discount percentages. Lookups are cached;
// expiry is always evaluated against the clock at validation time.
type Validator struct {
	repo  Repository
	cache *expirable.LRU[string, domain.Coupon]
	now   func() time.Time
	log   *zap.Logger
}

type Option func(*Validator)

// WithClock overrides the validation clock.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithCache sizes the lookup cache. A zero ttl disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(v *Validator) {
		if ttl <= 0 || size <= 0 {
			v.cache = nil
			return
		}
		v.cache = expirable.NewLRU[string, domain.Coupon](size, nil, ttl)
	}
}

func NewValidator(repo Repository, log *zap.Logger, opts ...Option) *Validator {
	v := &Validator{
		repo:  repo,
		cache: expirable.NewLRU[string, domain.Coupon](defaultCacheSize, nil, defaultCacheTTL),
		now:   time.Now,
		log:   log.Named("coupon"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns the discount percent for code.
func (v *Validator) Validate(ctx context.Context, code string) (decimal.Decimal, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return decimal.Zero, ErrCouponNotFound
	}

	c, err := v.lookup(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	if c.IsExpiredAt(v.now()) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrCouponExpired, code)
	}
	return c.DiscountPercent, nil
}

func (v *Validator) lookup(ctx context.Context, code string) (domain.Coupon, error) {
	if v.cache != nil {
		if c, ok := v.cache.Get(code); ok {
			return c, nil
		}
	}

	c, err := v.repo.Get(ctx, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	if v.cache != nil {
		v.cache.Add(code, *c)
	}
	return *c, nil
}

// Create issues a new coupon.
func (v *Validator) Create(ctx context.Context, code string, percent decimal.Decimal, expiresAt time.Time) (*domain.Coupon, error) {
	code = domain.NormalizeCode(code)
	if len(code) < minCodeLength || len(code) > maxCodeLength {
		return nil, fmt.Errorf("%w: code must be %d to %d characters", ErrInvalidCoupon, minCodeLength, maxCodeLength)
	}
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return nil, fmt.Errorf("%w: discount must be between 0 and 100", ErrInvalidCoupon)
	}
	if !percent.Equal(percent.Round(2)) {
		return nil, fmt.Errorf("%w: discount allows at most two decimal places", ErrInvalidCoupon)
	}
	now := v.now()
	if !expiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiry must be in the future", ErrInvalidCoupon)
	}

	c := &domain.Coupon{
		Code:            code,
		DiscountPercent: percent,
		ExpiresAt:       expiresAt.UTC(),
		CreatedAt:       now.UTC(),
	}
	if err := v.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	v.log.Info("coupon created", zap.String("code", code), zap.String("discount_percent", percent.String()))
	return c, nil
}

func (v *Validator) Delete(ctx context.Context, code string) error {
	code = domain.NormalizeCode(code)
	if err := v.repo.Delete(ctx, code); err != nil {
		return err
	}
	if v.cache != nil {
		v.cache.Remove(code)
	}
	v.log.Info("coupon deleted", zap.String("code", code))
	return nil
}

func (v *Validator) List(ctx context.Context) ([]*domain.Coupon, error) {
	return v.repo.List(ctx)
}
