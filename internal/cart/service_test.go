package cart_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/cart"
	"github.com/fjod/go_cart/internal/coupon"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/money"
)

type stubCoupons map[string]decimal.Decimal

func (s stubCoupons) Validate(_ context.Context, code string) (decimal.Decimal, error) {
	p, ok := s[domain.NormalizeCode(code)]
	if !ok {
		return decimal.Zero, coupon.ErrCouponNotFound
	}
	return p, nil
}

func usd(amount int64) money.Money {
	return money.Money{Amount: amount, Currency: "USD"}
}

func validAddress() domain.Address {
	return domain.Address{
		Street:      "1 Main St",
		City:        "Springfield",
		State:       "IL",
		ZipCode:     "62701",
		Country:     "US",
		PhoneNumber: "555-123-4567",
	}
}

func newService(t *testing.T, opts ...cart.Option) *cart.Service {
	t.Helper()
	coupons := stubCoupons{
		"SAVE10": decimal.NewFromInt(10),
		"FREE":   decimal.NewFromInt(100),
	}
	return cart.NewService(cart.NewMemoryRepository(), coupons, "USD", zap.NewNop(), opts...)
}

func TestUpsertCart_NewCart(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	c, err := s.UpsertCart(ctx, "user-1", []domain.CartLine{
		{ProductID: "p1", UnitPrice: usd(1000), Quantity: 2},
	}, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, int64(1), c.Version)
	assert.Equal(t, usd(2000), c.Subtotal)
	assert.Equal(t, usd(2000), c.TotalAfterDiscount)
	assert.Nil(t, c.ShippingAddress)
}

func TestUpsertCart_ReplacesLinesAndDropsCoupon(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	addr := validAddress()

	first, err := s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p1", UnitPrice: usd(1000), Quantity: 2}}, &addr)
	require.NoError(t, err)
	_, err = s.ApplyCoupon(ctx, "user-1", "save10")
	require.NoError(t, err)

	second, err := s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p2", UnitPrice: usd(500), Quantity: 1}}, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(3), second.Version)
	assert.Len(t, second.Lines, 1)
	assert.Empty(t, second.CouponCode)
	assert.Equal(t, usd(500), second.TotalAfterDiscount)
	require.NotNil(t, second.ShippingAddress)
	assert.Equal(t, "Springfield", second.ShippingAddress.City)
}

func TestUpsertCart_RejectsInvalidInput(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p1", UnitPrice: usd(1000), Quantity: 0}}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidLine)

	bad := validAddress()
	bad.ZipCode = "abc"
	_, err = s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p1", UnitPrice: usd(1000), Quantity: 1}}, &bad)
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = s.GetCart(ctx, "user-1")
	assert.ErrorIs(t, err, cart.ErrCartNotFound)
}

func TestApplyCoupon_ComputesDiscount(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p1", UnitPrice: usd(1000), Quantity: 2}}, nil)
	require.NoError(t, err)

	c, err := s.ApplyCoupon(ctx, "user-1", "save10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", c.CouponCode)
	assert.Equal(t, usd(2000), c.Subtotal)
	assert.Equal(t, usd(200), c.Discount)
	assert.Equal(t, usd(1800), c.TotalAfterDiscount)
	assert.Equal(t, int64(2), c.Version)
}

func TestApplyCoupon_TwiceIsIdempotent(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p1", UnitPrice: usd(999), Quantity: 3}}, nil)
	require.NoError(t, err)

	once, err := s.ApplyCoupon(ctx, "user-1", "SAVE10")
	require.NoError(t, err)
	twice, err := s.ApplyCoupon(ctx, "user-1", "save10")
	require.NoError(t, err)

	assert.Equal(t, once.TotalAfterDiscount, twice.TotalAfterDiscount)
	assert.Equal(t, once.Version, twice.Version)
}

func TestApplyCoupon_Errors(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.ApplyCoupon(ctx, "user-1", "SAVE10")
	assert.ErrorIs(t, err, cart.ErrCartNotFound)

	_, err = s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p1", UnitPrice: usd(1000), Quantity: 1}}, nil)
	require.NoError(t, err)
	_, err = s.ApplyCoupon(ctx, "user-1", "BOGUS")
	assert.ErrorIs(t, err, coupon.ErrCouponNotFound)
}

func TestApplyCoupon_FullDiscountReachesZeroWithoutClamp(t *testing.T) {
	var clamps int
	s := newService(t, cart.WithClampHook(func() { clamps++ }))
	ctx := context.Background()

	_, err := s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p1", UnitPrice: usd(1000), Quantity: 1}}, nil)
	require.NoError(t, err)
	c, err := s.ApplyCoupon(ctx, "user-1", "FREE")
	require.NoError(t, err)

	assert.True(t, c.TotalAfterDiscount.IsZero())
	assert.Equal(t, 0, clamps)
}

func TestSetAddress(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.SetAddress(ctx, "user-1", validAddress())
	assert.ErrorIs(t, err, cart.ErrCartNotFound)

	_, err = s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p1", UnitPrice: usd(1000), Quantity: 1}}, nil)
	require.NoError(t, err)

	addr := validAddress()
	addr.City = "  Chicago "
	c, err := s.SetAddress(ctx, "user-1", addr)
	require.NoError(t, err)
	assert.Equal(t, "Chicago", c.ShippingAddress.City)
	assert.Equal(t, int64(2), c.Version)
}

func TestClear_Idempotent(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	require.NoError(t, s.Clear(ctx, "nobody"))

	_, err := s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p1", UnitPrice: usd(1000), Quantity: 1}}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx, "user-1"))
	require.NoError(t, s.Clear(ctx, "user-1"))

	_, err = s.GetCart(ctx, "user-1")
	assert.ErrorIs(t, err, cart.ErrCartNotFound)
}

func TestClearIfCurrent(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	old, err := s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p1", UnitPrice: usd(1000), Quantity: 1}}, nil)
	require.NoError(t, err)

	deleted, err := s.ClearIfCurrent(ctx, "user-1", "other-cart")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = s.ClearIfCurrent(ctx, "user-1", old.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	fresh, err := s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p1", UnitPrice: usd(1000), Quantity: 1}}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Equal(t, int64(1), fresh.Version)
}

func TestConcurrentMutations_SerializedPerOwner(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p1", UnitPrice: usd(1000), Quantity: 1}}, nil)
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.UpsertCart(ctx, "user-1", []domain.CartLine{
				{ProductID: fmt.Sprintf("p%d", i), UnitPrice: usd(100), Quantity: int64(i + 1)},
			}, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	c, err := s.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(writers+1), c.Version)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, usd(100*c.Lines[0].Quantity), c.Subtotal)
}

func TestGetCart_WritesThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := cart.NewMemoryRepository()
	s := cart.NewService(repo, stubCoupons{}, "USD", zap.NewNop(), cart.WithCache(cart.NewRedisCache(client)))
	ctx := context.Background()

	c, err := s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p1", UnitPrice: usd(1000), Quantity: 1}}, nil)
	require.NoError(t, err)
	assert.True(t, mr.Exists("cart:user-1"))

	got, err := s.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.Version, got.Version)

	require.NoError(t, s.Clear(ctx, "user-1"))
	assert.False(t, mr.Exists("cart:user-1"))
}

func TestGetCart_FallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	s := cart.NewService(cart.NewMemoryRepository(), stubCoupons{}, "USD", zap.NewNop(), cart.WithCache(cart.NewRedisCache(client)))
	ctx := context.Background()

	mr.Close()
	c, err := s.UpsertCart(ctx, "user-1", []domain.CartLine{{ProductID: "p1", UnitPrice: usd(1000), Quantity: 1}}, nil)
	require.NoError(t, err)

	got, err := s.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}
