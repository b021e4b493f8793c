package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/cart"
	"github.com/fjod/go_cart/internal/checkout"
	"github.com/fjod/go_cart/internal/coupon"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/inventory"
	"github.com/fjod/go_cart/internal/money"
	"github.com/fjod/go_cart/internal/orders"
	"github.com/fjod/go_cart/internal/payment"
)

type checkoutTestContext struct {
	coupons *coupon.Validator
	carts   *cart.Service
	stock   *inventory.MemoryStore
	sandbox *payment.Sandbox
	orders  *orders.MemoryRepository
	svc     *checkout.Service

	auth    *domain.AuthorizeResponse
	order   *domain.Order
	orderID map[string]bool
	err     error
}

func (c *checkoutTestContext) reset() {
	log := zap.NewNop()
	c.coupons = coupon.NewValidator(coupon.NewMemoryRepository(), log)
	c.carts = cart.NewService(cart.NewMemoryRepository(), c.coupons, "USD", log)
	c.stock = inventory.NewMemoryStore()
	c.sandbox = payment.NewSandbox(payment.ApproveAll, log)
	c.orders = orders.NewMemoryRepository()
	c.svc = checkout.NewService(checkout.NewMemoryRepository(), c.carts, c.stock, c.sandbox, c.orders, log)
	c.auth = nil
	c.order = nil
	c.orderID = make(map[string]bool)
	c.err = nil
}

func parseMoney(amount string) (money.Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return money.Money{}, err
	}
	return money.Money{Amount: d.Shift(2).IntPart(), Currency: "USD"}, nil
}

func (c *checkoutTestContext) aCouponForPercent(code string, percent int) error {
	_, err := c.coupons.Create(context.Background(), code, decimal.NewFromInt(int64(percent)), time.Now().Add(time.Hour))
	return err
}

func (c *checkoutTestContext) productHasUnitsAvailable(productID string, units int) error {
	return c.stock.SetStock(context.Background(), productID, int64(units))
}

func (c *checkoutTestContext) ownerHasACartWith(owner string, qty int, productID, price string) error {
	unit, err := parseMoney(price)
	if err != nil {
		return err
	}
	_, err = c.carts.UpsertCart(context.Background(), owner, []domain.CartLine{
		{ProductID: productID, Quantity: int64(qty), UnitPrice: unit},
	}, &domain.Address{
		Street:      "1 Main St",
		City:        "Springfield",
		State:       "IL",
		ZipCode:     "62701",
		Country:     "US",
		PhoneNumber: "555-123-4567",
	})
	return err
}

func (c *checkoutTestContext) ownerAdds(owner string, qty int, productID, price string) error {
	ctx := context.Background()
	unit, err := parseMoney(price)
	if err != nil {
		return err
	}
	current, err := c.carts.Load(ctx, owner)
	if err != nil {
		return err
	}
	lines := append(current.Lines, domain.CartLine{ProductID: productID, Quantity: int64(qty), UnitPrice: unit})
	_, err = c.carts.UpsertCart(ctx, owner, lines, nil)
	return err
}

func (c *checkoutTestContext) ownerAuthorizesCheckoutWithCoupon(owner, code string) error {
	resp, err := c.svc.Authorize(context.Background(), domain.AuthorizeRequest{OwnerID: owner, CouponCode: code})
	if err != nil {
		return err
	}
	c.auth = resp
	return nil
}

func (c *checkoutTestContext) ownerFinalizesTheCheckout(owner string) error {
	c.order, c.err = c.svc.Finalize(context.Background(), domain.FinalizeRequest{
		OwnerID:         owner,
		AuthorizationID: c.auth.AuthorizationID,
	})
	return nil
}

func (c *checkoutTestContext) thePaymentWebhookIsDelivered(times int) error {
	for i := 0; i < times; i++ {
		order, err := c.svc.FinalizeByAuthorization(context.Background(), c.auth.AuthorizationID)
		if err != nil {
			return fmt.Errorf("delivery %d: %w", i+1, err)
		}
		c.orderID[order.ID] = true
	}
	return nil
}

func (c *checkoutTestContext) theCartSubtotalIs(owner, amount string) error {
	want, err := parseMoney(amount)
	if err != nil {
		return err
	}
	current, err := c.carts.Load(context.Background(), owner)
	if err != nil {
		return err
	}
	if current.Subtotal != want {
		return fmt.Errorf("expected subtotal %s, got %s", want, current.Subtotal)
	}
	return nil
}

func (c *checkoutTestContext) theAuthorizationAmountIs(amount string) error {
	want, err := parseMoney(amount)
	if err != nil {
		return err
	}
	if c.auth.Amount != want {
		return fmt.Errorf("expected authorization of %s, got %s", want, c.auth.Amount)
	}
	return nil
}

func (c *checkoutTestContext) anOrderExistsWithTotal(amount string) error {
	if c.err != nil {
		return fmt.Errorf("expected an order but got error: %v", c.err)
	}
	want, err := parseMoney(amount)
	if err != nil {
		return err
	}
	if c.order.Total != want {
		return fmt.Errorf("expected order total %s, got %s", want, c.order.Total)
	}
	return nil
}

func (c *checkoutTestContext) inventoryFor(productID string, available, reserved, sold int) error {
	records, err := c.stock.GetStock(context.Background(), []string{productID})
	if err != nil {
		return err
	}
	if len(records) != 1 {
		return fmt.Errorf("no inventory for %s", productID)
	}
	got := records[0]
	if got.AvailableQty != int64(available) || got.ReservedQty != int64(reserved) || got.SoldQty != int64(sold) {
		return fmt.Errorf("expected %d/%d/%d, got %d/%d/%d", available, reserved, sold, got.AvailableQty, got.ReservedQty, got.SoldQty)
	}
	return nil
}

func (c *checkoutTestContext) theCartIsGone(owner string) error {
	_, err := c.carts.Load(context.Background(), owner)
	if !errors.Is(err, cart.ErrCartNotFound) {
		return fmt.Errorf("expected cart to be cleared, got %v", err)
	}
	return nil
}

func (c *checkoutTestContext) theCartStillHasLines(owner string, lines int) error {
	current, err := c.carts.Load(context.Background(), owner)
	if err != nil {
		return err
	}
	if len(current.Lines) != lines {
		return fmt.Errorf("expected %d lines, got %d", lines, len(current.Lines))
	}
	return nil
}

func (c *checkoutTestContext) finalizeFailsWithInsufficientStockFor(productID string) error {
	var stockErr *inventory.InsufficientStockError
	if !errors.As(c.err, &stockErr) {
		return fmt.Errorf("expected insufficient stock, got %v", c.err)
	}
	if stockErr.ProductID != productID {
		return fmt.Errorf("expected product %s, got %s", productID, stockErr.ProductID)
	}
	if checkout.KindOf(c.err) != checkout.KindResourceExhaustion {
		return fmt.Errorf("expected resource exhaustion, got %s", checkout.KindOf(c.err))
	}
	return nil
}

func (c *checkoutTestContext) finalizeFailsWithAStaleAuthorization() error {
	if !errors.Is(c.err, checkout.ErrStaleAuthorization) {
		return fmt.Errorf("expected stale authorization, got %v", c.err)
	}
	return nil
}

func (c *checkoutTestContext) theAuthorizationIsVoided() error {
	status, ok := c.sandbox.Status(c.auth.AuthorizationID)
	if !ok || status != payment.IntentCanceled {
		return fmt.Errorf("expected canceled intent, got %q", status)
	}
	return nil
}

func (c *checkoutTestContext) ownerHasOrders(owner string, n int) error {
	list, err := c.orders.ListByOwner(context.Background(), owner)
	if err != nil {
		return err
	}
	if len(list) != n {
		return fmt.Errorf("expected %d orders, got %d", n, len(list))
	}
	return nil
}

func (c *checkoutTestContext) ownerHasNoOrders(owner string) error {
	return c.ownerHasOrders(owner, 0)
}

func (c *checkoutTestContext) everyDeliveryReturnsTheSameOrder() error {
	if len(c.orderID) != 1 {
		return fmt.Errorf("expected one distinct order, got %d", len(c.orderID))
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &checkoutTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a coupon "([^"]*)" for (\d+) percent$`, tc.aCouponForPercent)
	ctx.Step(`^product "([^"]*)" has (\d+) units available$`, tc.productHasUnitsAvailable)
	ctx.Step(`^owner "([^"]*)" has a cart with (\d+) of "([^"]*)" at (\d+\.\d{2})$`, tc.ownerHasACartWith)

	// When steps
	ctx.Step(`^"([^"]*)" authorizes checkout with coupon "([^"]*)"$`, tc.ownerAuthorizesCheckoutWithCoupon)
	ctx.Step(`^"([^"]*)" adds (\d+) of "([^"]*)" at (\d+\.\d{2})$`, tc.ownerAdds)
	ctx.Step(`^"([^"]*)" finalizes the checkout$`, tc.ownerFinalizesTheCheckout)
	ctx.Step(`^the payment webhook is delivered (\d+) times$`, tc.thePaymentWebhookIsDelivered)

	// Then steps
	ctx.Step(`^the cart subtotal of "([^"]*)" is (\d+\.\d{2})$`, tc.theCartSubtotalIs)
	ctx.Step(`^the authorization amount is (\d+\.\d{2})$`, tc.theAuthorizationAmountIs)
	ctx.Step(`^an order exists with total (\d+\.\d{2})$`, tc.anOrderExistsWithTotal)
	ctx.Step(`^inventory for "([^"]*)" is (\d+) available, (\d+) reserved, (\d+) sold$`, tc.inventoryFor)
	ctx.Step(`^the cart of "([^"]*)" is gone$`, tc.theCartIsGone)
	ctx.Step(`^the cart of "([^"]*)" still has (\d+) lines$`, tc.theCartStillHasLines)
	ctx.Step(`^finalize fails with insufficient stock for "([^"]*)"$`, tc.finalizeFailsWithInsufficientStockFor)
	ctx.Step(`^finalize fails with a stale authorization$`, tc.finalizeFailsWithAStaleAuthorization)
	ctx.Step(`^the authorization is voided$`, tc.theAuthorizationIsVoided)
	ctx.Step(`^"([^"]*)" has no orders$`, tc.ownerHasNoOrders)
	ctx.Step(`^"([^"]*)" has (\d+) orders$`, tc.ownerHasOrders)
	ctx.Step(`^every delivery returns the same order$`, tc.everyDeliveryReturnsTheSameOrder)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/checkout.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
