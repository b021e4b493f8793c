package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/cart"
	"github.com/fjod/go_cart/internal/coupon"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/inventory"
	"github.com/fjod/go_cart/internal/money"
	"github.com/fjod/go_cart/internal/orders"
	"github.com/fjod/go_cart/internal/payment"
)

// MockGateway wraps a real gateway and lets tests inject failures.
type MockGateway struct {
	next payment.Gateway

	mu          sync.Mutex
	CreateErr   error
	CreateDelay time.Duration
	ConfirmErr  error
	Confirmed   *bool // overrides the wrapped decision when set
	Creates     int
	Cancels     int
}

func (m *MockGateway) CreateAuthorization(ctx context.Context, req payment.AuthorizationRequest) (*payment.Authorization, error) {
	m.mu.Lock()
	m.Creates++
	err, delay := m.CreateErr, m.CreateDelay
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return m.next.CreateAuthorization(ctx, req)
}

func (m *MockGateway) ConfirmReceived(ctx context.Context, handle string) (bool, error) {
	m.mu.Lock()
	err, confirmed := m.ConfirmErr, m.Confirmed
	m.mu.Unlock()
	if err != nil {
		return false, err
	}
	if confirmed != nil {
		return *confirmed, nil
	}
	return m.next.ConfirmReceived(ctx, handle)
}

func (m *MockGateway) Cancel(ctx context.Context, handle string) error {
	m.mu.Lock()
	m.Cancels++
	m.mu.Unlock()
	return m.next.Cancel(ctx, handle)
}

func (m *MockGateway) set(fn func(m *MockGateway)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// MockLedger counts calls into a real ledger and can fail commits.
type MockLedger struct {
	inventory.Ledger

	mu             sync.Mutex
	Reserves       int
	Commits        int
	Releases       int
	FailNextCommit error
}

func (m *MockLedger) Reserve(ctx context.Context, checkoutID string, items []domain.ReservationItem) (*domain.Reservation, error) {
	m.mu.Lock()
	m.Reserves++
	m.mu.Unlock()
	return m.Ledger.Reserve(ctx, checkoutID, items)
}

func (m *MockLedger) Commit(ctx context.Context, reservationID string) error {
	m.mu.Lock()
	err := m.FailNextCommit
	m.FailNextCommit = nil
	if err == nil {
		m.Commits++
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.Ledger.Commit(ctx, reservationID)
}

func (m *MockLedger) Release(ctx context.Context, reservationID string) error {
	m.mu.Lock()
	m.Releases++
	m.mu.Unlock()
	return m.Ledger.Release(ctx, reservationID)
}

// MockOrders can report a failed create after the write has landed, the way
// a dropped connection would.
type MockOrders struct {
	orders.Repository

	CreateErr error
}

func (m *MockOrders) Create(ctx context.Context, o *domain.Order) error {
	if err := m.Repository.Create(ctx, o); err != nil {
		return err
	}
	return m.CreateErr
}

// MockRecorder collects recorded outcomes.
type MockRecorder struct {
	mu     sync.Mutex
	Events map[string]int
}

func (m *MockRecorder) add(key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Events == nil {
		m.Events = make(map[string]int)
	}
	m.Events[key] += n
}

func (m *MockRecorder) Authorization(result string)     { m.add("authorization_"+result, 1) }
func (m *MockRecorder) Finalization(result string)      { m.add("finalization_"+result, 1) }
func (m *MockRecorder) Compensation(action string)      { m.add("compensation_"+action, 1) }
func (m *MockRecorder) Reconciled(action string, n int) { m.add("reconciled_"+action, n) }

type testEnv struct {
	svc      *Service
	carts    *cart.Service
	stock    *inventory.MemoryStore
	ledger   *MockLedger
	sandbox  *payment.Sandbox
	gateway  *MockGateway
	orders   *MockOrders
	attempts *MemoryRepository
	recorder *MockRecorder
}

// newTestEnv wires a checkout service over in-memory collaborators with
// product p1 in stock and the SAVE10 coupon issued.
func newTestEnv(t *testing.T, available int64) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	validator := coupon.NewValidator(coupon.NewMemoryRepository(), log)
	_, err := validator.Create(ctx, "SAVE10", decimal.NewFromInt(10), time.Now().Add(24*time.Hour))
	require.NoError(t, err)

	stock := inventory.NewMemoryStore()
	require.NoError(t, stock.SetStock(ctx, "p1", available))
	require.NoError(t, stock.SetStock(ctx, "p2", 100))

	sandbox := payment.NewSandbox(payment.ApproveAll, log)
	env := &testEnv{
		carts:    cart.NewService(cart.NewMemoryRepository(), validator, "USD", log),
		stock:    stock,
		ledger:   &MockLedger{Ledger: stock},
		sandbox:  sandbox,
		gateway:  &MockGateway{next: sandbox},
		orders:   &MockOrders{Repository: orders.NewMemoryRepository()},
		attempts: NewMemoryRepository(),
		recorder: &MockRecorder{},
	}
	env.svc = NewService(env.attempts, env.carts, env.ledger, env.gateway, env.orders, log, WithRecorder(env.recorder))
	return env
}

func usd(amount int64) money.Money {
	return money.Money{Amount: amount, Currency: "USD"}
}

func testAddress() *domain.Address {
	return &domain.Address{
		Street:      "1 Main St",
		City:        "Springfield",
		State:       "IL",
		ZipCode:     "62701",
		Country:     "US",
		PhoneNumber: "555-123-4567",
	}
}

// fillCart puts two units of p1 at $10.00 into the owner's cart.
func (e *testEnv) fillCart(t *testing.T, owner string) *domain.Cart {
	t.Helper()
	c, err := e.carts.UpsertCart(context.Background(), owner, []domain.CartLine{
		{ProductID: "p1", Title: "Widget", Quantity: 2, UnitPrice: usd(1000)},
	}, testAddress())
	require.NoError(t, err)
	return c
}

func (e *testEnv) stockOf(t *testing.T, productID string) domain.InventoryRecord {
	t.Helper()
	records, err := e.stock.GetStock(context.Background(), []string{productID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	return records[0]
}

func (e *testEnv) intentStatus(t *testing.T, handle string) payment.IntentStatus {
	t.Helper()
	status, ok := e.sandbox.Status(handle)
	require.True(t, ok)
	return status
}

func boolPtr(b bool) *bool { return &b }
