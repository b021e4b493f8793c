package checkout_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/internal/checkout"
	"github.com/fjod/go_cart/internal/database/dbtest"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/money"
)

func forEachRepository(t *testing.T, fn func(t *testing.T, repo checkout.AttemptRepository)) {
	factories := map[string]func(t *testing.T) checkout.AttemptRepository{
		"memory": func(t *testing.T) checkout.AttemptRepository { return checkout.NewMemoryRepository() },
		"sqlite": func(t *testing.T) checkout.AttemptRepository { return checkout.NewSQLRepository(dbtest.NewSQLite(t)) },
	}
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func newAttempt(id string, createdAt time.Time) *domain.CheckoutAttempt {
	return &domain.CheckoutAttempt{
		ID:             id,
		OwnerID:        "user-1",
		CartID:         "cart-1",
		CartVersion:    3,
		Amount:         money.Money{Amount: 1800, Currency: "USD"},
		CouponCode:     "SAVE10",
		IdempotencyKey: "key-" + id,
		Status:         domain.CheckoutStatusAuthorizing,
		CreatedAt:      createdAt,
	}
}

func authorizeAttempt(t *testing.T, repo checkout.AttemptRepository, a *domain.CheckoutAttempt, handle string) {
	t.Helper()
	a.Status = domain.CheckoutStatusAuthorized
	a.AuthorizationID = handle
	a.AuthorizationStatus = domain.AuthorizationPending
	a.ClientSecret = handle + "_secret"
	require.NoError(t, repo.Update(context.Background(), a, domain.CheckoutStatusAuthorizing))
}

func TestAttemptRepository_CreateAndLookups(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo checkout.AttemptRepository) {
		ctx := context.Background()
		base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

		a := newAttempt("attempt-1", base)
		require.NoError(t, repo.Create(ctx, a))
		authorizeAttempt(t, repo, a, "pi_1")

		got, err := repo.GetByID(ctx, "attempt-1")
		require.NoError(t, err)
		assert.Equal(t, domain.CheckoutStatusAuthorized, got.Status)
		assert.Equal(t, "pi_1", got.AuthorizationID)
		assert.Equal(t, domain.AuthorizationPending, got.AuthorizationStatus)
		assert.Equal(t, a.Amount, got.Amount)
		assert.Equal(t, int64(3), got.CartVersion)
		assert.True(t, got.CreatedAt.Equal(base))

		got, err = repo.GetByAuthorizationID(ctx, "pi_1")
		require.NoError(t, err)
		assert.Equal(t, "attempt-1", got.ID)

		got, err = repo.FindAuthorized(ctx, "user-1", "cart-1", 3)
		require.NoError(t, err)
		assert.Equal(t, "attempt-1", got.ID)

		_, err = repo.FindAuthorized(ctx, "user-1", "cart-1", 4)
		assert.ErrorIs(t, err, checkout.ErrAttemptNotFound)

		got, err = repo.GetByIdempotencyKey(ctx, "user-1", "key-attempt-1")
		require.NoError(t, err)
		assert.Equal(t, "attempt-1", got.ID)

		_, err = repo.GetByIdempotencyKey(ctx, "user-2", "key-attempt-1")
		assert.ErrorIs(t, err, checkout.ErrAttemptNotFound)
		_, err = repo.GetByAuthorizationID(ctx, "")
		assert.ErrorIs(t, err, checkout.ErrAttemptNotFound)
		_, err = repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, checkout.ErrAttemptNotFound)
	})
}

func TestAttemptRepository_IdempotencyKeyReturnsNewest(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo checkout.AttemptRepository) {
		ctx := context.Background()
		base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

		older := newAttempt("attempt-1", base)
		newer := newAttempt("attempt-2", base.Add(time.Minute))
		newer.IdempotencyKey = older.IdempotencyKey
		require.NoError(t, repo.Create(ctx, older))
		older.Status = domain.CheckoutStatusAuthFailed
		require.NoError(t, repo.Update(ctx, older, domain.CheckoutStatusAuthorizing))
		require.NoError(t, repo.Create(ctx, newer))

		got, err := repo.GetByIdempotencyKey(ctx, "user-1", older.IdempotencyKey)
		require.NoError(t, err)
		assert.Equal(t, "attempt-2", got.ID)
	})
}

func TestAttemptRepository_IdempotencyKeyHeldByLiveAttempt(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo checkout.AttemptRepository) {
		ctx := context.Background()
		base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

		first := newAttempt("attempt-1", base)
		require.NoError(t, repo.Create(ctx, first))

		second := newAttempt("attempt-2", base.Add(time.Second))
		second.IdempotencyKey = first.IdempotencyKey
		err := repo.Create(ctx, second)
		assert.ErrorIs(t, err, checkout.ErrDuplicateKey)

		other := newAttempt("attempt-3", base.Add(time.Second))
		other.OwnerID = "user-2"
		other.IdempotencyKey = first.IdempotencyKey
		require.NoError(t, repo.Create(ctx, other), "keys are scoped per owner")

		noKey := []*domain.CheckoutAttempt{newAttempt("attempt-4", base), newAttempt("attempt-5", base)}
		for _, a := range noKey {
			a.IdempotencyKey = ""
			require.NoError(t, repo.Create(ctx, a))
		}

		authorizeAttempt(t, repo, first, "pi_1")
		err = repo.Create(ctx, second)
		assert.ErrorIs(t, err, checkout.ErrDuplicateKey)

		require.NoError(t, repo.Transition(ctx, first.ID, domain.CheckoutStatusAuthorized, domain.CheckoutStatusAbandoned))
		require.NoError(t, repo.Create(ctx, second), "a closed attempt releases its key")
	})
}

func TestAttemptRepository_TransitionIsCompareAndSet(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo checkout.AttemptRepository) {
		ctx := context.Background()
		a := newAttempt("attempt-1", time.Now().UTC())
		require.NoError(t, repo.Create(ctx, a))
		authorizeAttempt(t, repo, a, "pi_1")

		require.NoError(t, repo.Transition(ctx, a.ID, domain.CheckoutStatusAuthorized, domain.CheckoutStatusReserving))

		err := repo.Transition(ctx, a.ID, domain.CheckoutStatusAuthorized, domain.CheckoutStatusReserving)
		assert.ErrorIs(t, err, checkout.ErrStatusConflict)

		err = repo.Transition(ctx, a.ID, domain.CheckoutStatusReserving, domain.CheckoutStatusDraft)
		assert.ErrorIs(t, err, checkout.IllegalTransitionError)

		err = repo.Transition(ctx, "missing", domain.CheckoutStatusAuthorized, domain.CheckoutStatusReserving)
		assert.ErrorIs(t, err, checkout.ErrAttemptNotFound)

		a.Status = domain.CheckoutStatusAbandoned
		err = repo.Update(ctx, a, domain.CheckoutStatusAuthorized)
		assert.ErrorIs(t, err, checkout.ErrStatusConflict, "stale expected status")

		a.Status = domain.CheckoutStatusFinalized
		a.OrderID = "order-1"
		a.ReservationID = "res-1"
		require.NoError(t, repo.Update(ctx, a, domain.CheckoutStatusReserving))
		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CheckoutStatusFinalized, got.Status)
		assert.Equal(t, "order-1", got.OrderID)
		assert.Equal(t, "res-1", got.ReservationID)
	})
}

func TestAttemptRepository_ListByStatus(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo checkout.AttemptRepository) {
		ctx := context.Background()
		for _, id := range []string{"attempt-1", "attempt-2", "attempt-3"} {
			a := newAttempt(id, time.Now().UTC())
			require.NoError(t, repo.Create(ctx, a))
			if id != "attempt-3" {
				authorizeAttempt(t, repo, a, "pi_"+id)
			}
		}

		list, err := repo.ListByStatus(ctx, domain.CheckoutStatusAuthorized, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		list, err = repo.ListByStatus(ctx, domain.CheckoutStatusAuthorized, time.Now().Add(time.Hour), 1)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, err = repo.ListByStatus(ctx, domain.CheckoutStatusAuthorized, time.Now().Add(-time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestSQLRepository_Postgres(t *testing.T) {
	repo := checkout.NewSQLRepository(dbtest.NewPostgres(t))
	ctx := context.Background()

	a := newAttempt("attempt-1", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, a))
	authorizeAttempt(t, repo, a, "pi_1")

	got, err := repo.FindAuthorized(ctx, "user-1", "cart-1", 3)
	require.NoError(t, err)
	assert.Equal(t, "pi_1", got.AuthorizationID)

	require.NoError(t, repo.Transition(ctx, a.ID, domain.CheckoutStatusAuthorized, domain.CheckoutStatusReserving))
	err = repo.Transition(ctx, a.ID, domain.CheckoutStatusAuthorized, domain.CheckoutStatusReserving)
	assert.ErrorIs(t, err, checkout.ErrStatusConflict)
}
