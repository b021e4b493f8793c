package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/internal/database"
	"github.com/fjod/go_cart/internal/domain"
)

const attemptColumns = `id, owner_id, cart_id, cart_version, amount, currency, coupon_code, idempotency_key,
	status, authorization_id, authorization_status, client_secret, reservation_id, order_id,
	failure_reason, created_at, updated_at`

type SQLRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db, now: time.Now}
}

func (r *SQLRepository) Create(ctx context.Context, a *domain.CheckoutAttempt) error {
	now := r.now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt

	query := `INSERT INTO checkout_attempts (` + attemptColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.OwnerID,
		a.CartID,
		a.CartVersion,
		a.Amount.Amount,
		a.Amount.Currency,
		a.CouponCode,
		a.IdempotencyKey,
		string(a.Status),
		a.AuthorizationID,
		string(a.AuthorizationStatus),
		a.ClientSecret,
		a.ReservationID,
		a.OrderID,
		a.FailureReason,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if a.IdempotencyKey != "" && database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, a.IdempotencyKey)
		}
		return fmt.Errorf("failed to insert checkout attempt: %w", err)
	}
	return nil
}

func (r *SQLRepository) Update(ctx context.Context, a *domain.CheckoutAttempt, from domain.CheckoutStatus) error {
	if err := checkTransition(from, a.Status); err != nil {
		return fmt.Errorf("%w: %s -> %s", err, from, a.Status)
	}
	updatedAt := r.now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE checkout_attempts
		SET status = $1, authorization_id = $2, authorization_status = $3, client_secret = $4,
		    reservation_id = $5, order_id = $6, failure_reason = $7, updated_at = $8
		WHERE id = $9 AND status = $10`,
		string(a.Status),
		a.AuthorizationID,
		string(a.AuthorizationStatus),
		a.ClientSecret,
		a.ReservationID,
		a.OrderID,
		a.FailureReason,
		updatedAt,
		a.ID,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update checkout attempt: %w", err)
	}
	if err := r.checkAffected(ctx, res, a.ID); err != nil {
		return err
	}
	a.UpdatedAt = updatedAt
	return nil
}

func (r *SQLRepository) Transition(ctx context.Context, id string, from, to domain.CheckoutStatus) error {
	if err := checkTransition(from, to); err != nil {
		return fmt.Errorf("%w: %s -> %s", err, from, to)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE checkout_attempts SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), r.now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition checkout attempt: %w", err)
	}
	return r.checkAffected(ctx, res, id)
}

// checkAffected tells a missing attempt apart from a lost compare-and-set.
func (r *SQLRepository) checkAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM checkout_attempts WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAttemptNotFound
	}
	if err != nil {
		return fmt.Errorf("query checkout attempt status: %w", err)
	}
	return fmt.Errorf("%w: now %s", ErrStatusConflict, status)
}

func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.CheckoutAttempt, error) {
	return r.getOne(ctx, `SELECT `+attemptColumns+` FROM checkout_attempts WHERE id = $1`, id)
}

func (r *SQLRepository) GetByAuthorizationID(ctx context.Context, authorizationID string) (*domain.CheckoutAttempt, error) {
	if authorizationID == "" {
		return nil, ErrAttemptNotFound
	}
	return r.getOne(ctx, `SELECT `+attemptColumns+` FROM checkout_attempts WHERE authorization_id = $1`, authorizationID)
}

func (r *SQLRepository) FindAuthorized(ctx context.Context, ownerID, cartID string, cartVersion int64) (*domain.CheckoutAttempt, error) {
	return r.getOne(ctx, `
		SELECT `+attemptColumns+` FROM checkout_attempts
		WHERE owner_id = $1 AND cart_id = $2 AND cart_version = $3 AND status = $4
		ORDER BY created_at DESC
		LIMIT 1`,
		ownerID, cartID, cartVersion, string(domain.CheckoutStatusAuthorized))
}

func (r *SQLRepository) GetByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.CheckoutAttempt, error) {
	if key == "" {
		return nil, ErrAttemptNotFound
	}
	return r.getOne(ctx, `
		SELECT `+attemptColumns+` FROM checkout_attempts
		WHERE owner_id = $1 AND idempotency_key = $2
		ORDER BY created_at DESC
		LIMIT 1`,
		ownerID, key)
}

func (r *SQLRepository) ListByStatus(ctx context.Context, status domain.CheckoutStatus, updatedBefore time.Time, limit int) ([]*domain.CheckoutAttempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+attemptColumns+` FROM checkout_attempts
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`,
		string(status), updatedBefore.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query checkout attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.CheckoutAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkout attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return attempts, nil
}

func (r *SQLRepository) getOne(ctx context.Context, query string, args ...any) (*domain.CheckoutAttempt, error) {
	a, err := scanAttempt(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkout attempt: %w", err)
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*domain.CheckoutAttempt, error) {
	var (
		a          domain.CheckoutAttempt
		status     string
		authStatus string
	)
	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.CartID,
		&a.CartVersion,
		&a.Amount.Amount,
		&a.Amount.Currency,
		&a.CouponCode,
		&a.IdempotencyKey,
		&status,
		&a.AuthorizationID,
		&authStatus,
		&a.ClientSecret,
		&a.ReservationID,
		&a.OrderID,
		&a.FailureReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.CheckoutStatus(status)
	a.AuthorizationStatus = domain.AuthorizationStatus(authStatus)
	return &a, nil
}
