package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/internal/database"
	"github.com/fjod/go_cart/internal/domain"
)

const orderColumns = `id, cart_id, owner_id, payment_authorization_id, lines, subtotal, discount, total,
	currency, coupon_code, shipping_address, status, created_at, updated_at`

type SQLRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db, now: time.Now}
}

// Create inserts the order and its order.created outbox event atomically.
func (r *SQLRepository) Create(ctx context.Context, o *domain.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = r.now().UTC()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}

	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("failed to marshal order lines: %w", err)
	}
	var addressJSON sql.NullString
	if o.ShippingAddress != nil {
		b, err := json.Marshal(o.ShippingAddress)
		if err != nil {
			return fmt.Errorf("failed to marshal shipping address: %w", err)
		}
		addressJSON = sql.NullString{String: string(b), Valid: true}
	}
	event, err := newOrderCreatedEvent(o)
	if err != nil {
		return err
	}

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `INSERT INTO orders (` + orderColumns + `)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

		_, err := tx.ExecContext(ctx, query,
			o.ID,
			o.CartID,
			o.OwnerID,
			o.PaymentAuthorizationID,
			string(linesJSON),
			o.Subtotal.Amount,
			o.Discount.Amount,
			o.Total.Amount,
			o.Total.Currency,
			o.CouponCode,
			addressJSON,
			string(o.Status),
			o.CreatedAt.UTC(),
			o.UpdatedAt.UTC())
		if database.IsUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return insertEvent(ctx, tx, event)
	})
}

func insertEvent(ctx context.Context, tx *sql.Tx, e *OutboxEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.AggregateID, e.EventType, string(e.Payload), e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *SQLRepository) GetByCartID(ctx context.Context, cartID string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE cart_id = $1`, cartID)
}

func (r *SQLRepository) getOne(ctx context.Context, query string, arg string) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

func (r *SQLRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query orders by owner: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

// UpdateStatus applies a validated status transition and records it in the outbox.
func (r *SQLRepository) UpdateStatus(ctx context.Context, id string, to domain.OrderStatus) (*domain.Order, error) {
	var updated *domain.Order
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("query order: %w", err)
		}
		if !o.Status.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
		}

		now := r.now().UTC()
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
			string(to), now, id, string(o.Status))
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("update order status: %w", err)
		} else if n == 0 {
			return fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
		}

		event, err := newStatusChangedEvent(id, o.Status, to, now)
		if err != nil {
			return err
		}
		if err := insertEvent(ctx, tx, event); err != nil {
			return err
		}

		o.Status = to
		o.UpdatedAt = now
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *SQLRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		e := &OutboxEvent{}
		var payload string
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = []byte(payload)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *SQLRepository) MarkEventAsProcessed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET processed_at = $1 WHERE id = $2 AND processed_at IS NULL`,
		r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o           domain.Order
		linesJSON   []byte
		addressJSON []byte
		currency    string
		status      string
	)
	err := row.Scan(
		&o.ID,
		&o.CartID,
		&o.OwnerID,
		&o.PaymentAuthorizationID,
		&linesJSON,
		&o.Subtotal.Amount,
		&o.Discount.Amount,
		&o.Total.Amount,
		&currency,
		&o.CouponCode,
		&addressJSON,
		&status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Subtotal.Currency = currency
	o.Discount.Currency = currency
	o.Total.Currency = currency
	o.Status = domain.OrderStatus(status)

	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal order lines: %w", err)
	}
	if len(addressJSON) > 0 {
		o.ShippingAddress = &domain.Address{}
		if err := json.Unmarshal(addressJSON, o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("unmarshal shipping address: %w", err)
		}
	}
	return &o, nil
}
