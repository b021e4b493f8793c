package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/go_cart/internal/database"
	"github.com/fjod/go_cart/internal/domain"
)

// SQLStore implements Ledger on the inventory table. Each batch runs in one
// transaction with a conditional update per product row, so stock never
// goes negative and a failed item rolls the whole batch back.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB, opts ...Option) *SQLStore {
	o := buildOptions(opts)
	return &SQLStore{db: db, now: o.now}
}

func (s *SQLStore) Reserve(ctx context.Context, checkoutID string, items []domain.ReservationItem) (*domain.Reservation, error) {
	items, err := normalizeItems(items)
	if err != nil {
		return nil, err
	}

	var reservation *domain.Reservation
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var existingID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM reservations WHERE checkout_id = $1 AND status = $2`,
			checkoutID, string(domain.StatusReserved)).Scan(&existingID)
		switch {
		case err == nil:
			reservation, err = loadReservation(ctx, tx, existingID)
			return err
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("query active reservation: %w", err)
		}

		for _, item := range items {
			res, err := tx.ExecContext(ctx, `
				UPDATE inventory
				SET available_qty = available_qty - $1, reserved_qty = reserved_qty + $1
				WHERE product_id = $2 AND available_qty >= $1`,
				item.Quantity, item.ProductID)
			if err != nil {
				return fmt.Errorf("reserve %s: %w", item.ProductID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("reserve %s: %w", item.ProductID, err)
			}
			if n == 0 {
				available, err := availableQty(ctx, tx, item.ProductID)
				if err != nil {
					return err
				}
				return &InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity, Available: available}
			}
		}

		now := s.now().UTC()
		reservation = &domain.Reservation{
			ID:         uuid.NewString(),
			CheckoutID: checkoutID,
			Items:      items,
			Status:     domain.StatusReserved,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reservations (id, checkout_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			reservation.ID, checkoutID, string(reservation.Status), now, now); err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		for _, item := range items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO reservation_items (reservation_id, product_id, quantity) VALUES ($1, $2, $3)`,
				reservation.ID, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("insert reservation item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func availableQty(ctx context.Context, tx *sql.Tx, productID string) (int64, error) {
	var available int64
	err := tx.QueryRowContext(ctx, `SELECT available_qty FROM inventory WHERE product_id = $1`, productID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query stock %s: %w", productID, err)
	}
	return available, nil
}

func (s *SQLStore) Commit(ctx context.Context, reservationID string) error {
	return s.finish(ctx, reservationID, domain.StatusCommitted)
}

func (s *SQLStore) Release(ctx context.Context, reservationID string) error {
	return s.finish(ctx, reservationID, domain.StatusReleased)
}

// finish flips the reservation status with a conditional update, which is the
// serialization point between a concurrent commit and release.
func (s *SQLStore) finish(ctx context.Context, reservationID string, to domain.ReservationStatus) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE reservations SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
			string(to), s.now().UTC(), reservationID, string(domain.StatusReserved))
		if err != nil {
			return fmt.Errorf("update reservation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update reservation: %w", err)
		}
		if n == 0 {
			var current domain.ReservationStatus
			err := tx.QueryRowContext(ctx, `SELECT status FROM reservations WHERE id = $1`, reservationID).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrReservationNotFound
			}
			if err != nil {
				return fmt.Errorf("query reservation: %w", err)
			}
			if current == to {
				return nil
			}
			return ErrInvalidStatus
		}

		items, err := loadItems(ctx, tx, reservationID)
		if err != nil {
			return err
		}

		query := `UPDATE inventory SET reserved_qty = reserved_qty - $1, available_qty = available_qty + $1 WHERE product_id = $2`
		if to == domain.StatusCommitted {
			query = `UPDATE inventory SET reserved_qty = reserved_qty - $1, sold_qty = sold_qty + $1 WHERE product_id = $2`
		}
		for _, item := range items {
			if _, err := tx.ExecContext(ctx, query, item.Quantity, item.ProductID); err != nil {
				return fmt.Errorf("%s %s: %w", to, item.ProductID, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) GetReservation(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	var reservation *domain.Reservation
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		reservation, err = loadReservation(ctx, tx, reservationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func loadReservation(ctx context.Context, tx *sql.Tx, id string) (*domain.Reservation, error) {
	r := &domain.Reservation{}
	err := tx.QueryRowContext(ctx,
		`SELECT id, checkout_id, status, created_at, updated_at FROM reservations WHERE id = $1`, id).
		Scan(&r.ID, &r.CheckoutID, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query reservation: %w", err)
	}
	if r.Items, err = loadItems(ctx, tx, id); err != nil {
		return nil, err
	}
	return r, nil
}

func loadItems(ctx context.Context, tx *sql.Tx, reservationID string) ([]domain.ReservationItem, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT product_id, quantity FROM reservation_items WHERE reservation_id = $1 ORDER BY product_id`,
		reservationID)
	if err != nil {
		return nil, fmt.Errorf("query reservation items: %w", err)
	}
	defer rows.Close()

	var items []domain.ReservationItem
	for rows.Next() {
		var item domain.ReservationItem
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan reservation item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func (s *SQLStore) GetStock(ctx context.Context, productIDs []string) ([]domain.InventoryRecord, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(productIDs))
	args := make([]any, len(productIDs))
	for i, id := range productIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `SELECT product_id, available_qty, reserved_qty, sold_qty FROM inventory WHERE product_id IN (` +
		strings.Join(placeholders, ", ") + `) ORDER BY product_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stock: %w", err)
	}
	defer rows.Close()

	var records []domain.InventoryRecord
	for rows.Next() {
		var rec domain.InventoryRecord
		if err := rows.Scan(&rec.ProductID, &rec.AvailableQty, &rec.ReservedQty, &rec.SoldQty); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

func (s *SQLStore) SetStock(ctx context.Context, productID string, available int64) error {
	if available < 0 {
		return ErrInvalidQuantity
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, available_qty) VALUES ($1, $2)
		ON CONFLICT (product_id) DO UPDATE SET available_qty = excluded.available_qty`,
		productID, available)
	if err != nil {
		return fmt.Errorf("set stock %s: %w", productID, err)
	}
	return nil
}

func (s *SQLStore) ListStale(ctx context.Context, before time.Time, limit int) ([]*domain.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM reservations WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3`,
		string(domain.StatusReserved), before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query stale reservations: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan reservation id: %w", err)
		}
		ids = append(ids, id)
	}
	// Rows must be closed before the next query on single-connection pools.
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	stale := make([]*domain.Reservation, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetReservation(ctx, id)
		if err != nil {
			return nil, err
		}
		stale = append(stale, r)
	}
	return stale, nil
}
