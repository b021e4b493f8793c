package coupon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fjod/go_cart/internal/database"
	"github.com/fjod/go_cart/internal/domain"
)

// Repository stores coupons keyed by their normalized code.
type Repository interface {
	Get(ctx context.Context, code string) (*domain.Coupon, error)
	Create(ctx context.Context, c *domain.Coupon) error
	Delete(ctx context.Context, code string) error
	List(ctx context.Context) ([]*domain.Coupon, error)
}

type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Get(ctx context.Context, code string) (*domain.Coupon, error) {
	query := `SELECT code, discount_percent, expires_at, created_at FROM coupons WHERE code = $1`

	c := &domain.Coupon{}
	err := r.db.QueryRowContext(ctx, query, code).Scan(&c.Code, &c.DiscountPercent, &c.ExpiresAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query coupon: %w", err)
	}
	return c, nil
}

func (r *SQLRepository) Create(ctx context.Context, c *domain.Coupon) error {
	query := `INSERT INTO coupons (code, discount_percent, expires_at, created_at) VALUES ($1, $2, $3, $4)`

	_, err := r.db.ExecContext(ctx, query, c.Code, c.DiscountPercent, c.ExpiresAt.UTC(), c.CreatedAt.UTC())
	if database.IsUniqueViolation(err) {
		return ErrDuplicateCoupon
	}
	if err != nil {
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

func (r *SQLRepository) Delete(ctx context.Context, code string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM coupons WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	if n == 0 {
		return ErrCouponNotFound
	}
	return nil
}

func (r *SQLRepository) List(ctx context.Context) ([]*domain.Coupon, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, discount_percent, expires_at, created_at FROM coupons ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("query coupons: %w", err)
	}
	defer rows.Close()

	var coupons []*domain.Coupon
	for rows.Next() {
		c := &domain.Coupon{}
		if err := rows.Scan(&c.Code, &c.DiscountPercent, &c.ExpiresAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return coupons, nil
}

// MemoryRepository is an in-process Repository for tests and local runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	coupons map[string]domain.Coupon
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{coupons: make(map[string]domain.Coupon)}
}

func (r *MemoryRepository) Get(_ context.Context, code string) (*domain.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.coupons[code]
	if !ok {
		return nil, ErrCouponNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) Create(_ context.Context, c *domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.coupons[c.Code]; ok {
		return ErrDuplicateCoupon
	}
	r.coupons[c.Code] = *c
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.coupons[code]; !ok {
		return ErrCouponNotFound
	}
	delete(r.coupons, code)
	return nil
}

func (r *MemoryRepository) List(_ context.Context) ([]*domain.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	coupons := make([]*domain.Coupon, 0, len(r.coupons))
	for _, c := range r.coupons {
		c := c
		coupons = append(coupons, &c)
	}
	sort.Slice(coupons, func(i, j int) bool { return coupons[i].Code < coupons[j].Code })
	return coupons, nil
}
