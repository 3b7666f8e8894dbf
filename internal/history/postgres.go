package history

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const (
	insertOrderSQL = `
INSERT INTO orders (user_id, order_no, country_name, country_code, package_name, package_code, price, created_at)
VALUES (:user_id, :order_no, :country_name, :country_code, :package_name, :package_code, :price, :created_at)
ON CONFLICT (order_no) DO NOTHING`

	listByUserSQL = `
SELECT user_id, order_no, country_name, country_code, package_name, package_code, price, created_at
FROM orders
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`

	byOrderNoSQL = `
SELECT user_id, order_no, country_name, country_code, package_name, package_code, price, created_at
FROM orders
WHERE order_no = $1`

	// MaxListLimit caps ListByUser.
	MaxListLimit = 50
)

// Repository stores orders in Postgres.
type Repository struct {
	db *sqlx.DB
}

// NewRepository wraps an open connection pool.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Save inserts o. A repeated order number is ignored.
func (r *Repository) Save(ctx context.Context, o Order) error {
	if _, err := r.db.NamedExecContext(ctx, insertOrderSQL, o); err != nil {
		return fmt.Errorf("history: insert order %s: %w", o.OrderNo, err)
	}
	return nil
}

// ListByUser returns the user's most recent orders, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID int64, limit int) ([]Order, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	var out []Order
	if err := r.db.SelectContext(ctx, &out, listByUserSQL, userID, limit); err != nil {
		return nil, fmt.Errorf("history: list orders: %w", err)
	}
	return out, nil
}

// ByOrderNo returns a single order; ok is false when none exists.
func (r *Repository) ByOrderNo(ctx context.Context, orderNo string) (Order, bool, error) {
	var out []Order
	if err := r.db.SelectContext(ctx, &out, byOrderNoSQL, orderNo); err != nil {
		return Order{}, false, fmt.Errorf("history: get order: %w", err)
	}
	if len(out) == 0 {
		return Order{}, false, nil
	}
	return out[0], true, nil
}

// Ping checks the connection pool.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
