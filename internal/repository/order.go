package repository

import (
	"context"
	"fmt"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/jackc/pgx/v5"
)

// OrderRepository remembers which user and plan a vendor order belongs to.
type OrderRepository struct {
	db DB
}

func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO orders (id, user_id, plan, amount_minor_units, currency, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		o.ID, o.UserID, o.PlanID, o.AmountMinorUnits, o.Currency, o.Status, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, plan, amount_minor_units, currency, status, created_at FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.UserID, &o.PlanID, &o.AmountMinorUnits, &o.Currency, &o.Status, &o.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return &o, nil
}

// UpdateStatus moves an order to status. A COMPLETED order never changes
// again; the bool reports whether a row was updated.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id, status string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status <> $3`,
		status, id, domain.OrderCaptured,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SumCaptured returns the revenue of captured orders in minor units.
func (r *OrderRepository) SumCaptured(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_minor_units), 0) FROM orders WHERE status = $1`, domain.OrderCaptured,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum orders: %w", err)
	}
	return total, nil
}
