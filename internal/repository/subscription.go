package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/jackc/pgx/v5"
)

type SubscriptionRepository struct {
	db DB
}

func NewSubscriptionRepository(db DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, user_id, plan, status, current_period_start, current_period_end, payment_provider_id, recurring, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		sub.ID, sub.UserID, sub.Plan, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.PaymentProviderID, sub.Recurring,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

const subscriptionColumns = `id, user_id, plan, status, current_period_start, current_period_end, payment_provider_id, recurring, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.Plan, &sub.Status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.PaymentProviderID, &sub.Recurring,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return &sub, nil
}

// FindByUserAndStatus returns the user's newest subscription in status, or nil.
func (r *SubscriptionRepository) FindByUserAndStatus(ctx context.Context, userID, status string) (*domain.Subscription, error) {
	return scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`,
		userID, status,
	))
}

// FindByProviderID returns the subscription created from a vendor order or
// subscription id, whatever its status, or nil.
func (r *SubscriptionRepository) FindByProviderID(ctx context.Context, providerID string) (*domain.Subscription, error) {
	return scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE payment_provider_id = $1`,
		providerID,
	))
}

// Activate moves a subscription awaiting approval to active and starts its
// billing period. It reports false when the subscription was not pending.
func (r *SubscriptionRepository) Activate(ctx context.Context, id string, start, end time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = 'active', current_period_start = $1, current_period_end = $2, updated_at = NOW()
		 WHERE id = $3 AND status = 'approval_pending'`,
		start, end, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to activate subscription: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.Exec(ctx, `UPDATE subscriptions SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	return nil
}

// CountActive returns the number of active subscriptions.
func (r *SubscriptionRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE status = 'active'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}
