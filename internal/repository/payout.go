package repository

import (
	"context"
	"fmt"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/jackc/pgx/v5"
)

// PayoutRepository stores commission withdrawals.
type PayoutRepository struct {
	db DB
}

func NewPayoutRepository(db DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// CreateWithinBalance inserts a pending payout only when it fits the
// affiliate's available balance: connected commission minus processed and
// pending payouts. The user row stays locked for the whole check so two
// concurrent requests cannot both spend the same balance. It reports false
// when the balance is too low.
func (r *PayoutRepository) CreateWithinBalance(ctx context.Context, p *domain.Payout) (bool, error) {
	created := false
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var locked string
		if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, p.UserID).Scan(&locked); err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO payouts (id, user_id, amount_cents, status, created_at)
			SELECT $1, $2, $3, $4, $5
			WHERE (SELECT COALESCE(SUM(commission_cents), 0) FROM referrals WHERE referrer_id = $2 AND status = 'connected')
			    - (SELECT COALESCE(SUM(amount_cents), 0) FROM payouts WHERE user_id = $2 AND status IN ('pending', 'processed'))
			    >= $3
		`, p.ID, p.UserID, p.AmountCents, p.Status, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create payout: %w", err)
		}
		created = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *PayoutRepository) FindByID(ctx context.Context, id string) (*domain.Payout, error) {
	var p domain.Payout
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, amount_cents, status, created_at, processed_at FROM payouts WHERE id = $1`, id,
	).Scan(&p.ID, &p.UserID, &p.AmountCents, &p.Status, &p.CreatedAt, &p.ProcessedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payout: %w", err)
	}
	return &p, nil
}

// List returns payouts filtered by user and/or status; empty filters match everything.
func (r *PayoutRepository) List(ctx context.Context, userID, status string) ([]*domain.Payout, error) {
	query := `
		SELECT id, user_id, amount_cents, status, created_at, processed_at
		FROM payouts
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*domain.Payout
	for rows.Next() {
		var p domain.Payout
		if err := rows.Scan(&p.ID, &p.UserID, &p.AmountCents, &p.Status, &p.CreatedAt, &p.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, &p)
	}
	return payouts, rows.Err()
}

// Totals returns the processed and pending payout sums of a user.
func (r *PayoutRepository) Totals(ctx context.Context, userID string) (paid, pending int64, err error) {
	query := `
		SELECT COALESCE(SUM(amount_cents) FILTER (WHERE status = 'processed'), 0),
		       COALESCE(SUM(amount_cents) FILTER (WHERE status = 'pending'), 0)
		FROM payouts WHERE user_id = $1
	`
	if err := r.db.QueryRow(ctx, query, userID).Scan(&paid, &pending); err != nil {
		return 0, 0, fmt.Errorf("failed to sum payouts: %w", err)
	}
	return paid, pending, nil
}

// MarkProcessed moves a pending payout to processed. It reports false when
// the payout was not pending.
func (r *PayoutRepository) MarkProcessed(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE payouts SET status = 'processed', processed_at = NOW() WHERE id = $1 AND status = 'pending'`, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to process payout: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
