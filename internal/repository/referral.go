package repository

import (
	"context"
	"fmt"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ReferralRepository stores sign-ups made through referral codes.
type ReferralRepository struct {
	db DB
}

func NewReferralRepository(db DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// Create records a pending referral. A second referral for the same e-mail is ignored.
func (r *ReferralRepository) Create(ctx context.Context, ref *domain.Referral) error {
	query := `
		INSERT INTO referrals (id, referrer_id, referred_email, status, commission_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (referred_email) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, ref.ID, ref.ReferrerID, ref.ReferredEmail, ref.Status, ref.CommissionCents, ref.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create referral: %w", err)
	}
	return nil
}

// FindByEmail returns the referral of a referred e-mail, or nil.
func (r *ReferralRepository) FindByEmail(ctx context.Context, email string) (*domain.Referral, error) {
	query := `
		SELECT id, referrer_id, referred_email, status, commission_cents, created_at, connected_at
		FROM referrals WHERE referred_email = $1
	`
	var ref domain.Referral
	err := r.db.QueryRow(ctx, query, email).Scan(
		&ref.ID, &ref.ReferrerID, &ref.ReferredEmail, &ref.Status, &ref.CommissionCents, &ref.CreatedAt, &ref.ConnectedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find referral: %w", err)
	}
	return &ref, nil
}

// Connect moves a pending referral to connected. It reports false when the
// referral was not pending.
func (r *ReferralRepository) Connect(ctx context.Context, id string, commissionCents int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE referrals SET status = 'connected', commission_cents = $1, connected_at = NOW() WHERE id = $2 AND status = 'pending'`,
		commissionCents, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to connect referral: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByReferrer returns the referrals of one affiliate, newest first.
func (r *ReferralRepository) ListByReferrer(ctx context.Context, referrerID string) ([]*domain.Referral, error) {
	query := `
		SELECT id, referrer_id, referred_email, status, commission_cents, created_at, connected_at
		FROM referrals WHERE referrer_id = $1 ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	defer rows.Close()

	var refs []*domain.Referral
	for rows.Next() {
		var ref domain.Referral
		if err := rows.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredEmail, &ref.Status, &ref.CommissionCents, &ref.CreatedAt, &ref.ConnectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral: %w", err)
		}
		refs = append(refs, &ref)
	}
	return refs, rows.Err()
}

// ReferralStats aggregates the referrals of one affiliate.
type ReferralStats struct {
	Total       int
	Connected   int
	EarnedCents int64
}

// Stats returns referral counts and the commission earned by an affiliate.
func (r *ReferralRepository) Stats(ctx context.Context, referrerID string) (*ReferralStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'connected'),
		       COALESCE(SUM(commission_cents) FILTER (WHERE status = 'connected'), 0)
		FROM referrals WHERE referrer_id = $1
	`
	var s ReferralStats
	if err := r.db.QueryRow(ctx, query, referrerID).Scan(&s.Total, &s.Connected, &s.EarnedCents); err != nil {
		return nil, fmt.Errorf("failed to aggregate referrals: %w", err)
	}
	return &s, nil
}
