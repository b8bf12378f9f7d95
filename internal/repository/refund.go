package repository

import (
	"context"
	"fmt"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/jackc/pgx/v5"
)

// RefundRepository stores customer refund requests.
type RefundRepository struct {
	db DB
}

func NewRefundRepository(db DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, req *domain.RefundRequest) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO refund_requests (id, user_id, order_id, reason, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		req.ID, req.UserID, req.OrderID, req.Reason, req.Status, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create refund request: %w", err)
	}
	return nil
}

func (r *RefundRepository) FindByID(ctx context.Context, id string) (*domain.RefundRequest, error) {
	var req domain.RefundRequest
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, order_id, reason, status, created_at, processed_at FROM refund_requests WHERE id = $1`, id,
	).Scan(&req.ID, &req.UserID, &req.OrderID, &req.Reason, &req.Status, &req.CreatedAt, &req.ProcessedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find refund request: %w", err)
	}
	return &req, nil
}

// List returns refund requests filtered by user and/or status.
func (r *RefundRepository) List(ctx context.Context, userID, status string) ([]*domain.RefundRequest, error) {
	query := `
		SELECT id, user_id, order_id, reason, status, created_at, processed_at
		FROM refund_requests
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list refund requests: %w", err)
	}
	defer rows.Close()

	var reqs []*domain.RefundRequest
	for rows.Next() {
		var req domain.RefundRequest
		if err := rows.Scan(&req.ID, &req.UserID, &req.OrderID, &req.Reason, &req.Status, &req.CreatedAt, &req.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan refund request: %w", err)
		}
		reqs = append(reqs, &req)
	}
	return reqs, rows.Err()
}

// MarkProcessed moves a pending refund request to processed.
func (r *RefundRepository) MarkProcessed(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE refund_requests SET status = 'processed', processed_at = NOW() WHERE id = $1 AND status = 'pending'`, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to process refund request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
