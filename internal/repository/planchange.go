package repository

import (
	"context"
	"fmt"

	"github.com/affiliatehub/backend/internal/domain"
)

// PlanChangeRepository is the append-only log of plan change sagas.
type PlanChangeRepository struct {
	db DB
}

func NewPlanChangeRepository(db DB) *PlanChangeRepository {
	return &PlanChangeRepository{db: db}
}

// Append writes one status row. Rows are never updated.
func (r *PlanChangeRepository) Append(ctx context.Context, l *domain.PlanChangeLog) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO plan_change_logs (id, saga_id, user_id, status, step, detail, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.SagaID, l.UserID, l.Status, l.Step, l.Detail, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append plan change log: %w", err)
	}
	return nil
}

// ListByUser returns every saga row of a user in the order they were written.
func (r *PlanChangeRepository) ListByUser(ctx context.Context, userID string) ([]*domain.PlanChangeLog, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, saga_id, user_id, status, step, detail, created_at FROM plan_change_logs WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan change logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.PlanChangeLog
	for rows.Next() {
		var l domain.PlanChangeLog
		if err := rows.Scan(&l.ID, &l.SagaID, &l.UserID, &l.Status, &l.Step, &l.Detail, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan change log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
