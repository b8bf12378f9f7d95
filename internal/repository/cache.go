package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// SnapshotRepository keeps JSON snapshots of aggregates that are expensive to
// recompute, keyed by name, in the system_cache table.
type SnapshotRepository struct {
	db DB
}

func NewSnapshotRepository(db DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Load decodes the snapshot stored under key into dst and reports when it was
// written. A missing snapshot returns the zero time and no error.
func (r *SnapshotRepository) Load(ctx context.Context, key string, dst any) (time.Time, error) {
	var (
		data      []byte
		updatedAt time.Time
	)
	err := r.db.QueryRow(ctx, `SELECT data, updated_at FROM system_cache WHERE key = $1`, key).Scan(&data, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load snapshot %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return updatedAt, nil
}

// Save replaces the snapshot stored under key.
func (r *SnapshotRepository) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", key, err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO system_cache (key, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = NOW()
	`, key, data)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", key, err)
	}
	return nil
}
