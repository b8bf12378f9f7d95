package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ContentRepository stores saved generations.
type ContentRepository struct {
	db DB
}

func NewContentRepository(db DB) *ContentRepository {
	return &ContentRepository{db: db}
}

func (r *ContentRepository) Create(ctx context.Context, c *domain.Content) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO contents (id, user_id, kind, title, body, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, c.Kind, c.Title, c.Body, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create content: %w", err)
	}
	return nil
}

// ListByUser returns a user's content, optionally filtered by kind.
func (r *ContentRepository) ListByUser(ctx context.Context, userID, kind string) ([]*domain.Content, error) {
	query := `
		SELECT id, user_id, kind, title, body, status, created_at, updated_at
		FROM contents WHERE user_id = $1 AND ($2 = '' OR kind = $2)
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}
	defer rows.Close()

	var items []*domain.Content
	for rows.Next() {
		var c domain.Content
		if err := rows.Scan(&c.ID, &c.UserID, &c.Kind, &c.Title, &c.Body, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan content: %w", err)
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}

// UpdateStatus changes the status of content owned by userID. It reports
// false when no such content exists.
func (r *ContentRepository) UpdateStatus(ctx context.Context, id, userID, status string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE contents SET status = $1, updated_at = NOW() WHERE id = $2 AND user_id = $3`, status, id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update content: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes content owned by userID.
func (r *ContentRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM contents WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete content: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountByKind returns how many items of each kind exist.
func (r *ContentRepository) CountByKind(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `SELECT kind, COUNT(*) FROM contents GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count content: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan content count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// WebsiteRepository stores one landing page per user.
type WebsiteRepository struct {
	db DB
}

func NewWebsiteRepository(db DB) *WebsiteRepository {
	return &WebsiteRepository{db: db}
}

// Upsert creates or replaces the user's website. Editing a published site
// sends it back to draft.
func (r *WebsiteRepository) Upsert(ctx context.Context, w *domain.Website) error {
	content, err := json.Marshal(w.Content)
	if err != nil {
		return fmt.Errorf("failed to encode website content: %w", err)
	}
	query := `
		INSERT INTO websites (id, user_id, username, theme, content, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE
		SET theme = EXCLUDED.theme, content = EXCLUDED.content, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.Exec(ctx, query, w.ID, w.UserID, w.Username, w.Theme, content, w.Status, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save website: %w", err)
	}
	return nil
}

const websiteColumns = `id, user_id, username, theme, content, status, created_at, updated_at`

func scanWebsite(row pgx.Row) (*domain.Website, error) {
	var w domain.Website
	var content []byte
	err := row.Scan(&w.ID, &w.UserID, &w.Username, &w.Theme, &content, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find website: %w", err)
	}
	if err := json.Unmarshal(content, &w.Content); err != nil {
		return nil, fmt.Errorf("failed to decode website content: %w", err)
	}
	return &w, nil
}

func (r *WebsiteRepository) FindByUserID(ctx context.Context, userID string) (*domain.Website, error) {
	return scanWebsite(r.db.QueryRow(ctx, `SELECT `+websiteColumns+` FROM websites WHERE user_id = $1`, userID))
}

// FindPublishedByUsername returns a public site, or nil when none is published.
func (r *WebsiteRepository) FindPublishedByUsername(ctx context.Context, username string) (*domain.Website, error) {
	return scanWebsite(r.db.QueryRow(ctx,
		`SELECT `+websiteColumns+` FROM websites WHERE username = $1 AND status = 'published'`, username,
	))
}

func (r *WebsiteRepository) UpdateStatus(ctx context.Context, userID, status string) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE websites SET status = $1, updated_at = NOW() WHERE user_id = $2`, status, userID)
	if err != nil {
		return false, fmt.Errorf("failed to update website: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
