package service

import (
	"context"
	"time"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/pkg/logger"
	"go.uber.org/zap"
)

const (
	statsCacheKey = "admin_stats"
	statsTTL      = 5 * time.Minute
)

type snapshotCache interface {
	Load(ctx context.Context, key string, dst any) (time.Time, error)
	Save(ctx context.Context, key string, v any) error
}

// StatsSource is the set of counters the admin overview is built from.
type StatsSource struct {
	Users interface {
		CountByPlan(ctx context.Context) (map[string]int, error)
	}
	Subscriptions interface {
		CountActive(ctx context.Context) (int, error)
	}
	Orders interface {
		SumCaptured(ctx context.Context) (int64, error)
	}
	Contents interface {
		CountByKind(ctx context.Context) (map[string]int, error)
	}
	Payouts interface {
		List(ctx context.Context, userID, status string) ([]*domain.Payout, error)
	}
	Refunds interface {
		List(ctx context.Context, userID, status string) ([]*domain.RefundRequest, error)
	}
}

// SystemService handles platform-wide operations like the admin overview.
type SystemService struct {
	cache snapshotCache
	src   StatsSource
	now   func() time.Time
}

// NewSystemService creates a new SystemService. cache may be nil.
func NewSystemService(cache snapshotCache, src StatsSource) *SystemService {
	return &SystemService{cache: cache, src: src, now: time.Now}
}

// Stats returns the cached overview, rebuilding it when older than five minutes.
func (s *SystemService) Stats(ctx context.Context) (*domain.AdminStats, error) {
	if s.cache != nil {
		var stats domain.AdminStats
		updatedAt, err := s.cache.Load(ctx, statsCacheKey, &stats)
		if err != nil {
			logger.Error(ctx, "failed to read stats cache", err)
		} else if !updatedAt.IsZero() && s.now().Sub(updatedAt) < statsTTL {
			return &stats, nil
		}
	}
	return s.RefreshStats(ctx)
}

// RefreshStats recomputes the overview and stores it in the cache.
func (s *SystemService) RefreshStats(ctx context.Context) (*domain.AdminStats, error) {
	byPlan, err := s.src.Users.CountByPlan(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to count users", err)
	}
	active, err := s.src.Subscriptions.CountActive(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to count subscriptions", err)
	}
	revenue, err := s.src.Orders.SumCaptured(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to sum revenue", err)
	}
	byKind, err := s.src.Contents.CountByKind(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to count content", err)
	}
	payouts, err := s.src.Payouts.List(ctx, "", domain.StatusPending)
	if err != nil {
		return nil, domain.ErrInternal("failed to list payouts", err)
	}
	refunds, err := s.src.Refunds.List(ctx, "", domain.StatusPending)
	if err != nil {
		return nil, domain.ErrInternal("failed to list refund requests", err)
	}

	stats := &domain.AdminStats{
		UsersByPlan:         byPlan,
		ActiveSubscriptions: active,
		RevenueCents:        revenue,
		ContentByKind:       byKind,
		PendingPayouts:      len(payouts),
		PendingRefunds:      len(refunds),
		GeneratedAt:         s.now(),
	}
	for _, n := range byPlan {
		stats.Users += n
	}

	if s.cache != nil {
		if err := s.cache.Save(ctx, statsCacheKey, stats); err != nil {
			logger.Warn(ctx, "failed to cache stats", zap.Error(err))
		}
	}
	return stats, nil
}
