// Package quota enforces the per-user daily allowance of AI generations.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/affiliatehub/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects to Redis from a redis:// URL.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Limiter counts generations per user and UTC day.
type Limiter struct {
	client     *redis.Client
	defaultMax int
	planMax    map[string]int
	now        func() time.Time
}

// NewLimiter creates a limiter. planMax overrides defaultMax for specific plans.
func NewLimiter(client *redis.Client, defaultMax int, planMax map[string]int) *Limiter {
	return &Limiter{
		client:     client,
		defaultMax: defaultMax,
		planMax:    planMax,
		now:        time.Now,
	}
}

func (l *Limiter) key(userID string, day time.Time) string {
	return fmt.Sprintf("quota:ai:%s:%s", userID, day.UTC().Format("20060102"))
}

func (l *Limiter) max(plan string) int {
	if n, ok := l.planMax[plan]; ok {
		return n
	}
	return l.defaultMax
}

// Ticket is one consumed generation. It remembers the day counter it was
// taken from so a refund lands on that day even after midnight.
type Ticket struct {
	Remaining int
	key       string
}

// Allow consumes one generation and returns a ticket carrying how many remain
// today. A nil limiter allows everything.
func (l *Limiter) Allow(ctx context.Context, userID, plan string) (Ticket, error) {
	if l == nil {
		return Ticket{Remaining: -1}, nil
	}

	key := l.key(userID, l.now())
	limit := l.max(plan)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 26*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return Ticket{}, domain.ErrInternal("failed to check AI quota", err)
	}

	used := int(incr.Val())
	if used > limit {
		return Ticket{}, domain.ErrTooManyRequests(fmt.Sprintf("daily AI limit of %d generations reached", limit))
	}
	return Ticket{Remaining: limit - used, key: key}, nil
}

// Refund gives back the generation t consumed, used when the vendor call failed.
func (l *Limiter) Refund(ctx context.Context, t Ticket) {
	if l == nil || t.key == "" {
		return
	}
	if err := l.client.Decr(ctx, t.key).Err(); err != nil {
		logger.Warn(ctx, "AI quota refund failed", zap.String("key", t.key), zap.Error(err))
	}
}

// Used returns how many generations a user made today.
func (l *Limiter) Used(ctx context.Context, userID string) (int, error) {
	if l == nil {
		return 0, nil
	}
	n, err := l.client.Get(ctx, l.key(userID, l.now())).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read AI quota: %w", err)
	}
	return n, nil
}
