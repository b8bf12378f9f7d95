package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/affiliatehub/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedSnapshot struct {
	data      []byte
	updatedAt time.Time
}

type fakeCache struct {
	entries map[string]cachedSnapshot
	sets    int
}

func (f *fakeCache) Load(_ context.Context, key string, dst any) (time.Time, error) {
	e, ok := f.entries[key]
	if !ok {
		return time.Time{}, nil
	}
	return e.updatedAt, json.Unmarshal(e.data, dst)
}

func (f *fakeCache) Save(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.sets++
	f.entries[key] = cachedSnapshot{data: data, updatedAt: time.Now()}
	return nil
}

type fakeCounters struct {
	calls int
}

func (f *fakeCounters) CountByPlan(context.Context) (map[string]int, error) {
	f.calls++
	return map[string]int{"free": 3, "pro": 2}, nil
}

func (f *fakeCounters) CountActive(context.Context) (int, error) { return 2, nil }

func (f *fakeCounters) SumCaptured(context.Context) (int64, error) { return 9800, nil }

func (f *fakeCounters) CountByKind(context.Context) (map[string]int, error) {
	return map[string]int{"text": 4}, nil
}

func TestSystemStats_CachesSnapshot(t *testing.T) {
	counters := &fakeCounters{}
	cache := &fakeCache{entries: map[string]cachedSnapshot{}}
	payouts := &fakePayouts{byID: map[string]*domain.Payout{
		"p1": {ID: "p1", Status: domain.StatusPending},
		"p2": {ID: "p2", Status: domain.StatusProcessed},
	}}
	refunds := &fakeRefunds{byID: map[string]*domain.RefundRequest{}}

	svc := NewSystemService(cache, StatsSource{
		Users:         counters,
		Subscriptions: counters,
		Orders:        counters,
		Contents:      counters,
		Payouts:       payouts,
		Refunds:       refunds,
	})

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Users)
	assert.Equal(t, 2, stats.ActiveSubscriptions)
	assert.Equal(t, int64(9800), stats.RevenueCents)
	assert.Equal(t, 1, stats.PendingPayouts)
	assert.Equal(t, 0, stats.PendingRefunds)

	again, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, again.Users)
	assert.Equal(t, 1, counters.calls)
	assert.Equal(t, 1, cache.sets)

	svc.now = func() time.Time { return time.Now().Add(statsTTL + time.Minute) }
	_, err = svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counters.calls)
}
