package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseflow/courseflow/internal/kv"
)

type failingStore struct {
	kv.Store
	err   error
	panic bool
}

func (f *failingStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	if f.panic {
		panic("boom")
	}
	return 0, time.Time{}, f.err
}

func (f *failingStore) Get(ctx context.Context, key string) (kv.Entry, bool, error) {
	return kv.Entry{}, false, f.err
}

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := &RateLimiter{
		Store: kv.NewMemoryStore(),
		Clock: func() time.Time { return clock },
	}

	for i := 1; i <= 3; i++ {
		res := limiter.CheckRateLimit(context.Background(), RouteCheckout, "user-1", 3, 15*time.Minute)
		require.True(t, res.Allowed, "request %d", i)
		require.Equal(t, 3-i, res.Remaining)
		require.Equal(t, clock.Add(15*time.Minute), res.ResetAt)
	}

	res := limiter.CheckRateLimit(context.Background(), RouteCheckout, "user-1", 3, 15*time.Minute)
	require.False(t, res.Allowed)
	require.Equal(t, 0, res.Remaining)
	require.Equal(t, 15*time.Minute, res.RetryAfter)
}

func TestRateLimiterWindowResets(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := &RateLimiter{
		Store: kv.NewMemoryStore(),
		Clock: func() time.Time { return clock },
	}

	for i := 0; i < 10; i++ {
		limiter.CheckRateLimit(context.Background(), RoutePortal, "user-1", 5, time.Hour)
	}

	clock = clock.Add(time.Hour)
	res := limiter.CheckRateLimit(context.Background(), RoutePortal, "user-1", 5, time.Hour)
	require.True(t, res.Allowed)
	require.Equal(t, 4, res.Remaining)
	require.Equal(t, clock.Add(time.Hour), res.ResetAt)
}

func TestRateLimiterWindowIsFixed(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	limiter := &RateLimiter{
		Store: kv.NewMemoryStore(),
		Clock: func() time.Time { return clock },
	}

	limiter.CheckRateLimit(context.Background(), RouteUsage, "ip-1", 60, time.Hour)
	clock = start.Add(30 * time.Minute)
	res := limiter.CheckRateLimit(context.Background(), RouteUsage, "ip-1", 60, time.Hour)
	require.Equal(t, start.Add(time.Hour), res.ResetAt)
}

func TestRateLimiterFiveRequestsScenario(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := start
	limiter := &RateLimiter{
		Store: kv.NewMemoryStore(),
		Clock: func() time.Time { return clock },
	}

	var allowed, denied int
	for i := 0; i < 5; i++ {
		clock = start.Add(time.Duration(i) * 200 * time.Millisecond)
		res := limiter.Check(context.Background(), RouteCheckout, "user-1")
		if res.Allowed {
			allowed++
			continue
		}
		denied++
		assert.Equal(t, 0, res.Remaining)
		assert.InDelta(t, (15 * time.Minute).Seconds(), res.RetryAfter.Seconds(), 1)
	}

	assert.Equal(t, 3, allowed)
	assert.Equal(t, 2, denied)
}

func TestRateLimiterSeparatesCallersAndRoutes(t *testing.T) {
	limiter := &RateLimiter{Store: kv.NewMemoryStore()}

	res := limiter.CheckRateLimit(context.Background(), RouteCheckout, "a", 1, time.Minute)
	require.True(t, res.Allowed)
	res = limiter.CheckRateLimit(context.Background(), RouteCheckout, "b", 1, time.Minute)
	require.True(t, res.Allowed)
	res = limiter.CheckRateLimit(context.Background(), RoutePortal, "a", 1, time.Minute)
	require.True(t, res.Allowed)
	res = limiter.CheckRateLimit(context.Background(), RouteCheckout, "a", 1, time.Minute)
	require.False(t, res.Allowed)
}

func TestRateLimiterFailsOpen(t *testing.T) {
	var failures []string
	hook := func(route string, err error) { failures = append(failures, route) }

	t.Run("StoreError", func(t *testing.T) {
		limiter := &RateLimiter{Store: &failingStore{err: errors.New("down")}, OnFailOpen: hook}
		res := limiter.CheckRateLimit(context.Background(), RouteCheckout, "u", 3, time.Minute)
		require.True(t, res.Allowed)
		require.True(t, res.FailedOpen)
	})

	t.Run("Panic", func(t *testing.T) {
		limiter := &RateLimiter{Store: &failingStore{panic: true}, OnFailOpen: hook}
		res := limiter.CheckRateLimit(context.Background(), RouteCheckout, "u", 3, time.Minute)
		require.True(t, res.Allowed)
		require.True(t, res.FailedOpen)
	})

	t.Run("InvalidPolicy", func(t *testing.T) {
		limiter := &RateLimiter{Store: kv.NewMemoryStore(), OnFailOpen: hook}
		res := limiter.CheckRateLimit(context.Background(), RouteCheckout, "u", 0, time.Minute)
		require.True(t, res.Allowed)
		res = limiter.CheckRateLimit(context.Background(), RouteCheckout, "u", 3, 0)
		require.True(t, res.Allowed)
	})

	t.Run("NilStore", func(t *testing.T) {
		var limiter *RateLimiter
		res := limiter.CheckRateLimit(context.Background(), RouteCheckout, "u", 3, time.Minute)
		require.True(t, res.Allowed)
	})

	require.Len(t, failures, 4)
}

func TestRateLimiterSweep(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := kv.NewMemoryStore()
	limiter := &RateLimiter{Store: store, Clock: func() time.Time { return clock }}

	limiter.CheckRateLimit(context.Background(), RouteCheckout, "a", 3, time.Minute)
	limiter.CheckRateLimit(context.Background(), RoutePortal, "a", 3, time.Hour)

	clock = clock.Add(2 * time.Minute)
	removed, err := limiter.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, 1, store.Size())
}

func TestRateLimiterReset(t *testing.T) {
	limiter := &RateLimiter{Store: kv.NewMemoryStore()}

	limiter.CheckRateLimit(context.Background(), RouteCheckout, "a", 1, time.Minute)
	require.False(t, limiter.CheckRateLimit(context.Background(), RouteCheckout, "a", 1, time.Minute).Allowed)

	require.NoError(t, limiter.Reset(context.Background(), RouteCheckout, "a"))
	require.True(t, limiter.CheckRateLimit(context.Background(), RouteCheckout, "a", 1, time.Minute).Allowed)
}

func TestRateLimiterOverridesAndMargin(t *testing.T) {
	limiter := &RateLimiter{}
	limiter.ApplyOverrides(map[string]RateLimit{
		RouteCheckout: {RequestsPerWindow: 10, WindowDuration: time.Minute},
		RoutePortal:   {RequestsPerWindow: 0, WindowDuration: time.Minute},
		"  ":          {RequestsPerWindow: 1, WindowDuration: time.Minute},
	})

	require.Equal(t, RateLimit{RequestsPerWindow: 10, WindowDuration: time.Minute}, limiter.Limit(RouteCheckout))
	require.Equal(t, DefaultLimits[RoutePortal], limiter.Limit(RoutePortal))

	limiter.ApplySafetyMargin(0.5)
	require.Equal(t, 5, limiter.Limit(RouteCheckout).RequestsPerWindow)
	require.Equal(t, 30, limiter.Limit("unknown").RequestsPerWindow)

	limiter.ApplySafetyMargin(0.01)
	require.Equal(t, 1, limiter.Limit(RouteCheckout).RequestsPerWindow)
}

func TestDecide(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	reset := now.Add(90 * time.Second)

	res := Decide(2, 3, reset, now)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
	assert.Zero(t, res.RetryAfter)

	res = Decide(4, 3, reset, now)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 90*time.Second, res.RetryAfter)
}
