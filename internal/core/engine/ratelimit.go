package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/courseflow/courseflow/internal/core"
	"github.com/courseflow/courseflow/internal/kv"
)

// RouteKeyPrefix namespaces per-route counters in the shared table.
const RouteKeyPrefix = "rl:"

// Route names for the guarded endpoints.
const (
	RouteCheckout   = "checkout"
	RoutePortal     = "portal"
	RouteWebhook    = "webhook"
	RouteUsage      = "usage"
	RouteAbuseCheck = "abuse-check"
	RouteDedupStats = "dedup-stats"
	RouteAdminAbuse = "admin-abuse"
)

// RateLimiter enforces fixed-window limits per (route, caller).
type RateLimiter struct {
	Store  kv.Store
	Limits map[string]RateLimit
	Clock  func() time.Time
	Margin float64

	// OnFailOpen is called whenever a request is admitted because the
	// limiter could not reach a decision.
	OnFailOpen func(route string, err error)
}

// RateLimit represents a rate limit window.
type RateLimit struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// DefaultLimits lists the limits applied to the guarded routes.
var DefaultLimits = map[string]RateLimit{
	RouteCheckout:   {RequestsPerWindow: 3, WindowDuration: 15 * time.Minute},
	RoutePortal:     {RequestsPerWindow: 5, WindowDuration: time.Hour},
	RouteWebhook:    {RequestsPerWindow: 100, WindowDuration: time.Minute},
	RouteUsage:      {RequestsPerWindow: 60, WindowDuration: time.Hour},
	RouteAbuseCheck: {RequestsPerWindow: 60, WindowDuration: time.Hour},
	RouteDedupStats: {RequestsPerWindow: 60, WindowDuration: time.Hour},
	RouteAdminAbuse: {RequestsPerWindow: 60, WindowDuration: time.Hour},
}

// Valid reports whether the policy can be enforced.
func (l RateLimit) Valid() bool {
	return l.RequestsPerWindow > 0 && l.WindowDuration > 0
}

// Check applies the configured limit for route to callerID.
func (r *RateLimiter) Check(ctx context.Context, route, callerID string) core.RateLimitResult {
	limit := r.getLimit(route)
	return r.CheckRateLimit(ctx, route, callerID, limit.RequestsPerWindow, limit.WindowDuration)
}

// CheckRateLimit counts one request against the window for route and
// callerID. It never returns an error: store failures, invalid policies and
// panics admit the request with FailedOpen set.
func (r *RateLimiter) CheckRateLimit(ctx context.Context, route, callerID string, limit int, window time.Duration) (result core.RateLimitResult) {
	now := r.now()
	result = core.RateLimitResult{Allowed: true, Limit: limit, Remaining: limit, ResetAt: now.Add(window)}

	defer func() {
		if rec := recover(); rec != nil {
			result = r.failOpen(route, limit, now, window, fmt.Errorf("rate limiter panic: %v", rec))
		}
	}()

	if r == nil || r.Store == nil {
		return r.failOpen(route, limit, now, window, fmt.Errorf("rate limiter has no store"))
	}
	if !(RateLimit{RequestsPerWindow: limit, WindowDuration: window}).Valid() {
		return r.failOpen(route, limit, now, window, fmt.Errorf("invalid rate limit %d per %s", limit, window))
	}

	count, resetAt, err := r.Store.Increment(ctx, RouteKey(route, callerID), now, window)
	if err != nil {
		return r.failOpen(route, limit, now, window, err)
	}

	return Decide(count, limit, resetAt, now)
}

// Decide turns a post-increment count into a limiter decision.
func Decide(count int64, limit int, resetAt, now time.Time) core.RateLimitResult {
	result := core.RateLimitResult{
		Allowed: count <= int64(limit),
		Limit:   limit,
		ResetAt: resetAt,
	}
	if result.Allowed {
		result.Remaining = limit - int(count)
		return result
	}

	result.Remaining = 0
	result.RetryAfter = resetAt.Sub(now)
	if result.RetryAfter < 0 {
		result.RetryAfter = 0
	}
	return result
}

// Reset clears the counter for route and callerID.
func (r *RateLimiter) Reset(ctx context.Context, route, callerID string) error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Delete(ctx, RouteKey(route, callerID))
}

// Sweep removes every expired entry from the shared table.
func (r *RateLimiter) Sweep(ctx context.Context) (int, error) {
	if r == nil || r.Store == nil {
		return 0, nil
	}
	return r.Store.DeleteExpired(ctx, r.now())
}

// ApplyOverrides merges per-route overrides on top of DefaultLimits.
// Invalid overrides are ignored.
func (r *RateLimiter) ApplyOverrides(overrides map[string]RateLimit) {
	if r == nil || len(overrides) == 0 {
		return
	}

	if r.Limits == nil {
		r.Limits = make(map[string]RateLimit, len(DefaultLimits))
		for key, limit := range DefaultLimits {
			r.Limits[key] = limit
		}
	}

	for route, limit := range overrides {
		route = strings.TrimSpace(route)
		if route == "" || !limit.Valid() {
			continue
		}
		r.Limits[route] = limit
	}
}

// ApplySafetyMargin adjusts the effective request limits by a ratio (0-1].
func (r *RateLimiter) ApplySafetyMargin(margin float64) {
	if r == nil {
		return
	}
	if margin <= 0 || margin > 1 {
		return
	}
	r.Margin = margin
}

// Limit returns the effective limit for route.
func (r *RateLimiter) Limit(route string) RateLimit {
	return r.getLimit(route)
}

// RouteKey builds the composite key for a route and caller.
func RouteKey(route, callerID string) string {
	return RouteKeyPrefix + route + ":" + callerID
}

func (r *RateLimiter) failOpen(route string, limit int, now time.Time, window time.Duration, err error) core.RateLimitResult {
	if r != nil && r.OnFailOpen != nil {
		r.OnFailOpen(route, err)
	}
	if limit < 0 {
		limit = 0
	}
	return core.RateLimitResult{
		Allowed:    true,
		Limit:      limit,
		Remaining:  limit,
		ResetAt:    now.Add(window),
		FailedOpen: true,
	}
}

func (r *RateLimiter) getLimit(route string) RateLimit {
	if r == nil {
		return RateLimit{RequestsPerWindow: 60, WindowDuration: time.Hour}
	}

	limits := r.Limits
	if limits == nil {
		limits = DefaultLimits
	}

	if limit, ok := limits[route]; ok {
		return r.applyMargin(limit)
	}

	return r.applyMargin(RateLimit{RequestsPerWindow: 60, WindowDuration: time.Hour})
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func (r *RateLimiter) applyMargin(limit RateLimit) RateLimit {
	if r == nil || r.Margin <= 0 || r.Margin > 1 {
		return limit
	}
	adjusted := int(math.Floor(float64(limit.RequestsPerWindow) * r.Margin))
	if adjusted < 1 {
		adjusted = 1
	}
	limit.RequestsPerWindow = adjusted
	return limit
}
