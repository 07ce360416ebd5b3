package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/courseflow/courseflow/internal/core"
	"github.com/courseflow/courseflow/internal/kv"
)

// Key prefixes for webhook state.
const (
	WebhookLimitPrefix = "whrl:"
	EventKeyPrefix     = "evt:"
)

// Webhook guard defaults.
const (
	DefaultWebhookMaxAge     = 300 * time.Second
	DefaultEventRetention    = 24 * time.Hour
	DefaultMaxProcessedCount = 10000
)

// WebhookRateLimitOptions configures the ingress limiter.
type WebhookRateLimitOptions struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultWebhookRateLimit allows 100 deliveries per minute per identifier.
var DefaultWebhookRateLimit = WebhookRateLimitOptions{Window: time.Minute, MaxRequests: 100}

// WebhookGuard rejects stale, replayed and flooding webhook deliveries.
type WebhookGuard struct {
	Store      kv.Store
	Clock      func() time.Time
	MaxAge     time.Duration
	Retention  time.Duration
	MaxEntries int

	// OnFailOpen is called when a store failure forces a permissive answer.
	OnFailOpen func(op string, err error)
}

// VerifyWebhookTimestamp reports whether header carries a Unix timestamp
// strictly between now-maxAge and now.
func VerifyWebhookTimestamp(header string, maxAge time.Duration, now time.Time) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	ts, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return false
	}
	if maxAge <= 0 {
		maxAge = DefaultWebhookMaxAge
	}

	age := now.Sub(time.Unix(ts, 0))
	return age > 0 && age < maxAge
}

// VerifyTimestamp applies VerifyWebhookTimestamp with the guard's clock and
// max age.
func (g *WebhookGuard) VerifyTimestamp(header string) bool {
	return VerifyWebhookTimestamp(header, g.maxAge(), g.now())
}

// IsEventProcessed reports whether eventID was marked within the retention
// window. An expired record is purged and reported unseen. Store failures
// report unseen so that the idempotent business effect decides.
func (g *WebhookGuard) IsEventProcessed(ctx context.Context, eventID string) bool {
	if g == nil || g.Store == nil || eventID == "" {
		return false
	}

	key := EventKeyPrefix + eventID
	entry, ok, err := g.Store.Get(ctx, key)
	if err != nil {
		g.failOpen("lookup", err)
		return false
	}
	if !ok {
		return false
	}

	if entry.Expired(g.now()) {
		if err := g.Store.Delete(ctx, key); err != nil {
			g.failOpen("purge", err)
		}
		return false
	}
	return true
}

// MarkEventProcessed records eventID as handled now. When the table holds
// more than MaxEntries events, every expired record is purged.
func (g *WebhookGuard) MarkEventProcessed(ctx context.Context, eventID string) error {
	if g == nil || g.Store == nil {
		return nil
	}
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}

	now := g.now()
	if err := g.Store.Set(ctx, EventKeyPrefix+eventID, now.Unix(), now.Add(g.retention())); err != nil {
		return fmt.Errorf("mark event %s: %w", eventID, err)
	}

	count, err := g.Store.Count(ctx, EventKeyPrefix)
	if err != nil {
		g.failOpen("count", err)
		return nil
	}
	if count > g.maxEntries() {
		if _, err := g.Store.DeleteExpired(ctx, now); err != nil {
			g.failOpen("purge", err)
		}
	}
	return nil
}

// ProcessedEvent returns the stored record for eventID, if live.
func (g *WebhookGuard) ProcessedEvent(ctx context.Context, eventID string) (core.ProcessedEventRecord, bool, error) {
	if g == nil || g.Store == nil {
		return core.ProcessedEventRecord{}, false, nil
	}
	entry, ok, err := g.Store.Get(ctx, EventKeyPrefix+eventID)
	if err != nil || !ok || entry.Expired(g.now()) {
		return core.ProcessedEventRecord{}, false, err
	}
	return core.ProcessedEventRecord{EventID: eventID, ProcessedAt: time.Unix(entry.Value, 0).UTC()}, true, nil
}

// CheckWebhookRateLimit applies the coarse ingress limiter to identifier.
// Failures admit the delivery.
func (g *WebhookGuard) CheckWebhookRateLimit(ctx context.Context, identifier string, opts WebhookRateLimitOptions) (result core.WebhookRateLimitResult) {
	result = core.WebhookRateLimitResult{Allowed: true}

	defer func() {
		if rec := recover(); rec != nil {
			g.failOpen("ratelimit", fmt.Errorf("webhook limiter panic: %v", rec))
			result = core.WebhookRateLimitResult{Allowed: true}
		}
	}()

	if g == nil || g.Store == nil {
		return result
	}
	if opts.Window <= 0 || opts.MaxRequests <= 0 {
		opts = DefaultWebhookRateLimit
	}

	now := g.now()
	count, resetAt, err := g.Store.Increment(ctx, WebhookLimitPrefix+identifier, now, opts.Window)
	if err != nil {
		g.failOpen("ratelimit", err)
		return result
	}

	decision := Decide(count, opts.MaxRequests, resetAt, now)
	return core.WebhookRateLimitResult{
		Allowed:    decision.Allowed,
		Limit:      decision.Limit,
		Remaining:  decision.Remaining,
		ResetAt:    decision.ResetAt,
		RetryAfter: decision.RetryAfter,
	}
}

// Sweep removes expired webhook limiter and event entries.
func (g *WebhookGuard) Sweep(ctx context.Context) (int, error) {
	if g == nil || g.Store == nil {
		return 0, nil
	}
	return g.Store.DeleteExpired(ctx, g.now())
}

func (g *WebhookGuard) failOpen(op string, err error) {
	if g != nil && g.OnFailOpen != nil {
		g.OnFailOpen(op, err)
	}
}

func (g *WebhookGuard) now() time.Time {
	if g != nil && g.Clock != nil {
		return g.Clock()
	}
	return time.Now().UTC()
}

func (g *WebhookGuard) maxAge() time.Duration {
	if g == nil || g.MaxAge <= 0 {
		return DefaultWebhookMaxAge
	}
	return g.MaxAge
}

func (g *WebhookGuard) retention() time.Duration {
	if g == nil || g.Retention <= 0 {
		return DefaultEventRetention
	}
	return g.Retention
}

func (g *WebhookGuard) maxEntries() int {
	if g == nil || g.MaxEntries <= 0 {
		return DefaultMaxProcessedCount
	}
	return g.MaxEntries
}
