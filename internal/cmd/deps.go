package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/courseflow/courseflow/internal/config"
	"github.com/courseflow/courseflow/internal/core"
	"github.com/courseflow/courseflow/internal/core/engine"
	"github.com/courseflow/courseflow/internal/core/store"
	"github.com/courseflow/courseflow/internal/core/usage"
	"github.com/courseflow/courseflow/internal/kv"
	"github.com/courseflow/courseflow/internal/metrics"
	"github.com/courseflow/courseflow/internal/observability"
	"github.com/courseflow/courseflow/internal/server/handlers"
)

func loadConfig(ctx context.Context) (*config.Config, error) {
	config.SetConfigFile(cfgFile)
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	return store.OpenMigrated(ctx, cfg.Store)
}

// openKV returns the guard state backend selected by kv.backend. The libsql
// backend shares the relational store connection.
func openKV(ctx context.Context, cfg *config.Config, db *store.Store) (kv.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.KV.Backend)) {
	case "", kv.BackendMemory:
		return kv.NewMemoryStore(), nil
	case kv.BackendRedis:
		r := cfg.KV.Redis
		return kv.NewRedisStore(ctx, kv.RedisOptions{
			Addr:      r.Addr,
			Username:  r.Username,
			Password:  r.Password,
			DB:        r.DB,
			KeyPrefix: r.KeyPrefix,
			Timeout:   r.Timeout,
		})
	case kv.BackendLibsql:
		if db == nil {
			return nil, fmt.Errorf("kv backend %s needs the relational store", kv.BackendLibsql)
		}
		return db.KV(), nil
	default:
		return nil, fmt.Errorf("unsupported kv.backend %q", cfg.KV.Backend)
	}
}

func newRateLimiter(cfg *config.Config, store kv.Store) *engine.RateLimiter {
	limiter := &engine.RateLimiter{
		Store:      store,
		OnFailOpen: reportFailOpen("ratelimit"),
	}
	limiter.ApplyOverrides(routeLimits(cfg.RateLimit.Routes))
	limiter.ApplySafetyMargin(cfg.RateLimit.Margin)
	return limiter
}

func routeLimits(routes map[string]config.RouteLimitConfig) map[string]engine.RateLimit {
	out := make(map[string]engine.RateLimit, len(routes))
	for name, route := range routes {
		out[name] = engine.RateLimit{RequestsPerWindow: route.Limit, WindowDuration: route.Window}
	}
	return out
}

// guardInfo reports the effective window of every built-in route.
func guardInfo(backend string, limiter *engine.RateLimiter) *handlers.GuardInfo {
	info := &handlers.GuardInfo{KVBackend: strings.ToLower(strings.TrimSpace(backend))}
	for route := range engine.DefaultLimits {
		limit := limiter.Limit(route)
		info.Routes = append(info.Routes, handlers.RouteLimit{
			Route:  route,
			Limit:  limit.RequestsPerWindow,
			Window: limit.WindowDuration.String(),
		})
	}
	info.SortRoutes()
	return info
}

func newWebhookGuard(cfg *config.Config, store kv.Store) *engine.WebhookGuard {
	return &engine.WebhookGuard{
		Store:      store,
		MaxAge:     cfg.Webhook.MaxAge,
		Retention:  cfg.Webhook.Retention,
		MaxEntries: cfg.Webhook.MaxEntries,
		OnFailOpen: reportFailOpen("webhook"),
	}
}

func newUsageService(cfg *config.Config, source usage.DataSource) *usage.Service {
	return &usage.Service{
		Source:      source,
		Limits:      tierLimits(cfg.Usage.Tiers),
		HistoryDays: cfg.Usage.HistoryDays,
	}
}

// tierLimits overlays configured quotas on the published defaults.
func tierLimits(configured map[string]usage.TierLimits) map[core.Tier]usage.TierLimits {
	out := make(map[core.Tier]usage.TierLimits, len(usage.DefaultTierLimits))
	for tier, limits := range usage.DefaultTierLimits {
		out[tier] = limits
	}
	for name, limits := range configured {
		tier := core.Tier(strings.ToLower(strings.TrimSpace(name)))
		if _, known := usage.DefaultTierLimits[tier]; !known {
			continue
		}
		out[tier] = limits
	}
	return out
}

func newSweepers(cfg *config.Config, limiter *engine.RateLimiter, guard *engine.WebhookGuard) []*engine.Sweeper {
	onSweep := func(name string, removed int, err error) {
		if err != nil {
			if observability.ServerLogger != nil {
				observability.ServerLogger.Warn("sweep failed", zap.String("sweeper", name), zap.Error(err))
			}
			return
		}
		metrics.RecordSweep(name, removed)
	}

	return []*engine.Sweeper{
		{Name: "ratelimit", Interval: cfg.RateLimit.SweepInterval, Sweep: limiter.Sweep, OnSweep: onSweep},
		{Name: "webhook", Interval: cfg.Webhook.SweepInterval, Sweep: guard.Sweep, OnSweep: onSweep},
	}
}

func reportFailOpen(component string) func(string, error) {
	return func(operation string, err error) {
		metrics.RecordFailOpen(component, operation)
		if observability.ServerLogger != nil {
			observability.ServerLogger.Warn("guard failed open",
				zap.String("component", component),
				zap.String("operation", operation),
				zap.Error(err))
		}
	}
}
