package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/courseflow/courseflow/internal/core"
	"github.com/courseflow/courseflow/internal/kv"
)

// RateLimitQuery selects stored route counters for admin tooling.
type RateLimitQuery struct {
	All    bool
	Route  string
	Caller string
	Prefix string
}

func (q RateLimitQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Route) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --route, or --prefix")
}

// exactKey names the single counter of a route and caller pair. Caller ids
// may prefix one another, so such queries never go through a prefix scan.
func (q RateLimitQuery) exactKey() (string, bool) {
	if q.All {
		return "", false
	}
	route, caller := strings.TrimSpace(q.Route), strings.TrimSpace(q.Caller)
	if route == "" || caller == "" {
		return "", false
	}
	return RouteKey(route, caller), true
}

// keyPrefix maps the query onto the rl: namespace.
func (q RateLimitQuery) keyPrefix() (string, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}
	if q.All {
		return RouteKeyPrefix, nil
	}
	if route := strings.TrimSpace(q.Route); route != "" {
		return RouteKeyPrefix + route + ":", nil
	}
	return RouteKeyPrefix + strings.TrimSpace(q.Prefix), nil
}

func lookupExact(ctx context.Context, store kv.Store, key string) ([]kv.Entry, error) {
	entry, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	entry.Key = key
	return []kv.Entry{entry}, nil
}

// ListRateLimits returns the matching counters ordered by key.
func ListRateLimits(ctx context.Context, store kv.Store, q RateLimitQuery) ([]core.RateLimitEntry, error) {
	if store == nil {
		return nil, errors.New("kv store is not configured")
	}
	prefix, err := q.keyPrefix()
	if err != nil {
		return nil, err
	}

	var entries []kv.Entry
	if key, ok := q.exactKey(); ok {
		entries, err = lookupExact(ctx, store, key)
	} else {
		entries, err = store.List(ctx, prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}

	result := make([]core.RateLimitEntry, 0, len(entries))
	for _, entry := range entries {
		result = append(result, core.RateLimitEntry{
			Key:           entry.Key,
			Count:         entry.Value,
			WindowResetAt: entry.ExpiresAt,
		})
	}
	return result, nil
}

// CountRateLimits returns the number of matching counters.
func CountRateLimits(ctx context.Context, store kv.Store, q RateLimitQuery) (int, error) {
	if store == nil {
		return 0, errors.New("kv store is not configured")
	}
	prefix, err := q.keyPrefix()
	if err != nil {
		return 0, err
	}
	if key, ok := q.exactKey(); ok {
		entries, err := lookupExact(ctx, store, key)
		if err != nil {
			return 0, fmt.Errorf("count rate limits: %w", err)
		}
		return len(entries), nil
	}
	count, err := store.Count(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("count rate limits: %w", err)
	}
	return count, nil
}

// ResetRateLimits deletes the matching counters and returns how many were removed.
func ResetRateLimits(ctx context.Context, store kv.Store, q RateLimitQuery) (int, error) {
	entries, err := ListRateLimits(ctx, store, q)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if err := store.Delete(ctx, entry.Key); err != nil {
			return removed, fmt.Errorf("reset rate limits: %w", err)
		}
		removed++
	}
	return removed, nil
}
