// Package kv provides the key-value table shared by the request guards.
//
// The rate limiter, the webhook limiter and the processed-event table all
// write through Store, so a process-local map and a shared external cache
// can be swapped without touching call sites. Keys are namespaced by the
// caller (for example "rl:", "whrl:", "evt:").
package kv

import (
	"context"
	"errors"
	"time"
)

// Backend names accepted in the kv.backend setting.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendLibsql = "libsql"
)

// ErrInvalidWindow is returned by Increment when the window is not positive.
var ErrInvalidWindow = errors.New("kv: window must be positive")

// Entry is a counter or marker with an absolute expiry.
type Entry struct {
	Key       string    `json:"key"`
	Value     int64     `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is no longer live at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is the persistence contract for guard state.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the entry for key. Expired entries may still be returned;
	// callers compare ExpiresAt themselves.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Set overwrites the entry for key.
	Set(ctx context.Context, key string, value int64, expiresAt time.Time) error

	// Increment applies a fixed-window increment. When the key is missing or
	// its window ended at or before now, the entry restarts at 1 with
	// expiry now+window. Otherwise the count grows and the expiry is kept.
	// It returns the post-increment count and the window reset time.
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error)

	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// DeleteExpired removes every entry whose expiry is at or before before.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)

	// Count returns the number of entries whose key starts with prefix.
	Count(ctx context.Context, prefix string) (int, error)

	// List returns entries whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Close releases resources held by the store.
	Close() error
}

// Ensure interface compliance at compile time.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
