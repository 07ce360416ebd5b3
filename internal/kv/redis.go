package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the redis backend.
type RedisOptions struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	Timeout   time.Duration
}

// RedisStore keeps guard state in redis so several instances share counters.
//
// Values are plain integers; expiry is stored as the key TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	owned  bool
}

// incrementScript implements the fixed-window increment atomically:
// the first hit in a window sets the TTL, later hits keep it.
var incrementScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if tonumber(current) == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// NewRedisStore dials redis and verifies connectivity.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("kv: redis address is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("kv: ping redis %s: %w", opts.Addr, err)
	}

	store := NewRedisStoreFromClient(client, opts.KeyPrefix)
	store.owned = true
	return store, nil
}

// NewRedisStoreFromClient wraps an existing client. The caller keeps
// ownership of the client; Close is a no-op.
func NewRedisStoreFromClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

func (s *RedisStore) stripPrefix(key string) string {
	return strings.TrimPrefix(key, s.prefix)
}

// Get returns the entry for key. Redis evicts expired keys itself, so a
// returned entry is always live.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, s.redisKey(key))
	ttlCmd := pipe.PTTL(ctx, s.redisKey(key))
	_, err := pipe.Exec(ctx)
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("kv: redis get %s: %w", key, err)
	}

	value, err := getCmd.Int64()
	if err != nil {
		return Entry{}, false, fmt.Errorf("kv: redis parse %s: %w", key, err)
	}

	return Entry{Key: key, Value: value, ExpiresAt: expiryFromTTL(time.Now(), ttlCmd.Val())}, true, nil
}

// Set writes value with a TTL derived from expiresAt. An expiry in the past
// deletes the key.
func (s *RedisStore) Set(ctx context.Context, key string, value int64, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	if err := s.client.Set(ctx, s.redisKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("kv: redis set %s: %w", key, err)
	}
	return nil
}

// Increment runs the fixed-window script. Redis owns the clock for TTLs, so
// now is only used to translate the remaining TTL into a reset time.
func (s *RedisStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	if window <= 0 {
		return 0, time.Time{}, ErrInvalidWindow
	}

	res, err := incrementScript.Run(ctx, s.client, []string{s.redisKey(key)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("kv: redis increment %s: %w", key, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("kv: redis increment %s: unexpected reply length %d", key, len(res))
	}

	return res[0], now.Add(time.Duration(res[1]) * time.Millisecond), nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("kv: redis delete %s: %w", key, err)
	}
	return nil
}

// DeleteExpired is a no-op: redis expires keys on its own.
func (s *RedisStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	return 0, nil
}

// Count scans keys with the given prefix.
func (s *RedisStore) Count(ctx context.Context, prefix string) (int, error) {
	keys, err := s.scan(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// List scans keys with the given prefix and loads their values and TTLs.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	keys, err := s.scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []Entry{}, nil
	}

	pipe := s.client.Pipeline()
	getCmds := make([]*redis.StringCmd, len(keys))
	ttlCmds := make([]*redis.DurationCmd, len(keys))
	for i, key := range keys {
		getCmds[i] = pipe.Get(ctx, key)
		ttlCmds[i] = pipe.PTTL(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("kv: redis list %s: %w", prefix, err)
	}

	now := time.Now()
	entries := make([]Entry, 0, len(keys))
	for i, key := range keys {
		value, err := getCmds[i].Int64()
		if err != nil {
			// Expired between SCAN and GET.
			continue
		}
		entries = append(entries, Entry{
			Key:       s.stripPrefix(key),
			Value:     value,
			ExpiresAt: expiryFromTTL(now, ttlCmds[i].Val()),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (s *RedisStore) scan(ctx context.Context, prefix string) ([]string, error) {
	pattern := globEscaper.Replace(s.redisKey(prefix)) + "*"
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return nil, fmt.Errorf("kv: redis scan %s: %w", prefix, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// globEscaper quotes the SCAN MATCH metacharacters so caller ids
// containing them match literally.
var globEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
)

// Close closes the client when the store dialed it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func expiryFromTTL(now time.Time, ttl time.Duration) time.Time {
	if ttl < 0 {
		// -1: no TTL, -2: missing. Treat both as already due.
		return now
	}
	return now.Add(ttl)
}
