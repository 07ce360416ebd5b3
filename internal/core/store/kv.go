package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/courseflow/courseflow/internal/kv"
)

var _ kv.Store = (*KVStore)(nil)

// KVStore keeps guard state in the kv_entries table so every instance
// pointed at the same database shares counters and processed events.
type KVStore struct {
	store *Store
}

// KV returns a kv.Store backed by this database. Closing it leaves the
// database open.
func (s *Store) KV() *KVStore {
	return &KVStore{store: s}
}

func (k *KVStore) Get(ctx context.Context, key string) (kv.Entry, bool, error) {
	ctx, err := k.store.ready(ctx)
	if err != nil {
		return kv.Entry{}, false, err
	}

	var value, expiresAt int64
	row := k.store.DB.QueryRowContext(ctx, `SELECT value, expires_at FROM kv_entries WHERE key = ?`, key)
	if err := row.Scan(&value, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return kv.Entry{}, false, nil
		}
		return kv.Entry{}, false, fmt.Errorf("get kv entry: %w", err)
	}
	return kv.Entry{Key: key, Value: value, ExpiresAt: fromMillis(expiresAt)}, true, nil
}

func (k *KVStore) Set(ctx context.Context, key string, value int64, expiresAt time.Time) error {
	ctx, err := k.store.ready(ctx)
	if err != nil {
		return err
	}

	_, err = k.store.DB.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
	`, key, value, expiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("set kv entry: %w", err)
	}
	return nil
}

// Increment runs as one upsert so concurrent instances cannot lose updates.
func (k *KVStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	if window <= 0 {
		return 0, time.Time{}, kv.ErrInvalidWindow
	}
	ctx, err := k.store.ready(ctx)
	if err != nil {
		return 0, time.Time{}, err
	}

	nowMS := now.UnixMilli()
	var count, expiresAt int64
	row := k.store.DB.QueryRowContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at)
		VALUES (?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = CASE WHEN kv_entries.expires_at <= ? THEN 1 ELSE kv_entries.value + 1 END,
			expires_at = CASE WHEN kv_entries.expires_at <= ? THEN excluded.expires_at ELSE kv_entries.expires_at END
		RETURNING value, expires_at
	`, key, now.Add(window).UnixMilli(), nowMS, nowMS)
	if err := row.Scan(&count, &expiresAt); err != nil {
		return 0, time.Time{}, fmt.Errorf("increment kv entry: %w", err)
	}
	return count, fromMillis(expiresAt), nil
}

func (k *KVStore) Delete(ctx context.Context, key string) error {
	ctx, err := k.store.ready(ctx)
	if err != nil {
		return err
	}
	if _, err := k.store.DB.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete kv entry: %w", err)
	}
	return nil
}

func (k *KVStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	ctx, err := k.store.ready(ctx)
	if err != nil {
		return 0, err
	}
	result, err := k.store.DB.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at <= ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep kv entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep kv entries: %w", err)
	}
	return int(affected), nil
}

func (k *KVStore) Count(ctx context.Context, prefix string) (int, error) {
	ctx, err := k.store.ready(ctx)
	if err != nil {
		return 0, err
	}
	var count int
	row := k.store.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv_entries WHERE key LIKE ? ESCAPE '\'`, likePrefix(prefix))
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count kv entries: %w", err)
	}
	return count, nil
}

func (k *KVStore) List(ctx context.Context, prefix string) ([]kv.Entry, error) {
	ctx, err := k.store.ready(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := k.store.DB.QueryContext(ctx, `
		SELECT key, value, expires_at
		FROM kv_entries
		WHERE key LIKE ? ESCAPE '\'
		ORDER BY key
	`, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("list kv entries: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []kv.Entry{}
	for rows.Next() {
		var (
			entry     kv.Entry
			expiresAt int64
		)
		if err := rows.Scan(&entry.Key, &entry.Value, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan kv entries: %w", err)
		}
		entry.ExpiresAt = fromMillis(expiresAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list kv entries: %w", err)
	}
	return entries, nil
}

// Close is a no-op; the owning Store closes the database.
func (k *KVStore) Close() error {
	return nil
}

func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
