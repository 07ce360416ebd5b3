//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseflow/courseflow/internal/config"
)

func openFileStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := OpenMigrated(context.Background(), config.StoreConfig{Driver: "libsql", Path: "file:" + path})
	require.NoError(t, err)
	return s
}

func TestFileStorePragmas(t *testing.T) {
	ctx := context.Background()
	s := openFileStore(t, filepath.Join(t.TempDir(), "courseflow.db"))
	defer func() { _ = s.Close() }()

	assert.Equal(t, 1, s.DB.Stats().MaxOpenConnections, "single writer connection")

	var journalMode string
	require.NoError(t, s.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	assert.Contains(t, journalMode, "wal")

	var busyTimeout int
	require.NoError(t, s.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.GreaterOrEqual(t, busyTimeout, 1000)
}

func TestFileStoreKeepsGuardStateAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "courseflow.db")
	now := time.Now().Truncate(time.Millisecond)

	first := openFileStore(t, path)
	count, resetAt, err := first.KV().Increment(ctx, "rl:checkout:u1", now, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.NoError(t, first.KV().Set(ctx, "evt:evt_1", now.UnixMilli(), now.Add(24*time.Hour)))
	require.NoError(t, first.Close())

	second := openFileStore(t, path)
	defer func() { _ = second.Close() }()

	count, again, err := second.KV().Increment(ctx, "rl:checkout:u1", now.Add(time.Second), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "counter survives a restart")
	assert.True(t, resetAt.Equal(again), "window reset is unchanged")

	marker, ok, err := second.KV().Get(ctx, "evt:evt_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now.UnixMilli(), marker.Value)
	require.NoError(t, second.CheckHealth(ctx))
}
