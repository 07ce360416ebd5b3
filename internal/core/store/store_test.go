package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/courseflow/courseflow/internal/config"
	"github.com/courseflow/courseflow/internal/core"
)

func TestResolveTarget(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		cfg  config.StoreConfig
		want target
	}{
		{
			name: "remote url gains token",
			cfg:  config.StoreConfig{URL: "libsql://courseflow.turso.io", AuthToken: "token123"},
			want: target{dsn: "libsql://courseflow.turso.io?authToken=token123"},
		},
		{
			name: "existing token wins",
			cfg:  config.StoreConfig{URL: "libsql://courseflow.turso.io?authToken=abc", AuthToken: "token123"},
			want: target{dsn: "libsql://courseflow.turso.io?authToken=abc"},
		},
		{
			name: "url beats path",
			cfg:  config.StoreConfig{URL: "libsql://db.example.com", Path: ":memory:"},
			want: target{dsn: "libsql://db.example.com"},
		},
		{
			name: "file scheme kept",
			cfg:  config.StoreConfig{Path: "file:" + dir + "/a/courseflow.db"},
			want: target{dsn: "file:" + dir + "/a/courseflow.db", local: true},
		},
		{
			name: "plain path gains scheme",
			cfg:  config.StoreConfig{Path: dir + "/nested/courseflow.db"},
			want: target{dsn: "file:" + dir + "/nested/courseflow.db", local: true},
		},
		{
			name: "memory",
			cfg:  config.StoreConfig{Path: ":memory:"},
			want: target{dsn: ":memory:", local: true, memory: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveTarget(tc.cfg)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	require.DirExists(t, dir+"/a")
	require.DirExists(t, dir+"/nested")

	_, err := resolveTarget(config.StoreConfig{})
	require.Error(t, err)
}

func TestLikePrefix(t *testing.T) {
	require.Equal(t, "rl:%", likePrefix("rl:"))
	require.Equal(t, `a\_b\%%`, likePrefix("a_b%"))
	require.Equal(t, "%", likePrefix(""))
}

func TestTierForEvent(t *testing.T) {
	tier, ok := TierForEvent(core.BillingEvent{Type: EventSubscriptionUpdated, UserID: "u1", Tier: core.TierPro})
	require.True(t, ok)
	require.Equal(t, core.TierPro, tier)

	tier, ok = TierForEvent(core.BillingEvent{Type: EventSubscriptionDeleted, UserID: "u1"})
	require.True(t, ok)
	require.Equal(t, core.TierFree, tier)

	_, ok = TierForEvent(core.BillingEvent{Type: EventSubscriptionCreated, UserID: "u1", Tier: "platinum"})
	require.False(t, ok)

	_, ok = TierForEvent(core.BillingEvent{Type: "invoice.paid", UserID: "u1"})
	require.False(t, ok)

	_, ok = TierForEvent(core.BillingEvent{Type: EventSubscriptionCreated, Tier: core.TierPro})
	require.False(t, ok)
}
