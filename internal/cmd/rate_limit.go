package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/courseflow/courseflow/internal/core/engine"
	"github.com/courseflow/courseflow/internal/core/store"
	"github.com/courseflow/courseflow/internal/kv"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Manage persisted rate limit state",
	Long: `Inspect or clear the fixed-window counters the API keeps per route and
caller. Counters live in the configured KV backend (kv.backend), so these
commands only see shared state when the server uses redis or libsql.`,
}

// guardSession holds the backends a rate-limit command needs.
type guardSession struct {
	db    *store.Store
	state kv.Store
}

func openGuardSession(ctx context.Context) (*guardSession, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	state, err := openKV(ctx, cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &guardSession{db: db, state: state}, nil
}

func (s *guardSession) Close() error {
	return errors.Join(s.state.Close(), s.db.Close())
}

func addRateLimitQueryFlags(cmd *cobra.Command, verb string) {
	cmd.Flags().Bool("all", false, verb+" every route counter")
	cmd.Flags().String("route", "", verb+" counters for one route")
	cmd.Flags().String("caller", "", "Narrow --route to exactly one caller (user:<id> or ip:<host>)")
	cmd.Flags().String("prefix", "", verb+" counters whose key starts with the prefix")
}

func rateLimitQueryFromFlags(cmd *cobra.Command) engine.RateLimitQuery {
	all, _ := cmd.Flags().GetBool("all")
	route, _ := cmd.Flags().GetString("route")
	caller, _ := cmd.Flags().GetString("caller")
	prefix, _ := cmd.Flags().GetString("prefix")
	return engine.RateLimitQuery{
		All:    all,
		Route:  strings.TrimSpace(route),
		Caller: strings.TrimSpace(caller),
		Prefix: strings.TrimSpace(prefix),
	}
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
