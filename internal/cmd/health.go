package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/courseflow/courseflow/internal/errors"
	"github.com/courseflow/courseflow/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Run a self-health check to verify the configuration, store and guard backend can start.",
	Run: func(cmd *cobra.Command, args []string) {
		observability.CLILogger.Info("Running health check...")

		// Check 1: Version info available
		if versionInfo.Version == "" {
			observability.CLILogger.Error("❌ FAIL: Version information missing")
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewValidationError("Version information missing"))
			return
		}
		observability.CLILogger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		observability.CLILogger.Info("✅ Version information available")

		// Check 2: Configuration loads and validates
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			observability.CLILogger.Error("❌ FAIL: Configuration invalid", zap.Error(err))
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		observability.CLILogger.Info("✅ Configuration valid")

		// Check 3: Store opens and answers pings
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			observability.CLILogger.Error("❌ FAIL: Store unavailable", zap.Error(err))
			ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Store unavailable", err)
			return
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup
		if err := db.CheckHealth(cmd.Context()); err != nil {
			observability.CLILogger.Error("❌ FAIL: Store ping failed", zap.Error(err))
			ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Store ping failed", err)
			return
		}
		observability.CLILogger.Info("✅ Store reachable", zap.String("driver", cfg.Store.Driver))

		// Check 4: Guard backend reachable
		guardState, err := openKV(cmd.Context(), cfg, db)
		if err != nil {
			observability.CLILogger.Error("❌ FAIL: KV backend unavailable", zap.Error(err))
			ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "KV backend unavailable", err)
			return
		}
		defer guardState.Close() // nolint:errcheck // best-effort cleanup
		if err := (kvHealthChecker{store: guardState}).CheckHealth(cmd.Context()); err != nil {
			observability.CLILogger.Error("❌ FAIL: KV backend probe failed", zap.Error(err))
			ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "KV backend probe failed", err)
			return
		}
		observability.CLILogger.Info("✅ KV backend reachable", zap.String("backend", cfg.KV.Backend))

		// Overall status
		observability.CLILogger.Info("")
		observability.CLILogger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
