package cmd

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/courseflow/courseflow/internal/config"
	"github.com/courseflow/courseflow/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display comprehensive environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()

		observability.CLILogger.Info("=== CourseFlow Environment Information ===")
		observability.CLILogger.Info("")

		// Application Info
		identity := GetAppIdentity()
		observability.CLILogger.Info("Application:")
		observability.CLILogger.Info("  Name:       " + identity.BinaryName)
		observability.CLILogger.Info("  Version:    " + versionInfo.Version)
		observability.CLILogger.Info("  Commit:     " + versionInfo.Commit)
		observability.CLILogger.Info("  Built:      " + versionInfo.BuildDate)
		observability.CLILogger.Info("")

		// SSOT Info
		observability.CLILogger.Info("SSOT:")
		observability.CLILogger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		observability.CLILogger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		observability.CLILogger.Info("")

		// Runtime Info
		observability.CLILogger.Info("Runtime:")
		observability.CLILogger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		observability.CLILogger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		observability.CLILogger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		observability.CLILogger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		observability.CLILogger.Info("")

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
			return
		}

		// Configuration
		observability.CLILogger.Info("Configuration:")
		observability.CLILogger.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		observability.CLILogger.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		observability.CLILogger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		observability.CLILogger.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		observability.CLILogger.Info("  DB Driver:      "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			observability.CLILogger.Info("  DB URL:         "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
		} else {
			observability.CLILogger.Info("  DB Path:        "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		observability.CLILogger.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		observability.CLILogger.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		observability.CLILogger.Info("")

		// Guard backend
		observability.CLILogger.Info("Guards:")
		observability.CLILogger.Info("  KV Backend:     "+cfg.KV.Backend, zap.String("kv_backend", cfg.KV.Backend))
		if strings.TrimSpace(cfg.KV.Redis.Addr) != "" {
			observability.CLILogger.Info("  Redis Addr:     "+cfg.KV.Redis.Addr, zap.String("redis_addr", cfg.KV.Redis.Addr))
		}
		observability.CLILogger.Info(fmt.Sprintf("  Safety Margin:  %.2f", cfg.RateLimit.Margin), zap.Float64("margin", cfg.RateLimit.Margin))
		routes := make([]string, 0, len(cfg.RateLimit.Routes))
		for name := range cfg.RateLimit.Routes {
			routes = append(routes, name)
		}
		sort.Strings(routes)
		for _, name := range routes {
			route := cfg.RateLimit.Routes[name]
			observability.CLILogger.Info(fmt.Sprintf("  %-14s  %d per %s", name+":", route.Limit, route.Window))
		}
		observability.CLILogger.Info(fmt.Sprintf("  Webhook Ingress: %d per %s", cfg.Webhook.RateLimit.Limit, cfg.Webhook.RateLimit.Window))
		observability.CLILogger.Info("  Webhook Max Age: " + cfg.Webhook.MaxAge.String())
		observability.CLILogger.Info("")

		// Secrets are reported as set/unset only
		observability.CLILogger.Info("Secrets:")
		observability.CLILogger.Info("  auth.jwt_secret:         " + setOrUnset(cfg.Auth.JWTSecret))
		observability.CLILogger.Info("  billing.webhook_secret:  " + setOrUnset(cfg.Billing.WebhookSecret))
		observability.CLILogger.Info("")

		observability.CLILogger.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}

func setOrUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(not set)"
	}
	return "(set)"
}
