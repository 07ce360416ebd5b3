package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/courseflow/courseflow/internal/appid"
	"github.com/courseflow/courseflow/internal/auth"
	"github.com/courseflow/courseflow/internal/config"
	"github.com/courseflow/courseflow/internal/core/engine"
	errwrap "github.com/courseflow/courseflow/internal/errors"
	"github.com/courseflow/courseflow/internal/kv"
	"github.com/courseflow/courseflow/internal/metrics"
	"github.com/courseflow/courseflow/internal/observability"
	"github.com/courseflow/courseflow/internal/server"
	"github.com/courseflow/courseflow/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewValidationError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewValidationError("app identity missing env prefix")
	}
	return nil
}

// kvHealthChecker probes the guard state backend.
type kvHealthChecker struct {
	store kv.Store
}

func (k kvHealthChecker) CheckHealth(ctx context.Context) error {
	_, err := k.store.Count(ctx, engine.RouteKeyPrefix)
	return err
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the guarded HTTP API with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file (restart to apply guard settings)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		cfg, err := loadConfig(ctx)
		if err != nil {
			return errwrap.WrapValidationError(ctx, err, "configuration invalid")
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = serverHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = serverPort
		}

		identity := GetAppIdentity()
		namespace := appid.TelemetryNamespace

		observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, cfg.Environment, namespace)
		errwrap.SetDevelopmentMode(cfg.IsDevelopment())

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
				observability.ServerLogger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
		}
		metrics.SetServerStartTime(time.Now().Unix())

		db, err := openStore(ctx, cfg)
		if err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "store initialization failed")
		}

		guardState, err := openKV(ctx, cfg, db)
		if err != nil {
			_ = db.Close()
			return errwrap.WrapValidationError(ctx, err, "kv backend initialization failed")
		}

		limiter := newRateLimiter(cfg, guardState)
		guard := newWebhookGuard(cfg, guardState)
		usageService := newUsageService(cfg, db)

		observability.ServerLogger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("environment", cfg.Environment),
			zap.String("kv_backend", cfg.KV.Backend),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port))

		if len(cfg.Billing.WebhookSecret) == 0 {
			observability.ServerLogger.Warn("billing.webhook_secret is not set; every webhook delivery will be rejected")
		}
		if len(cfg.Auth.JWTSecret) == 0 {
			observability.ServerLogger.Warn("auth.jwt_secret is not set; every authenticated route will answer 401")
		}

		health := handlers.NewHealthManager(versionInfo.Version)
		health.RegisterChecker("store", db)
		health.RegisterChecker("kv", kvHealthChecker{store: guardState})
		health.RegisterChecker("app_identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
		})
		if cfg.Metrics.Enabled {
			health.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		handlers.SetAppIdentity(identity)
		handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
		handlers.SetGuardInfo(guardInfo(cfg.KV.Backend, limiter))

		srv := server.New(server.Options{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
			MetricsPort:  cfg.Metrics.Port,
			Limiter:      limiter,
			Verifier: &auth.Verifier{
				Secret:   []byte(cfg.Auth.JWTSecret),
				Issuer:   cfg.Auth.Issuer,
				Audience: cfg.Auth.Audience,
				Leeway:   cfg.Auth.Leeway,
			},
			Billing: &handlers.BillingHandler{
				CheckoutURL: cfg.Billing.CheckoutURL,
				PortalURL:   cfg.Billing.PortalURL,
				Tiers:       db,
			},
			Webhook: &handlers.WebhookHandler{
				Guard:           guard,
				Secret:          []byte(cfg.Billing.WebhookSecret),
				SignatureHeader: cfg.Billing.SignatureHeader,
				TimestampHeader: cfg.Billing.TimestampHeader,
				RateLimit: engine.WebhookRateLimitOptions{
					Window:      cfg.Webhook.RateLimit.Window,
					MaxRequests: cfg.Webhook.RateLimit.Limit,
				},
				Applier:      db,
				MaxBodyBytes: cfg.Server.MaxBodyBytes,
			},
			Usage:  &handlers.UsageHandler{Service: usageService},
			Health: health,
		})

		for _, sweeper := range newSweepers(cfg, limiter, guard) {
			go sweeper.Run(ctx)
		}

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO.
		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.SyncLoggers(); err != nil {
				observability.ServerLogger.Debug("Logger sync returned error", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.ShutdownMetrics(); err != nil {
				observability.ServerLogger.Warn("Failed to stop metrics exporter", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			if err := guardState.Close(); err != nil {
				observability.ServerLogger.Warn("Failed to close kv backend", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				observability.ServerLogger.Warn("Failed to close store", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			cancel()
			shutdownCtx, done := context.WithTimeout(ctx, shutdownTimeout)
			defer done()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: validating config")

			if _, err := config.Load(ctx); err != nil {
				observability.ServerLogger.Error("Config reload failed",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapValidationError(ctx, err, "config reload failed")
			}

			observability.ServerLogger.Info("Configuration is valid; guard settings apply on restart")
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(ctx, err, "server error")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
