// Package config provides centralized configuration management for CourseFlow.
// Values are layered with viper:
// Layer 1: built-in defaults (Defaults)
// Layer 2: optional YAML config file (explicit path or the XDG config path)
// Layer 3: environment variables (gofulmen/config env specs) and runtime overrides
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/courseflow/courseflow/internal/appid"
	"github.com/courseflow/courseflow/internal/kv"
)

var (
	// appConfig holds the current application configuration
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity

	configFile string
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetConfigFile sets an explicit config file for subsequent Load calls.
// An empty path restores discovery of the default path.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = strings.TrimSpace(path)
}

// Defaults returns the built-in configuration as viper keys.
func Defaults() map[string]any {
	return map[string]any{
		"environment": EnvironmentProduction,

		"server.host":             "localhost",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",
		"server.max_body_bytes":   1 << 20,

		"store.driver": "libsql",

		"kv.backend":          kv.BackendMemory,
		"kv.redis.addr":       "",
		"kv.redis.db":         0,
		"kv.redis.key_prefix": "courseflow:",
		"kv.redis.timeout":    "3s",

		"auth.jwt_secret": "",
		"auth.issuer":     "",
		"auth.audience":   "",
		"auth.leeway":     "30s",

		"billing.checkout_url":     "https://billing.example.com/checkout",
		"billing.portal_url":       "https://billing.example.com/portal",
		"billing.webhook_secret":   "",
		"billing.signature_header": "X-Webhook-Signature",
		"billing.timestamp_header": "X-Webhook-Timestamp",

		"rate_limit.sweep_interval": "60s",
		"rate_limit.margin":         1.0,

		"rate_limit.routes.checkout.limit":     3,
		"rate_limit.routes.checkout.window":    "15m",
		"rate_limit.routes.portal.limit":       5,
		"rate_limit.routes.portal.window":      "1h",
		"rate_limit.routes.webhook.limit":      100,
		"rate_limit.routes.webhook.window":     "1m",
		"rate_limit.routes.usage.limit":        60,
		"rate_limit.routes.usage.window":       "1h",
		"rate_limit.routes.abuse-check.limit":  60,
		"rate_limit.routes.abuse-check.window": "1h",
		"rate_limit.routes.dedup-stats.limit":  60,
		"rate_limit.routes.dedup-stats.window": "1h",
		"rate_limit.routes.admin-abuse.limit":  60,
		"rate_limit.routes.admin-abuse.window": "1h",

		"webhook.rate_limit.limit":  100,
		"webhook.rate_limit.window": "1m",
		"webhook.max_age":           "300s",
		"webhook.retention":         "24h",
		"webhook.max_entries":       10000,
		"webhook.sweep_interval":    "5m",

		"usage.history_days": 30,

		"logging.level":   "info",
		"logging.profile": "STRUCTURED",

		"metrics.enabled": true,
		"metrics.port":    9090,

		"health.enabled": true,

		"debug.enabled": false,
	}
}

// Load builds the configuration from defaults, the config file and the
// environment.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if appIdentity == nil {
		identity, err := appid.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load app identity: %w", err)
		}
		appIdentity = identity
	}

	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	if path := resolveConfigFile(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	allOverrides := []map[string]any{envOverrides}
	allOverrides = append(allOverrides, runtimeOverrides...)
	for _, overrides := range allOverrides {
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to merge overrides: %w", err)
		}
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(strings.TrimSpace(c.KV.Backend)) {
	case kv.BackendMemory, kv.BackendLibsql:
	case kv.BackendRedis:
		if strings.TrimSpace(c.KV.Redis.Addr) == "" {
			errs = append(errs, errors.New("kv.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported kv.backend %q", c.KV.Backend))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server.port %d", c.Server.Port))
	}

	for name, route := range c.RateLimit.Routes {
		if route.Limit <= 0 || route.Window <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.routes.%s needs a positive limit and window", name))
		}
	}

	if c.RateLimit.Margin < 0 || c.RateLimit.Margin > 1 {
		errs = append(errs, fmt.Errorf("rate_limit.margin must be within [0,1], got %v", c.RateLimit.Margin))
	}

	if c.Webhook.MaxAge < 0 || c.Webhook.Retention < 0 || c.Webhook.MaxEntries < 0 {
		errs = append(errs, errors.New("webhook limits must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func resolveConfigFile() string {
	configMu.RLock()
	explicit := configFile
	configMu.RUnlock()
	if explicit != "" {
		return explicit
	}

	path := DefaultConfigPath()
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	if appIdentity == nil {
		return []EnvVarSpec{}
	}

	prefix := appIdentity.EnvPrefix
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}

	specs := []EnvVarSpec{
		{Name: prefix + "ENVIRONMENT", Path: []string{"environment"}, Type: EnvString},

		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// KV backend
		{Name: prefix + "KV_BACKEND", Path: []string{"kv", "backend"}, Type: EnvString},
		{Name: prefix + "REDIS_ADDR", Path: []string{"kv", "redis", "addr"}, Type: EnvString},
		{Name: prefix + "REDIS_USERNAME", Path: []string{"kv", "redis", "username"}, Type: EnvString},
		{Name: prefix + "REDIS_PASSWORD", Path: []string{"kv", "redis", "password"}, Type: EnvString},
		{Name: prefix + "REDIS_DB", Path: []string{"kv", "redis", "db"}, Type: EnvInt},
		{Name: prefix + "REDIS_KEY_PREFIX", Path: []string{"kv", "redis", "key_prefix"}, Type: EnvString},

		// Auth
		{Name: prefix + "JWT_SECRET", Path: []string{"auth", "jwt_secret"}, Type: EnvString},
		{Name: prefix + "JWT_ISSUER", Path: []string{"auth", "issuer"}, Type: EnvString},
		{Name: prefix + "JWT_AUDIENCE", Path: []string{"auth", "audience"}, Type: EnvString},

		// Billing
		{Name: prefix + "BILLING_CHECKOUT_URL", Path: []string{"billing", "checkout_url"}, Type: EnvString},
		{Name: prefix + "BILLING_PORTAL_URL", Path: []string{"billing", "portal_url"}, Type: EnvString},
		{Name: prefix + "WEBHOOK_SECRET", Path: []string{"billing", "webhook_secret"}, Type: EnvString},

		// Guards
		{Name: prefix + "RATE_LIMIT_SWEEP_INTERVAL", Path: []string{"rate_limit", "sweep_interval"}, Type: EnvString},
		{Name: prefix + "RATE_LIMIT_MARGIN", Path: []string{"rate_limit", "margin"}, Type: EnvString},
		{Name: prefix + "WEBHOOK_MAX_AGE", Path: []string{"webhook", "max_age"}, Type: EnvString},
		{Name: prefix + "WEBHOOK_SWEEP_INTERVAL", Path: []string{"webhook", "sweep_interval"}, Type: EnvString},
		{Name: prefix + "WEBHOOK_MAX_ENTRIES", Path: []string{"webhook", "max_entries"}, Type: EnvInt},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},

		// Debug config
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
	}

	return specs
}

// appNamesForPaths returns the config name and binary name from app identity,
// falling back to "courseflow" if not set.
func appNamesForPaths() (configName string, binaryName string) {
	configName = appid.ConfigName
	binaryName = appid.BinaryName
	if appIdentity == nil {
		return configName, binaryName
	}

	if strings.TrimSpace(appIdentity.ConfigName) != "" {
		configName = appIdentity.ConfigName
	}
	if strings.TrimSpace(appIdentity.BinaryName) != "" {
		binaryName = appIdentity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppDataDir(configName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}
