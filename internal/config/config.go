package config

import (
	"strings"
	"time"

	"github.com/courseflow/courseflow/internal/core/usage"
)

// Environment names.
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// Config represents the complete application configuration.
// Values are layered: built-in defaults, then the optional config file,
// then environment variables and runtime overrides.
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Store       StoreConfig     `mapstructure:"store"`
	KV          KVConfig        `mapstructure:"kv"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Billing     BillingConfig   `mapstructure:"billing"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Webhook     WebhookConfig   `mapstructure:"webhook"`
	Usage       UsageConfig     `mapstructure:"usage"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Health      HealthConfig    `mapstructure:"health"`
	Debug       DebugConfig     `mapstructure:"debug"`
}

// IsDevelopment reports whether raw error details may be echoed to clients.
func (c *Config) IsDevelopment() bool {
	if c == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentDevelopment) || c.Debug.Enabled
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// KVConfig selects the backend for rate limit and webhook state.
type KVConfig struct {
	// Backend is one of memory, redis, libsql.
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the redis KV backend.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AuthConfig configures session token verification.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	Audience  string        `mapstructure:"audience"`
	Leeway    time.Duration `mapstructure:"leeway"`
}

// BillingConfig configures the payments provider integration.
type BillingConfig struct {
	CheckoutURL     string `mapstructure:"checkout_url"`
	PortalURL       string `mapstructure:"portal_url"`
	WebhookSecret   string `mapstructure:"webhook_secret"`
	SignatureHeader string `mapstructure:"signature_header"`
	TimestampHeader string `mapstructure:"timestamp_header"`
}

// RouteLimitConfig is a fixed-window limit.
type RouteLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// RateLimitConfig configures the per-route limiter.
type RateLimitConfig struct {
	SweepInterval time.Duration               `mapstructure:"sweep_interval"`
	Margin        float64                     `mapstructure:"margin"`
	Routes        map[string]RouteLimitConfig `mapstructure:"routes"`
}

// WebhookConfig configures the webhook replay guard.
type WebhookConfig struct {
	RateLimit     RouteLimitConfig `mapstructure:"rate_limit"`
	MaxAge        time.Duration    `mapstructure:"max_age"`
	Retention     time.Duration    `mapstructure:"retention"`
	MaxEntries    int              `mapstructure:"max_entries"`
	SweepInterval time.Duration    `mapstructure:"sweep_interval"`
}

// UsageConfig configures the usage heuristics.
type UsageConfig struct {
	HistoryDays int                         `mapstructure:"history_days"`
	Tiers       map[string]usage.TierLimits `mapstructure:"tiers"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	// Enabled echoes wrapped errors in API responses.
	// WARNING: Only enable in development/staging environments
	Enabled bool `mapstructure:"enabled"`
}
