package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitCLILogger(t *testing.T) {
	InitCLILogger("courseflow-test", true)
	require.NotNil(t, CLILogger)
	CLILogger.Debug("cli logger ready", zap.String("component", "test"))
}

func TestInitServerLogger(t *testing.T) {
	InitServerLogger("courseflow-test", "warn", "development", "courseflow")
	require.NotNil(t, ServerLogger)
	ServerLogger.Warn("server logger ready", zap.String("route", "checkout"))

	InitServerLogger("courseflow-test", "info", "")
	require.NotNil(t, ServerLogger)
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "TRACE",
		"DEBUG":   "DEBUG",
		" info ":  "INFO",
		"warning": "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
	}
	for input, want := range cases {
		assert.Equal(t, want, parseLogLevel(input), input)
	}
}

func TestServerLoggerConfig(t *testing.T) {
	cfg := serverLoggerConfig("courseflow-test", "debug", " Development ", "courseflow")
	assert.Equal(t, "DEBUG", cfg.DefaultLevel)
	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.EnableStacktrace)
	assert.Equal(t, "courseflow", cfg.StaticFields["namespace"])
	require.Len(t, cfg.Sinks, 1)
	assert.Equal(t, "stderr", cfg.Sinks[0].Console.Stream)

	prod := serverLoggerConfig("courseflow-test", "", "")
	assert.Equal(t, "production", prod.Environment)
	assert.False(t, prod.EnableStacktrace)
	assert.Empty(t, prod.StaticFields)
}

func TestSyncLoggersSkipsNil(t *testing.T) {
	cli, server := CLILogger, ServerLogger
	CLILogger, ServerLogger = nil, nil
	t.Cleanup(func() { CLILogger, ServerLogger = cli, server })

	assert.NoError(t, SyncLoggers())
}

func TestInitMetricsRandomPort(t *testing.T) {
	t.Cleanup(func() { _ = ShutdownMetrics() })

	require.NoError(t, InitMetrics("courseflow-test", 0, "courseflow"))
	require.NotNil(t, TelemetrySystem)
	require.NotNil(t, PrometheusExporter)
	assert.Greater(t, GetMetricsPort(), 0)

	require.NoError(t, ShutdownMetrics())
	assert.Nil(t, TelemetrySystem)
	assert.Nil(t, PrometheusExporter)
	assert.Equal(t, 0, GetMetricsPort())
	assert.NoError(t, ShutdownMetrics(), "second shutdown is a no-op")
}

func TestResolvePort(t *testing.T) {
	port, err := resolvePort("[::]:9191")
	require.NoError(t, err)
	assert.Equal(t, 9191, port)

	_, err = resolvePort("no-port")
	require.Error(t, err)
}

func TestCrucibleVersion(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, crucible.GetVersionString())
}
