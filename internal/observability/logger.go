package observability

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger backs the operator commands (SIMPLE profile).
	CLILogger *logging.Logger

	// ServerLogger backs serve and the HTTP stack (STRUCTURED profile).
	ServerLogger *logging.Logger
)

// exit is replaced in tests.
var exit = os.Exit

// InitCLILogger initializes the CLI logger. verbose lowers the level to DEBUG.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
		return
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger initializes the JSON server logger on stderr.
// Environment is stamped on every record; empty means production.
func InitServerLogger(serviceName, logLevel, environment string, namespace ...string) {
	logger, err := logging.New(serverLoggerConfig(serviceName, logLevel, environment, namespace...))
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
		return
	}
	ServerLogger = logger
}

func serverLoggerConfig(serviceName, logLevel, environment string, namespace ...string) *logging.LoggerConfig {
	environment = strings.ToLower(strings.TrimSpace(environment))
	if environment == "" {
		environment = "production"
	}

	static := map[string]any{}
	if len(namespace) > 0 && namespace[0] != "" {
		static["namespace"] = namespace[0]
	}

	return &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(logLevel),
		Service:      serviceName,
		Environment:  environment,
		StaticFields: static,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: environment != "production",
	}
}

// SyncLoggers flushes both loggers. Sync on a closed stderr is reported but
// harmless.
func SyncLoggers() error {
	var errs []error
	for _, logger := range []*logging.Logger{ServerLogger, CLILogger} {
		if logger == nil {
			continue
		}
		if err := logger.Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// parseLogLevel maps config spellings onto gofulmen severities.
func parseLogLevel(levelStr string) string {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// fatal is used before any logger exists, so it writes to stderr.
func fatal(exitCode foundry.ExitCode, msg string, err error) {
	code, name := int(exitCode), "UNKNOWN"
	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		code, name = info.Code, info.Name
	}
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\nExit Code: %d (%s)\n", msg, err, code, name)
	exit(code)
}
