package observability

import (
	"fmt"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

const fallbackMetricsPort = 9090

var (
	// TelemetrySystem is nil until InitMetrics runs; every emitter in
	// internal/metrics checks for that.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the guard, webhook and HTTP series.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort atomic.Int64
)

// InitMetrics starts the Prometheus exporter on port (0 picks a free one)
// and installs a telemetry system that emits through it. namespace, when
// given, prefixes every series instead of serviceName.
func InitMetrics(serviceName string, port int, namespace ...string) error {
	if port < 0 {
		port = 0
	}
	metricsPort.Store(int64(port))

	prefix := serviceName
	if len(namespace) > 0 && namespace[0] != "" {
		prefix = namespace[0]
	}

	exporter := exporters.NewPrometheusExporter(prefix, fmt.Sprintf(":%d", port))
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("start prometheus exporter: %w", err)
	}

	switch bound, err := resolvePort(exporter.GetAddr()); {
	case err == nil:
		metricsPort.Store(int64(bound))
	case port == 0:
		metricsPort.Store(fallbackMetricsPort)
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: exporter})
	if err != nil {
		_ = exporter.Stop()
		return fmt.Errorf("create telemetry system: %w", err)
	}

	PrometheusExporter = exporter
	TelemetrySystem = sys
	return nil
}

// ShutdownMetrics stops the exporter and clears the globals so later
// emitters become no-ops. Safe to call when metrics were never started.
func ShutdownMetrics() error {
	exporter := PrometheusExporter
	PrometheusExporter = nil
	TelemetrySystem = nil
	metricsPort.Store(0)
	if exporter == nil {
		return nil
	}
	return exporter.Stop()
}

// GetMetricsPort returns the port the Prometheus exporter is listening on,
// or 0 before InitMetrics.
func GetMetricsPort() int {
	return int(metricsPort.Load())
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
