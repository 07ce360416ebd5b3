package metrics

import (
	"time"

	"github.com/courseflow/courseflow/internal/observability"
)

// Application-level metric names following Prometheus conventions.
const (
	OperationsTotal     = "app_operations_total"
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"
	ServerUptime        = "app_server_uptime_seconds"
)

func counter(name string, tags map[string]string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(name, 1, tags)
}

func gauge(name string, value float64, tags map[string]string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(name, value, tags)
}

// RecordOperation records a CLI or background operation with its outcome.
func RecordOperation(operation string, success bool) {
	counter(OperationsTotal, map[string]string{
		"operation": operation,
		"status":    outcome(success, "success", "failure"),
	})
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	counter(HealthCheckTotal, map[string]string{
		"check":  checkName,
		"status": outcome(healthy, "healthy", "unhealthy"),
	})
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{
			"check": checkName,
		})
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	gauge(ServerStartTime, float64(timestamp), nil)
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	gauge(ServerUptime, float64(seconds), nil)
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
