package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/courseflow/courseflow/internal/observability"
)

// statusRecorder captures the status and body size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

// EndpointLabel prefers the chi route pattern and otherwise collapses the
// path into a fixed set of groups so labels stay low-cardinality.
func EndpointLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := r.URL.Path
	switch {
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case path == "/version", path == "/metrics", path == "/api/webhooks/billing":
		return path
	case strings.HasPrefix(path, "/api/billing/"):
		return "/api/billing/*"
	case strings.HasPrefix(path, "/api/usage"):
		return "/api/usage/*"
	case strings.HasPrefix(path, "/api/files/"):
		return "/api/files/*"
	case strings.HasPrefix(path, "/api/admin/"):
		return "/api/admin/*"
	default:
		return "/unknown"
	}
}

func errorClass(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "throttled"
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return ""
	}
}

// RequestMetrics records request counters, latency and sizes, then logs one
// line per request. Throttled responses get their own error class so guard
// rejections are distinguishable from handler failures.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		endpoint := EndpointLabel(r)
		emitRequestMetrics(r, rec, endpoint, duration)
		logRequest(r, rec, endpoint, duration)
	})
}

func emitRequestMetrics(r *http.Request, rec *statusRecorder, endpoint string, duration time.Duration) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}

	labels := map[string]string{
		"method":   r.Method,
		"endpoint": endpoint,
		"status":   strconv.Itoa(rec.status),
	}
	_ = sys.Counter("http_requests_total", 1, labels)
	_ = sys.Histogram("http_request_duration_ms", duration, labels)

	sizeLabels := map[string]string{"method": r.Method, "endpoint": endpoint}
	if r.ContentLength > 0 {
		_ = sys.Gauge("http_request_size_bytes", float64(r.ContentLength), sizeLabels)
	}
	_ = sys.Gauge("http_response_size_bytes", float64(rec.bytes), sizeLabels)

	if class := errorClass(rec.status); class != "" {
		_ = sys.Counter("http_errors_total", 1, map[string]string{
			"method":     r.Method,
			"endpoint":   endpoint,
			"status":     strconv.Itoa(rec.status),
			"error_type": class,
		})
	}
}

func logRequest(r *http.Request, rec *statusRecorder, endpoint string, duration time.Duration) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("endpoint", endpoint),
		zap.Int("status", rec.status),
		zap.Duration("duration", duration),
		zap.Int64("response_size", rec.bytes),
		zap.String("requestID", GetRequestID(r.Context())),
	}

	// Probes poll constantly; keep them out of the info stream.
	if strings.HasPrefix(endpoint, "/health") {
		logger.Debug("HTTP request completed", fields...)
		return
	}
	logger.Info("HTTP request completed", fields...)
}
