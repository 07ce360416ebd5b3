package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/courseflow/courseflow/internal/core"
)

// RateLimitMessage is the body text of a 429 response.
const RateLimitMessage = "Too many requests. Please try again later."

// RouteLimiter decides whether a caller may use a route.
type RouteLimiter interface {
	Check(ctx context.Context, route, callerID string) core.RateLimitResult
}

// IdentifierFunc extracts the caller identity a limit is keyed on.
type IdentifierFunc func(r *http.Request) string

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	Limiter  RouteLimiter
	Route    string
	Identify IdentifierFunc

	// OnLimited writes the 429 response after headers are set.
	// Defaults to a JSON {"error": ...} body.
	OnLimited func(w http.ResponseWriter, r *http.Request, result core.RateLimitResult)

	// OnDecision observes every decision, e.g. for metrics.
	OnDecision func(route string, result core.RateLimitResult)
}

// RateLimit enforces a fixed-window limit for one route.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.Identify == nil {
		cfg.Identify = RemoteIdentifier
	}
	if cfg.OnLimited == nil {
		cfg.OnLimited = defaultOnLimited
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := cfg.Identify(r)
			if caller == "" {
				caller = RemoteIdentifier(r)
			}

			result := cfg.Limiter.Check(r.Context(), cfg.Route, caller)
			if cfg.OnDecision != nil {
				cfg.OnDecision(cfg.Route, result)
			}

			SetRateLimitHeaders(w, result)
			if !result.Allowed {
				cfg.OnLimited(w, r, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RemoteIdentifier keys on the client host. chi's RealIP middleware
// upstream rewrites RemoteAddr from forwarding headers.
func RemoteIdentifier(r *http.Request) string {
	return "ip:" + ClientHost(r.RemoteAddr)
}

// ClientHost strips the source port so that every connection from one
// host shares a bucket. Addresses without a port are returned as is.
func ClientHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}

// SetRateLimitHeaders writes the X-RateLimit-* family and, on a denial, Retry-After.
func SetRateLimitHeaders(w http.ResponseWriter, result core.RateLimitResult) {
	if result.Limit <= 0 {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if !result.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	}
	if !result.Allowed && result.RetryAfter > 0 {
		h.Set("Retry-After", strconv.FormatInt(int64(math.Ceil(result.RetryAfter.Seconds())), 10))
	}
}

func defaultOnLimited(w http.ResponseWriter, _ *http.Request, _ core.RateLimitResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": RateLimitMessage})
}
