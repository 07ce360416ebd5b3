package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseflow/courseflow/internal/core"
)

type stubLimiter struct {
	calls  []string
	result core.RateLimitResult
}

func (s *stubLimiter) Check(_ context.Context, route, callerID string) core.RateLimitResult {
	s.calls = append(s.calls, route+"|"+callerID)
	return s.result
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitAllows(t *testing.T) {
	reset := time.Unix(1_700_000_900, 0)
	limiter := &stubLimiter{result: core.RateLimitResult{Allowed: true, Limit: 3, Remaining: 2, ResetAt: reset}}

	handler := RateLimit(RateLimitConfig{
		Limiter:  limiter,
		Route:    "checkout",
		Identify: func(*http.Request) string { return "user:u1" },
	})(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/billing/checkout", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1700000900", rec.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"checkout|user:u1"}, limiter.calls)
}

func TestRateLimitDenies(t *testing.T) {
	limiter := &stubLimiter{result: core.RateLimitResult{
		Allowed:    false,
		Limit:      3,
		Remaining:  0,
		ResetAt:    time.Unix(1_700_000_900, 0),
		RetryAfter: 899500 * time.Millisecond,
	}}

	var decided []bool
	handler := RateLimit(RateLimitConfig{
		Limiter: limiter,
		Route:   "checkout",
		OnDecision: func(route string, result core.RateLimitResult) {
			decided = append(decided, result.Allowed)
		},
	})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/billing/checkout", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "900", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, RateLimitMessage, body["error"])
	assert.Equal(t, []bool{false}, decided)
	assert.Equal(t, []string{"checkout|ip:203.0.113.7"}, limiter.calls)
}

func TestRateLimitCustomResponder(t *testing.T) {
	limiter := &stubLimiter{result: core.RateLimitResult{Allowed: false, Limit: 1}}
	handler := RateLimit(RateLimitConfig{
		Limiter: limiter,
		Route:   "portal",
		OnLimited: func(w http.ResponseWriter, r *http.Request, result core.RateLimitResult) {
			w.WriteHeader(http.StatusTeapot)
		},
	})(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRateLimitWithoutLimiter(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Route: "usage"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRecoveryHidesPanicDetails(t *testing.T) {
	handler := RequestID(Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("database password is hunter2")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/usage", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestClientHost(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"203.0.113.7:5555", "203.0.113.7"},
		{"203.0.113.7:6666", "203.0.113.7"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"203.0.113.7", "203.0.113.7"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClientHost(tt.addr), tt.addr)
	}
}
