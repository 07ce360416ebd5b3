package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-session-secret")

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func issue(t *testing.T, session Session, now time.Time) string {
	t.Helper()
	token, err := Issue(testSecret, session, "courseflow-auth", "courseflow", time.Hour, now)
	require.NoError(t, err)
	return token
}

func TestVerify(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	verifier := &Verifier{Secret: testSecret, Issuer: "courseflow-auth", Audience: "courseflow", Clock: fixedClock(now)}

	session, err := verifier.Verify(issue(t, Session{UserID: "u1", Email: "u1@example.com", Role: RoleAdmin}, now))
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, "u1@example.com", session.Email)
	assert.True(t, session.IsAdmin())

	t.Run("Expired", func(t *testing.T) {
		expired := issue(t, Session{UserID: "u1"}, now.Add(-2*time.Hour))
		_, err := verifier.Verify(expired)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		token, err := Issue([]byte("other"), Session{UserID: "u1"}, "courseflow-auth", "courseflow", time.Hour, now)
		require.NoError(t, err)
		_, err = verifier.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("WrongAudience", func(t *testing.T) {
		token, err := Issue(testSecret, Session{UserID: "u1"}, "courseflow-auth", "someone-else", time.Hour, now)
		require.NoError(t, err)
		_, err = verifier.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("MissingSubject", func(t *testing.T) {
		_, err := verifier.Verify(issue(t, Session{}, now))
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("UnexpectedAlgorithm", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
		require.NoError(t, err)
		_, err = verifier.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := verifier.Verify("  ")
		require.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("NoSecret", func(t *testing.T) {
		_, err := (&Verifier{}).Verify("abc")
		require.ErrorIs(t, err, ErrNoSecret)
	})
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, BearerToken(req))

	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", BearerToken(req))

	req.Header.Set("Authorization", "bearer  xyz ")
	assert.Equal(t, "xyz", BearerToken(req))

	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	assert.Empty(t, BearerToken(req))
}

func TestMiddleware(t *testing.T) {
	now := time.Now()
	verifier := &Verifier{Secret: testSecret}
	userToken := issue(t, Session{UserID: "u1"}, now)
	adminToken := issue(t, Session{UserID: "boss", Role: RoleAdmin}, now)

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(CallerID(r)))
	})

	serve := func(h http.Handler, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/abuse", nil)
		req.RemoteAddr = "198.51.100.4:1234"
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("RequireSession", func(t *testing.T) {
		h := RequireSession(verifier)(echo)

		rec := serve(h, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		var body map[string]map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, msgUnauthorized, body["error"]["message"])

		rec = serve(h, "garbage")
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = serve(h, userToken)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user:u1", rec.Body.String())
	})

	t.Run("RequireRole", func(t *testing.T) {
		h := RequireSession(verifier)(RequireRole(RoleAdmin)(echo))

		assert.Equal(t, http.StatusForbidden, serve(h, userToken).Code)
		assert.Equal(t, http.StatusOK, serve(h, adminToken).Code)
		assert.Equal(t, http.StatusUnauthorized, serve(RequireRole(RoleAdmin)(echo), "").Code)
	})

	t.Run("CallerIDFallsBackToHost", func(t *testing.T) {
		assert.Equal(t, "ip:198.51.100.4", serve(echo, "").Body.String())

		// Session attached upstream wins over the address.
		h := RequireSession(verifier)(echo)
		assert.Equal(t, "user:u1", serve(h, userToken).Body.String())
	})
}

func TestCallerIDIgnoresSourcePort(t *testing.T) {
	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "203.0.113.7:40001"
	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "203.0.113.7:40002"

	assert.Equal(t, CallerID(first), CallerID(second))
	assert.Equal(t, "ip:203.0.113.7", CallerID(first))
}
