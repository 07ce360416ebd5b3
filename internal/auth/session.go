// Package auth verifies session tokens issued by the hosted auth backend
// and exposes the caller identity to handlers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin grants the admin endpoints.
const RoleAdmin = "admin"

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid session token")
	ErrNoSecret     = errors.New("auth: signing secret not configured")
)

// Claims are the session claims. Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Session is the verified caller.
type Session struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// IsAdmin reports whether the session carries the admin role.
func (s Session) IsAdmin() bool {
	return strings.EqualFold(s.Role, RoleAdmin)
}

// Verifier validates HS256 session tokens.
type Verifier struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
	Clock    func() time.Time
}

// Verify parses and validates a raw token.
func (v *Verifier) Verify(raw string) (Session, error) {
	if v == nil || len(v.Secret) == 0 {
		return Session{}, ErrNoSecret
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Session{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.Leeway),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	if v.Clock != nil {
		opts = append(opts, jwt.WithTimeFunc(v.Clock))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Session{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	session := Session{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// Issue signs a session token. The hosted backend issues production tokens;
// this serves the CLI and tests.
func Issue(secret []byte, session Session, issuer, audience string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSecret
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-1 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: session.Email,
		Role:  session.Role,
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

type sessionContextKey struct{}

// WithSession stores the session on ctx.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// FromContext returns the session stored by the middleware.
func FromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(Session)
	return session, ok
}
