package auth

import (
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/courseflow/courseflow/internal/errors"
	"github.com/courseflow/courseflow/internal/observability"
	"github.com/courseflow/courseflow/internal/server/middleware"
)

// Client-facing messages stay generic.
const (
	msgUnauthorized = "authentication required"
	msgForbidden    = "insufficient permissions"
)

// RequireSession rejects requests without a valid session with 401.
func RequireSession(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			session, err := v.Verify(BearerToken(r))
			if err != nil {
				if observability.ServerLogger != nil {
					observability.ServerLogger.Debug("session rejected",
						zap.String("path", r.URL.Path),
						zap.Error(err),
					)
				}
				apperrors.RespondWithEnvelope(w, r, apperrors.WrapUnauthorized(r.Context(), err, msgUnauthorized))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// RequireRole must run after RequireSession. It answers 403 when the
// session lacks role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := FromContext(r.Context())
			if !ok {
				apperrors.RespondWithEnvelope(w, r, apperrors.NewUnauthorizedError(msgUnauthorized))
				return
			}
			if session.Role != role && !(role == RoleAdmin && session.IsAdmin()) {
				apperrors.RespondWithEnvelope(w, r, apperrors.NewForbiddenError(msgForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CallerID keys rate limits: the session user when present, else the
// client address.
func CallerID(r *http.Request) string {
	if session, ok := FromContext(r.Context()); ok && session.UserID != "" {
		return "user:" + session.UserID
	}
	return middleware.RemoteIdentifier(r)
}
