package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/courseflow/courseflow/internal/auth"
	apperrors "github.com/courseflow/courseflow/internal/errors"
)

func withSession(r *http.Request, userID string) *http.Request {
	session := auth.Session{UserID: userID, Email: userID + "@example.com", Role: "user"}
	return r.WithContext(auth.WithSession(r.Context(), session))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorDetail {
	t.Helper()
	var resp apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}
