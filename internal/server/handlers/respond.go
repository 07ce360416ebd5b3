package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/courseflow/courseflow/internal/errors"
)

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

// writeJSON writes body as the response. Responses here are per caller, so
// intermediaries must not cache them.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeOptionalJSON reads at most limit bytes into dst. An empty body
// leaves dst untouched.
func decodeOptionalJSON(r *http.Request, limit int64, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, limit)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
