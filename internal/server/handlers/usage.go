package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/courseflow/courseflow/internal/auth"
	"github.com/courseflow/courseflow/internal/core"
	"github.com/courseflow/courseflow/internal/core/usage"
	apperrors "github.com/courseflow/courseflow/internal/errors"
	"github.com/courseflow/courseflow/internal/metrics"
)

// UsageHandler serves the usage, abuse and dedup views.
type UsageHandler struct {
	Service *usage.Service
	Clock   func() time.Time
}

// AbuseSelfCheckResponse is the coarse view shown to the user themselves.
// Scores and reasons are withheld.
type AbuseSelfCheckResponse struct {
	Warnings  []string       `json:"warnings"`
	RiskLevel core.RiskLevel `json:"riskLevel"`
	Timestamp time.Time      `json:"timestamp"`
}

// Usage returns the caller's quota report.
func (h *UsageHandler) Usage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	report, err := h.Service.Report(r.Context(), session.UserID)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to load usage"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// AbuseCheck returns the caller's bucketed risk level and generic warnings.
func (h *UsageHandler) AbuseCheck(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	assessment, err := h.Service.Assess(r.Context(), session.UserID)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to assess usage"))
		return
	}
	metrics.RecordAbuseAssessment(string(assessment.AbuseDetection.RiskLevel), assessment.CostAnomaly.Anomalous)

	writeJSON(w, http.StatusOK, AbuseSelfCheckResponse{
		Warnings:  usage.SelfServiceWarnings(assessment.AbuseDetection, assessment.CostAnomaly),
		RiskLevel: assessment.AbuseDetection.RiskLevel,
		Timestamp: h.now(),
	})
}

// AdminAbuse returns the full assessment of the user named by ?userId=.
func (h *UsageHandler) AdminAbuse(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		respondWithError(w, r, apperrors.NewValidationError("userId query parameter is required"))
		return
	}

	assessment, err := h.Service.Assess(r.Context(), userID)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to assess usage"))
		return
	}
	metrics.RecordAbuseAssessment(string(assessment.AbuseDetection.RiskLevel), assessment.CostAnomaly.Anomalous)
	writeJSON(w, http.StatusOK, assessment)
}

// DedupStats returns the caller's deduplication savings.
func (h *UsageHandler) DedupStats(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	stats, err := h.Service.DedupStats(r.Context(), session.UserID)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to load dedup stats"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *UsageHandler) session(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	session, ok := auth.FromContext(r.Context())
	if !ok || session.UserID == "" {
		respondWithError(w, r, apperrors.NewUnauthorizedError("authentication required"))
		return auth.Session{}, false
	}
	return session, true
}

func (h *UsageHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now().UTC()
}
