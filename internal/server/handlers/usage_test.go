package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseflow/courseflow/internal/core"
	"github.com/courseflow/courseflow/internal/core/usage"
)

type stubUsageSource struct {
	tier     core.Tier
	snapshot core.UsageSnapshot
	files    []core.FileRecord
	err      error
}

func (s *stubUsageSource) UserTier(ctx context.Context, userID string) (core.Tier, error) {
	return s.tier, s.err
}

func (s *stubUsageSource) UsageSnapshot(ctx context.Context, userID string, now time.Time) (core.UsageSnapshot, error) {
	return s.snapshot, s.err
}

func (s *stubUsageSource) UsageHistory(ctx context.Context, userID string, days int, now time.Time) (core.UsageHistory, error) {
	return core.UsageHistory{UserID: userID}, s.err
}

func (s *stubUsageSource) ListFiles(ctx context.Context, userID string) ([]core.FileRecord, error) {
	return s.files, s.err
}

var usageNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

func newUsageHandler(source *stubUsageSource) *UsageHandler {
	clock := func() time.Time { return usageNow }
	return &UsageHandler{
		Service: &usage.Service{Source: source, Clock: clock},
		Clock:   clock,
	}
}

func TestUsageReport(t *testing.T) {
	h := newUsageHandler(&stubUsageSource{
		tier:     core.TierFree,
		snapshot: core.UsageSnapshot{StorageUsedMB: 450, AISummariesUsed: 2},
	})

	rec := httptest.NewRecorder()
	h.Usage(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/usage", nil), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var report core.UsageReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, core.TierFree, report.Tier)
	assert.Equal(t, 90.0, report.Usage.Storage.Percentage)
	assert.NotEmpty(t, report.Warnings)
}

func TestUsageRequiresSession(t *testing.T) {
	h := newUsageHandler(&stubUsageSource{})
	for name, fn := range map[string]http.HandlerFunc{
		"usage": h.Usage,
		"abuse": h.AbuseCheck,
		"dedup": h.DedupStats,
	} {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest(http.MethodGet, "/api/usage", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func TestAbuseCheckHidesScores(t *testing.T) {
	h := newUsageHandler(&stubUsageSource{tier: core.TierPro})

	rec := httptest.NewRecorder()
	h.AbuseCheck(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/usage/abuse-check", nil), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "low", raw["riskLevel"])
	assert.Equal(t, []any{}, raw["warnings"])
	assert.Equal(t, "2026-10-16T09:30:00Z", raw["timestamp"])
	assert.NotContains(t, raw, "riskScore")
	assert.NotContains(t, raw, "reasons")
}

func TestAdminAbuse(t *testing.T) {
	h := newUsageHandler(&stubUsageSource{tier: core.TierTeam})

	rec := httptest.NewRecorder()
	h.AdminAbuse(rec, httptest.NewRequest(http.MethodGet, "/api/admin/abuse", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeError(t, rec).Code)

	rec = httptest.NewRecorder()
	h.AdminAbuse(rec, httptest.NewRequest(http.MethodGet, "/api/admin/abuse?userId=u9", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var assessment usage.Assessment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&assessment))
	assert.Equal(t, "u9", assessment.UserID)
	assert.Equal(t, core.TierTeam, assessment.Tier)
	assert.Equal(t, core.RiskLow, assessment.AbuseDetection.RiskLevel)
}

func TestDedupStatsHandler(t *testing.T) {
	h := newUsageHandler(&stubUsageSource{files: []core.FileRecord{
		{ID: "f1", ContentHash: "h1", SizeBytes: 100, CreatedAt: usageNow.Add(-48 * time.Hour)},
		{ID: "f2", ContentHash: "h1", SizeBytes: 100, CreatedAt: usageNow.Add(-time.Hour)},
	}})

	rec := httptest.NewRecorder()
	h.DedupStats(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/usage/dedup", nil), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats core.DedupStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(100), stats.TotalSaved)
	assert.Equal(t, 1, stats.DuplicatesPreventedCount)
}

func TestUsageSourceFailure(t *testing.T) {
	h := newUsageHandler(&stubUsageSource{err: errors.New("no such table: files")})

	rec := httptest.NewRecorder()
	h.Usage(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/usage", nil), "u1"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "no such table")
}
