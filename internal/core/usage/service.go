package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/courseflow/courseflow/internal/core"
)

// DefaultHistoryDays is the baseline length used for velocity signals.
const DefaultHistoryDays = 30

// DataSource reads a user's activity from the relational store.
type DataSource interface {
	UserTier(ctx context.Context, userID string) (core.Tier, error)
	UsageSnapshot(ctx context.Context, userID string, now time.Time) (core.UsageSnapshot, error)
	UsageHistory(ctx context.Context, userID string, days int, now time.Time) (core.UsageHistory, error)
	ListFiles(ctx context.Context, userID string) ([]core.FileRecord, error)
}

// Service answers usage, abuse and dedup questions for one user at a time.
type Service struct {
	Source      DataSource
	Limits      map[core.Tier]TierLimits
	HistoryDays int
	Clock       func() time.Time
}

// Assessment bundles the full abuse view returned to admins.
type Assessment struct {
	UserID         string               `json:"userId"`
	Tier           core.Tier            `json:"tier"`
	AbuseDetection core.AbuseAssessment `json:"abuseDetection"`
	CostAnomaly    core.CostAnomaly     `json:"costAnomaly"`
}

// Report returns the usage report for userID.
func (s *Service) Report(ctx context.Context, userID string) (core.UsageReport, error) {
	tier, snapshot, err := s.load(ctx, userID)
	if err != nil {
		return core.UsageReport{}, err
	}
	return BuildReport(tier, snapshot, LimitsFor(s.Limits, tier)), nil
}

// Assess computes the abuse assessment and cost anomaly for userID.
func (s *Service) Assess(ctx context.Context, userID string) (Assessment, error) {
	tier, snapshot, err := s.load(ctx, userID)
	if err != nil {
		return Assessment{}, err
	}

	history, err := s.Source.UsageHistory(ctx, userID, s.historyDays(), s.now())
	if err != nil {
		return Assessment{}, fmt.Errorf("load usage history: %w", err)
	}

	limits := LimitsFor(s.Limits, tier)
	return Assessment{
		UserID:         userID,
		Tier:           tier,
		AbuseDetection: AssessAbuse(snapshot, history, limits),
		CostAnomaly:    DetectCostAnomaly(snapshot, history, limits),
	}, nil
}

// DedupStats computes deduplication savings for userID.
func (s *Service) DedupStats(ctx context.Context, userID string) (core.DedupStats, error) {
	if s == nil || s.Source == nil {
		return core.DedupStats{}, fmt.Errorf("usage data source not configured")
	}
	files, err := s.Source.ListFiles(ctx, userID)
	if err != nil {
		return core.DedupStats{}, fmt.Errorf("list files: %w", err)
	}
	return ComputeDedupStats(files, s.now()), nil
}

func (s *Service) load(ctx context.Context, userID string) (core.Tier, core.UsageSnapshot, error) {
	if s == nil || s.Source == nil {
		return "", core.UsageSnapshot{}, fmt.Errorf("usage data source not configured")
	}

	tier, err := s.Source.UserTier(ctx, userID)
	if err != nil {
		return "", core.UsageSnapshot{}, fmt.Errorf("load tier: %w", err)
	}

	snapshot, err := s.Source.UsageSnapshot(ctx, userID, s.now())
	if err != nil {
		return "", core.UsageSnapshot{}, fmt.Errorf("load usage snapshot: %w", err)
	}
	return tier, snapshot, nil
}

func (s *Service) historyDays() int {
	if s.HistoryDays <= 0 {
		return DefaultHistoryDays
	}
	return s.HistoryDays
}

func (s *Service) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}
