package usage

import (
	"fmt"
	"math"

	"github.com/courseflow/courseflow/internal/core"
)

// Warning thresholds, in percent of a quota.
const (
	WarnThreshold  = 80.0
	LimitThreshold = 100.0
)

// Units reported next to each metric.
const (
	UnitMB        = "MB"
	UnitSummaries = "summaries"
	UnitEUR       = "EUR"
)

// Percentage returns current/limit in percent, clamped to [0,100]. An
// unlimited quota reports 0. A zero quota reports 100 once anything is used.
func Percentage(current, limit float64) float64 {
	if limit == core.Unlimited {
		return 0
	}
	if limit <= 0 {
		if current > 0 {
			return 100
		}
		return 0
	}

	pct := current / limit * 100
	switch {
	case math.IsNaN(pct) || pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return math.Round(pct*10) / 10
}

// NewMetric builds a usage metric.
func NewMetric(current, limit float64, unit string) core.UsageMetric {
	return core.UsageMetric{
		Current:    math.Round(current*100) / 100,
		Limit:      limit,
		Percentage: Percentage(current, limit),
		Unit:       unit,
	}
}

// BuildReport compares snapshot against the limits of tier.
func BuildReport(tier core.Tier, snapshot core.UsageSnapshot, limits TierLimits) core.UsageReport {
	report := core.UsageReport{
		Tier: tier,
		Usage: core.UsageBreakdown{
			Storage:     NewMetric(snapshot.StorageUsedMB, limits.StorageMB, UnitMB),
			AISummaries: NewMetric(float64(snapshot.AISummariesUsed), float64(limits.AISummaries), UnitSummaries),
			AISpend:     NewMetric(snapshot.AISpendThisMonthEUR, limits.AISpendEUR, UnitEUR),
		},
		Warnings: []string{},
	}

	report.Warnings = appendWarning(report.Warnings, "storage", report.Usage.Storage)
	report.Warnings = appendWarning(report.Warnings, "AI summary", report.Usage.AISummaries)
	report.Warnings = appendWarning(report.Warnings, "AI spend", report.Usage.AISpend)
	return report
}

func appendWarning(warnings []string, label string, metric core.UsageMetric) []string {
	if metric.Limit == core.Unlimited {
		return warnings
	}
	switch {
	case metric.Percentage >= LimitThreshold:
		return append(warnings, fmt.Sprintf("You have reached your %s limit. Upgrade your plan to continue.", label))
	case metric.Percentage >= WarnThreshold:
		return append(warnings, fmt.Sprintf("You have used %.0f%% of your %s limit.", metric.Percentage, label))
	}
	return warnings
}

// QuotaPressure is the highest percentage across limited quotas.
func QuotaPressure(report core.UsageReport) float64 {
	return math.Max(report.Usage.Storage.Percentage,
		math.Max(report.Usage.AISummaries.Percentage, report.Usage.AISpend.Percentage))
}
