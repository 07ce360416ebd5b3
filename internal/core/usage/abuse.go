package usage

import (
	"fmt"
	"math"

	"github.com/courseflow/courseflow/internal/core"
)

// Risk level boundaries on the 0-100 score.
const (
	HighRiskThreshold   = 60
	MediumRiskThreshold = 40
)

// Weights of the abuse signals. They sum to 100.
const (
	WeightStorageVelocity = 35.0
	WeightAIVelocity      = 35.0
	WeightDuplicates      = 15.0
	WeightQuotaPressure   = 15.0
)

// Baseline settings.
const (
	// MinBaselineDays is the history needed before velocity is scored.
	MinBaselineDays = 3

	// outlierZ is the modified Z-score above which a signal is reported.
	outlierZ = 3.5

	// saturatingZ maps to a full signal score.
	saturatingZ = 6.0

	storageFloorMB = 50.0
	aiCallsFloor   = 5.0
	spendFloorEUR  = 0.5

	// costCapRatio flags spend above this share of the plan's AI budget.
	costCapRatio = 0.8
)

// RiskLevelFor buckets a score: above 60 is high, above 40 medium.
func RiskLevelFor(score int) core.RiskLevel {
	switch {
	case score > HighRiskThreshold:
		return core.RiskHigh
	case score > MediumRiskThreshold:
		return core.RiskMedium
	default:
		return core.RiskLow
	}
}

// AssessAbuse combines storage and AI-call velocity against the user's own
// history with duplicate-upload ratio and quota pressure.
func AssessAbuse(snapshot core.UsageSnapshot, history core.UsageHistory, limits TierLimits) core.AbuseAssessment {
	reasons := []string{}
	today, baseline := splitHistory(history)

	var storageScore, aiScore float64
	if len(baseline) >= MinBaselineDays {
		storageZ := velocityZ(today.StorageMB, pluck(baseline, func(d core.DailyUsage) float64 { return d.StorageMB }), storageFloorMB)
		storageScore = clampScore(storageZ / saturatingZ * 100)
		if storageZ >= outlierZ {
			reasons = append(reasons, fmt.Sprintf("storage growth of %.1f MB today is far above the %d-day baseline", today.StorageMB, len(baseline)))
		}

		aiZ := velocityZ(float64(today.AICalls), pluck(baseline, func(d core.DailyUsage) float64 { return float64(d.AICalls) }), aiCallsFloor)
		aiScore = clampScore(aiZ / saturatingZ * 100)
		if aiZ >= outlierZ {
			reasons = append(reasons, fmt.Sprintf("%d AI calls today is far above the %d-day baseline", today.AICalls, len(baseline)))
		}
	}

	dupRatio := DuplicateRatio(snapshot.FileHashHistogram)
	dupScore := clampScore(dupRatio * 200)
	if dupRatio >= 0.5 {
		reasons = append(reasons, fmt.Sprintf("%.0f%% of stored files are duplicates", dupRatio*100))
	}

	pressure := QuotaPressure(BuildReport(core.TierFree, snapshot, limits))
	if pressure >= LimitThreshold {
		reasons = append(reasons, "one or more plan quotas are exhausted")
	}

	score := (WeightStorageVelocity*storageScore +
		WeightAIVelocity*aiScore +
		WeightDuplicates*dupScore +
		WeightQuotaPressure*pressure) / 100
	riskScore := int(math.Round(clampScore(score)))

	return core.AbuseAssessment{
		RiskScore:  riskScore,
		RiskLevel:  RiskLevelFor(riskScore),
		Suspicious: riskScore > MediumRiskThreshold,
		Reasons:    reasons,
	}
}

// DetectCostAnomaly flags today's AI spend when it exceeds the robust
// baseline threshold (median + 3 sigma) or when the month's spend is above
// 80% of the plan budget.
func DetectCostAnomaly(snapshot core.UsageSnapshot, history core.UsageHistory, limits TierLimits) core.CostAnomaly {
	today, baseline := splitHistory(history)
	result := core.CostAnomaly{
		TodayEUR:      round2(today.AISpendEUR),
		MonthSpendEUR: round2(snapshot.AISpendThisMonthEUR),
	}

	if len(baseline) >= MinBaselineDays {
		m, mad := medianAbsoluteDeviation(pluck(baseline, func(d core.DailyUsage) float64 { return d.AISpendEUR }))
		threshold := m + 3*madScale*mad
		if mad == 0 {
			threshold = math.Max(m*2, spendFloorEUR)
		}
		result.BaselineEUR = round2(m)
		result.ThresholdEUR = round2(threshold)

		if today.AISpendEUR > threshold {
			result.Anomalous = true
			result.Reason = fmt.Sprintf("AI spend today (%.2f EUR) exceeds the expected threshold of %.2f EUR", today.AISpendEUR, threshold)
			return result
		}
	}

	if limits.AISpendEUR != core.Unlimited && limits.AISpendEUR > 0 &&
		snapshot.AISpendThisMonthEUR > limits.AISpendEUR*costCapRatio {
		result.Anomalous = true
		result.Reason = fmt.Sprintf("AI spend this month (%.2f EUR) is above %.0f%% of the plan budget", snapshot.AISpendThisMonthEUR, costCapRatio*100)
	}
	return result
}

// SelfServiceWarnings returns the coarse messages shown to the user for an
// assessment. Scores and reasons stay server-side.
func SelfServiceWarnings(assessment core.AbuseAssessment, anomaly core.CostAnomaly) []string {
	warnings := []string{}
	switch assessment.RiskLevel {
	case core.RiskHigh:
		warnings = append(warnings, "Unusual account activity detected. Some features may be limited.")
	case core.RiskMedium:
		warnings = append(warnings, "Your recent activity is higher than usual.")
	}
	if anomaly.Anomalous {
		warnings = append(warnings, "Your AI usage costs are higher than usual.")
	}
	return warnings
}

// DuplicateRatio is the share of files whose content hash was already seen.
func DuplicateRatio(histogram map[string]int) float64 {
	var total, dups int
	for _, count := range histogram {
		if count <= 0 {
			continue
		}
		total += count
		dups += count - 1
	}
	if total == 0 {
		return 0
	}
	return float64(dups) / float64(total)
}

// splitHistory separates the current day from the days before it.
func splitHistory(history core.UsageHistory) (core.DailyUsage, []core.DailyUsage) {
	if len(history.Days) == 0 {
		return core.DailyUsage{}, nil
	}
	last := len(history.Days) - 1
	return history.Days[last], history.Days[:last]
}

func pluck(days []core.DailyUsage, fn func(core.DailyUsage) float64) []float64 {
	out := make([]float64, len(days))
	for i, d := range days {
		out[i] = fn(d)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
