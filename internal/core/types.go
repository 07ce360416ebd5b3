package core

import "time"

// Tier identifies a subscription plan.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
	TierTeam Tier = "team"
)

// Unlimited marks a quota without an upper bound.
const Unlimited = -1

// RiskLevel buckets an abuse risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// UsageSnapshot is the current consumption of a user, read from the
// relational store on demand.
type UsageSnapshot struct {
	StorageUsedMB       float64        `json:"storage_used_mb"`
	AISummariesUsed     int            `json:"ai_summaries_used"`
	AISpendThisMonthEUR float64        `json:"ai_spend_this_month_eur"`
	FileHashHistogram   map[string]int `json:"file_hash_histogram,omitempty"`
}

// DailyUsage aggregates one UTC day of activity.
type DailyUsage struct {
	Day         time.Time `json:"day"`
	StorageMB   float64   `json:"storage_mb"`
	AICalls     int       `json:"ai_calls"`
	AISpendEUR  float64   `json:"ai_spend_eur"`
	FilesStored int       `json:"files_stored"`
}

// UsageHistory is a per-day series ordered from oldest to newest. The last
// element, when present, is the current day.
type UsageHistory struct {
	UserID string       `json:"user_id"`
	Days   []DailyUsage `json:"days"`
}

// UsageMetric reports one quota.
type UsageMetric struct {
	Current    float64 `json:"current"`
	Limit      float64 `json:"limit"`
	Percentage float64 `json:"percentage"`
	Unit       string  `json:"unit"`
}

// UsageBreakdown groups the quotas reported by the usage endpoint.
type UsageBreakdown struct {
	Storage     UsageMetric `json:"storage"`
	AISummaries UsageMetric `json:"aiSummaries"`
	AISpend     UsageMetric `json:"aiSpend"`
}

// UsageReport is the self-service usage view.
type UsageReport struct {
	Tier     Tier           `json:"tier"`
	Usage    UsageBreakdown `json:"usage"`
	Warnings []string       `json:"warnings"`
}

// AbuseAssessment is computed per request and never persisted.
type AbuseAssessment struct {
	RiskScore  int       `json:"riskScore"`
	RiskLevel  RiskLevel `json:"riskLevel"`
	Suspicious bool      `json:"suspicious"`
	Reasons    []string  `json:"reasons"`
}

// CostAnomaly flags AI spend that is out of line with the user's baseline.
type CostAnomaly struct {
	Anomalous     bool    `json:"anomalous"`
	TodayEUR      float64 `json:"todayEur"`
	BaselineEUR   float64 `json:"baselineEur"`
	ThresholdEUR  float64 `json:"thresholdEur"`
	MonthSpendEUR float64 `json:"monthSpendEur"`
	Reason        string  `json:"reason,omitempty"`
}

// FileRecord is the subset of a stored file needed for dedup statistics.
type FileRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	ContentHash string    `json:"content_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// DuplicateGroup summarises files sharing a content hash.
type DuplicateGroup struct {
	Hash        string `json:"hash"`
	CanonicalID string `json:"canonicalId"`
	Count       int    `json:"count"`
	SizeBytes   int64  `json:"sizeBytes"`
	SpaceSaved  int64  `json:"spaceSaved"`
}

// DedupStats reports storage saved by content deduplication.
type DedupStats struct {
	TotalSaved               int64            `json:"totalSaved"`
	DuplicatesPreventedCount int              `json:"duplicatesPreventedCount"`
	LastMonthSaved           int64            `json:"lastMonthSaved"`
	LastMonthPrevented       int              `json:"lastMonthPrevented"`
	TopDuplicates            []DuplicateGroup `json:"topDuplicates"`
}
