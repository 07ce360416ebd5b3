// Package usage computes quota usage, abuse risk and deduplication savings
// from a user's stored activity.
package usage

import (
	"strings"

	"github.com/courseflow/courseflow/internal/core"
)

// TierLimits are the quotas of a plan. core.Unlimited disables a quota.
type TierLimits struct {
	StorageMB   float64 `json:"storage_mb" mapstructure:"storage_mb"`
	AISummaries int     `json:"ai_summaries" mapstructure:"ai_summaries"`
	AISpendEUR  float64 `json:"ai_spend_eur" mapstructure:"ai_spend_eur"`
}

// DefaultTierLimits are the published plan quotas.
var DefaultTierLimits = map[core.Tier]TierLimits{
	core.TierFree: {StorageMB: 500, AISummaries: 10, AISpendEUR: 1},
	core.TierPro:  {StorageMB: 10 * 1024, AISummaries: 200, AISpendEUR: 20},
	core.TierTeam: {StorageMB: core.Unlimited, AISummaries: core.Unlimited, AISpendEUR: core.Unlimited},
}

// ParseTier normalises a stored tier name. Unknown values map to free.
func ParseTier(value string) core.Tier {
	switch core.Tier(strings.ToLower(strings.TrimSpace(value))) {
	case core.TierPro:
		return core.TierPro
	case core.TierTeam:
		return core.TierTeam
	default:
		return core.TierFree
	}
}

// LimitsFor returns the quotas for tier, falling back to the free plan.
func LimitsFor(limits map[core.Tier]TierLimits, tier core.Tier) TierLimits {
	if limits == nil {
		limits = DefaultTierLimits
	}
	if l, ok := limits[tier]; ok {
		return l
	}
	if l, ok := DefaultTierLimits[tier]; ok {
		return l
	}
	return DefaultTierLimits[core.TierFree]
}
