package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/courseflow/courseflow/internal/core"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatUsage renders the usage view as Markdown.
func (f *MarkdownFormatter) FormatUsage(view *UsageView) (string, error) {
	if view == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Usage for %s (%s)\n\n", escapeMarkdownCell(view.UserID), view.Report.Tier))
	sb.WriteString("| Quota | Current | Limit | Used |\n")
	sb.WriteString("|-------|---------|-------|------|\n")
	for _, row := range quotaRows(view.Report) {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", row[0], row[1], row[2], row[3]))
	}
	for _, w := range view.Report.Warnings {
		sb.WriteString(fmt.Sprintf("\n> %s", w))
	}

	sb.WriteString(fmt.Sprintf("\n\n**Risk**: %s\n", escapeMarkdownCell(riskSummary(view.Assessment))))
	for _, reason := range view.Assessment.AbuseDetection.Reasons {
		sb.WriteString(fmt.Sprintf("- %s\n", reason))
	}
	sb.WriteString(fmt.Sprintf("\n**Cost**: %s\n", costSummary(view.Assessment.CostAnomaly)))
	sb.WriteString(fmt.Sprintf("\n**Dedup**: %d bytes saved, %d duplicates prevented\n", view.Dedup.TotalSaved, view.Dedup.DuplicatesPreventedCount))
	return sb.String(), nil
}

// FormatRateLimits renders counters as a Markdown table.
func (f *MarkdownFormatter) FormatRateLimits(entries []core.RateLimitEntry) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Key | Count | Window Resets |\n")
	sb.WriteString("|-----|-------|---------------|\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("| %s | %d | %s |\n", escapeMarkdownCell(e.Key), e.Count, e.WindowResetAt.UTC().Format(time.RFC3339)))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
