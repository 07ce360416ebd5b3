package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/courseflow/courseflow/internal/core"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatUsage renders quotas, risk and dedup savings as tables.
func (f *TableFormatter) FormatUsage(view *UsageView) (string, error) {
	if view == nil {
		return "", nil
	}

	quotas := table.NewWriter()
	quotas.SetStyle(table.StyleRounded)
	quotas.SetTitle(fmt.Sprintf("%s (%s)", view.UserID, view.Report.Tier))
	quotas.AppendHeader(table.Row{"Quota", "Current", "Limit", "Used"})
	for _, row := range quotaRows(view.Report) {
		quotas.AppendRow(table.Row{row[0], row[1], row[2], row[3]})
	}
	if len(view.Report.Warnings) > 0 {
		quotas.AppendFooter(table.Row{"", "", "", strings.Join(view.Report.Warnings, "\n")})
	}

	risk := table.NewWriter()
	risk.SetStyle(table.StyleRounded)
	risk.AppendHeader(table.Row{"Signal", "Result"})
	risk.AppendRow(table.Row{"risk", riskSummary(view.Assessment)})
	for _, reason := range view.Assessment.AbuseDetection.Reasons {
		risk.AppendRow(table.Row{"", reason})
	}
	risk.AppendRow(table.Row{"cost", costSummary(view.Assessment.CostAnomaly)})
	risk.AppendRow(table.Row{"dedup saved", fmt.Sprintf("%d bytes (%d duplicates)", view.Dedup.TotalSaved, view.Dedup.DuplicatesPreventedCount)})
	risk.AppendRow(table.Row{"dedup last month", fmt.Sprintf("%d bytes (%d duplicates)", view.Dedup.LastMonthSaved, view.Dedup.LastMonthPrevented)})

	return quotas.Render() + "\n" + risk.Render(), nil
}

// FormatRateLimits renders stored counters.
func (f *TableFormatter) FormatRateLimits(entries []core.RateLimitEntry) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Key", "Count", "Window Resets"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Key, e.Count, e.WindowResetAt.UTC().Format(time.RFC3339)})
	}
	t.AppendFooter(table.Row{"", len(entries), "entries"})
	return t.Render(), nil
}
