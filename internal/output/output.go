package output

import (
	"fmt"
	"strings"

	"github.com/courseflow/courseflow/internal/core"
	"github.com/courseflow/courseflow/internal/core/usage"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
)

// UsageView is everything the usage report command shows for one user.
type UsageView struct {
	UserID     string           `json:"userId"`
	Report     core.UsageReport `json:"usage"`
	Assessment usage.Assessment `json:"assessment"`
	Dedup      core.DedupStats  `json:"dedup"`
}

// Formatter renders CLI views.
type Formatter interface {
	FormatUsage(view *UsageView) (string, error)
	FormatRateLimits(entries []core.RateLimitEntry) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown):
		return FormatMarkdown, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		return &TableFormatter{}
	}
}

func metricCells(m core.UsageMetric) (string, string, string) {
	limit := fmt.Sprintf("%g", m.Limit)
	if m.Limit == core.Unlimited {
		limit = "unlimited"
	}
	return fmt.Sprintf("%g %s", m.Current, m.Unit), limit, fmt.Sprintf("%.1f%%", m.Percentage)
}

func quotaRows(report core.UsageReport) [][4]string {
	rows := make([][4]string, 0, 3)
	for _, q := range []struct {
		name   string
		metric core.UsageMetric
	}{
		{"storage", report.Usage.Storage},
		{"ai summaries", report.Usage.AISummaries},
		{"ai spend", report.Usage.AISpend},
	} {
		current, limit, pct := metricCells(q.metric)
		rows = append(rows, [4]string{q.name, current, limit, pct})
	}
	return rows
}

func riskSummary(a usage.Assessment) string {
	summary := fmt.Sprintf("%s (score %d)", a.AbuseDetection.RiskLevel, a.AbuseDetection.RiskScore)
	if a.AbuseDetection.Suspicious {
		summary += ", suspicious"
	}
	return summary
}

func costSummary(c core.CostAnomaly) string {
	if !c.Anomalous {
		return fmt.Sprintf("normal (today %.2f EUR, threshold %.2f EUR)", c.TodayEUR, c.ThresholdEUR)
	}
	return "anomalous: " + c.Reason
}
