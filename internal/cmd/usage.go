package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/courseflow/courseflow/internal/output"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect per-user usage, quotas and abuse signals",
}

var usageReportUser string

var usageReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show quota usage, abuse assessment and dedup savings for a user",
	Example: `  courseflow usage report --user u_123
  courseflow usage report --user u_123 --output-format json --out-dir ./reports`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := strings.TrimSpace(usageReportUser)
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		service := newUsageService(cfg, db)

		report, err := service.Report(cmd.Context(), userID)
		if err != nil {
			return fmt.Errorf("usage report: %w", err)
		}
		assessment, err := service.Assess(cmd.Context(), userID)
		if err != nil {
			return fmt.Errorf("abuse assessment: %w", err)
		}
		dedup, err := service.DedupStats(cmd.Context(), userID)
		if err != nil {
			return fmt.Errorf("dedup stats: %w", err)
		}

		rendered, err := output.NewFormatter(format).FormatUsage(&output.UsageView{
			UserID:     userID,
			Report:     report,
			Assessment: assessment,
			Dedup:      dedup,
		})
		if err != nil {
			return err
		}

		sink, err := openCommandSink(cmd, format, "usage", userID)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	usageReportCmd.Flags().StringVar(&usageReportUser, "user", "", "User id to report on")
	addOutputFlags(usageReportCmd, output.FormatTable, output.FormatJSON, output.FormatMarkdown, output.FormatYAML)

	usageCmd.AddCommand(usageReportCmd)
	rootCmd.AddCommand(usageCmd)
}
