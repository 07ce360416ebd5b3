package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/courseflow/courseflow/internal/core/engine"
	"github.com/courseflow/courseflow/internal/output"
)

// rateLimitResetResult is the JSON shape of a reset run.
type rateLimitResetResult struct {
	Matched int  `json:"matched"`
	Deleted int  `json:"deleted"`
	DryRun  bool `json:"dry_run"`
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored route rate limit counters",
	Example: `  courseflow rate-limit reset --route checkout --caller u_123
  courseflow rate-limit reset --all --dry-run
  courseflow rate-limit reset --all --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := rateLimitQueryFromFlags(cmd)
		if err := query.Validate(); err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if query.All && !yes && !dryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		session, err := openGuardSession(cmd.Context())
		if err != nil {
			return err
		}
		defer session.Close() // nolint:errcheck // best-effort cleanup

		result := rateLimitResetResult{DryRun: dryRun}
		result.Matched, err = engine.CountRateLimits(cmd.Context(), session.state, query)
		if err != nil {
			return err
		}
		if !dryRun {
			result.Deleted, err = engine.ResetRateLimits(cmd.Context(), session.state, query)
			if err != nil {
				return err
			}
		}

		sink, err := openCommandSink(cmd, format, "rate-limit", "reset")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		return writeRateLimitResetResult(format, sink.writer, result)
	},
}

func writeRateLimitResetResult(format output.Format, w io.Writer, result rateLimitResetResult) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if result.DryRun {
		_, err := fmt.Fprintf(w, "Would delete %d rate limit counter(s)\n", result.Matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d rate limit counter(s)\n", result.Deleted, result.Matched)
	return err
}

func init() {
	addRateLimitQueryFlags(rateLimitResetCmd, "Reset")
	rateLimitResetCmd.Flags().Bool("yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().Bool("dry-run", false, "Show what would be deleted")
	addOutputFlags(rateLimitResetCmd, output.FormatTable, output.FormatJSON)
}
