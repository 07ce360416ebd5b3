package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courseflow/courseflow/internal/core/engine"
	"github.com/courseflow/courseflow/internal/output"
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored route rate limit counters",
	Example: `  courseflow rate-limit list
  courseflow rate-limit list --route checkout --output-format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		query := rateLimitQueryFromFlags(cmd)
		if !query.All && query.Route == "" && query.Prefix == "" {
			query.All = true
		}

		session, err := openGuardSession(cmd.Context())
		if err != nil {
			return err
		}
		defer session.Close() // nolint:errcheck // best-effort cleanup

		entries, err := engine.ListRateLimits(cmd.Context(), session.state, query)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatRateLimits(entries)
		if err != nil {
			return err
		}

		sink, err := openCommandSink(cmd, format, "rate-limit", "list")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	addRateLimitQueryFlags(rateLimitListCmd, "List")
	addOutputFlags(rateLimitListCmd, output.FormatTable, output.FormatJSON, output.FormatMarkdown, output.FormatYAML)
}
