package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/courseflow/courseflow/internal/core/engine"
	"github.com/courseflow/courseflow/internal/output"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Inspect webhook replay protection state",
	Long: `Look up billing webhook events in the processed-event table. Records
live in the configured KV backend and expire after webhook.retention.`,
}

var webhookEventCmd = &cobra.Command{
	Use:   "event <event-id>",
	Short: "Show whether a webhook event was processed",
	Example: `  courseflow webhook event evt_123
  courseflow webhook event evt_123 --output-format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		eventID := strings.TrimSpace(args[0])
		if eventID == "" {
			return errors.New("event id is required")
		}

		session, err := openGuardSession(cmd.Context())
		if err != nil {
			return err
		}
		defer session.Close() // nolint:errcheck // best-effort cleanup

		status, err := lookupWebhookEvent(cmd.Context(), &engine.WebhookGuard{Store: session.state}, eventID)
		if err != nil {
			return err
		}
		return writeWebhookEventStatus(format, cmd.OutOrStdout(), status)
	},
}

type webhookEventStatus struct {
	EventID     string     `json:"event_id"`
	Processed   bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func lookupWebhookEvent(ctx context.Context, guard *engine.WebhookGuard, eventID string) (webhookEventStatus, error) {
	record, ok, err := guard.ProcessedEvent(ctx, eventID)
	if err != nil {
		return webhookEventStatus{}, fmt.Errorf("lookup webhook event %s: %w", eventID, err)
	}
	status := webhookEventStatus{EventID: eventID, Processed: ok}
	if ok {
		at := record.ProcessedAt
		status.ProcessedAt = &at
	}
	return status, nil
}

func writeWebhookEventStatus(format output.Format, w io.Writer, status webhookEventStatus) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if !status.Processed {
		_, err := fmt.Fprintf(w, "%s: not processed within the retention window\n", status.EventID)
		return err
	}
	_, err := fmt.Fprintf(w, "%s: processed at %s\n", status.EventID, status.ProcessedAt.UTC().Format(time.RFC3339))
	return err
}

func init() {
	addOutputFlags(webhookEventCmd, output.FormatTable, output.FormatJSON)
	webhookCmd.AddCommand(webhookEventCmd)
	rootCmd.AddCommand(webhookCmd)
}
