package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseflow/courseflow/internal/output"
)

func TestRateLimitQueryFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "reset"}
	addRateLimitQueryFlags(cmd, "Reset")
	require.NoError(t, cmd.ParseFlags([]string{"--route", " checkout ", "--caller", "u_1"}))

	query := rateLimitQueryFromFlags(cmd)
	assert.False(t, query.All)
	assert.Equal(t, "checkout", query.Route)
	assert.Equal(t, "u_1", query.Caller)
	assert.Empty(t, query.Prefix)
	assert.NoError(t, query.Validate())
	assert.Contains(t, cmd.Flags().Lookup("all").Usage, "Reset every")
}

func TestWriteRateLimitResetResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRateLimitResetResult(output.FormatTable, &buf, rateLimitResetResult{Matched: 4, DryRun: true}))
	assert.Equal(t, "Would delete 4 rate limit counter(s)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeRateLimitResetResult(output.FormatTable, &buf, rateLimitResetResult{Matched: 4, Deleted: 3}))
	assert.Equal(t, "Deleted 3/4 rate limit counter(s)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeRateLimitResetResult(output.FormatJSON, &buf, rateLimitResetResult{Matched: 2, Deleted: 2}))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, float64(2), decoded["deleted"])
	assert.Equal(t, false, decoded["dry_run"])
}

func TestRateLimitResetAllNeedsConfirmation(t *testing.T) {
	cmd := &cobra.Command{Use: "reset", RunE: rateLimitResetCmd.RunE}
	addRateLimitQueryFlags(cmd, "Reset")
	cmd.Flags().Bool("yes", false, "")
	cmd.Flags().Bool("dry-run", false, "")
	addOutputFlags(cmd, output.FormatTable, output.FormatJSON)
	cmd.SetArgs([]string{"--all"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.ErrorContains(t, err, "--all requires --yes")
}
