package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseflow/courseflow/internal/output"
)

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "u_123", sanitizeFilename(" u_123 "))
	assert.Equal(t, "user-example.com", sanitizeFilename("User@Example.com"))
	assert.Equal(t, "output", sanitizeFilename("../"))
}

func TestOutputExtension(t *testing.T) {
	assert.Equal(t, "json", outputExtension(output.FormatJSON))
	assert.Equal(t, "md", outputExtension(output.FormatMarkdown))
	assert.Equal(t, "yaml", outputExtension(output.FormatYAML))
	assert.Equal(t, "txt", outputExtension(output.FormatTable))
}

func newSinkCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "report"}
	addOutputFlags(cmd, output.FormatTable, output.FormatJSON)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestOpenCommandSinkDefaultsToCommandOutput(t *testing.T) {
	cmd := newSinkCommand(t)
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	sink, err := openCommandSink(cmd, output.FormatTable, "usage", "u1")
	require.NoError(t, err)
	_, err = sink.writer.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, sink.close())

	assert.Equal(t, "-", sink.path)
	assert.Equal(t, "hello", buf.String())
}

func TestOpenCommandSinkOutDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	cmd := newSinkCommand(t, "--out-dir", dir)

	sink, err := openCommandSink(cmd, output.FormatJSON, "usage", "User@Example.com")
	require.NoError(t, err)
	_, err = sink.writer.Write([]byte("{}"))
	require.NoError(t, err)
	require.NoError(t, sink.close())

	assert.Equal(t, filepath.Join(dir, "usage.user-example.com.json"), sink.path)
	data, err := os.ReadFile(sink.path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestOpenCommandSinkRejectsBothTargets(t *testing.T) {
	dir := t.TempDir()
	cmd := newSinkCommand(t, "--out", filepath.Join(dir, "a.txt"), "--out-dir", dir)

	_, err := openCommandSink(cmd, output.FormatTable, "x")
	require.ErrorContains(t, err, "mutually exclusive")
}

func TestAddOutputFlagsDescribesFormats(t *testing.T) {
	cmd := newSinkCommand(t)
	assert.Contains(t, cmd.Flags().Lookup("output-format").Usage, "table|json")

	require.NoError(t, cmd.Flags().Set("output-format", "yml"))
	format, err := resolveOutputFormat(cmd)
	require.NoError(t, err)
	assert.Equal(t, output.FormatYAML, format)
}
