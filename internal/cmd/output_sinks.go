package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/courseflow/courseflow/internal/output"
)

// outputSink is where a command's rendered report goes. path is "-" for the
// command's stdout.
type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

// addOutputFlags registers --output-format, --out and --out-dir.
func addOutputFlags(cmd *cobra.Command, formats ...output.Format) {
	names := make([]string, 0, len(formats))
	for _, f := range formats {
		names = append(names, string(f))
	}
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: "+strings.Join(names, "|"))
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to a directory using a generated file name")
}

func outputExtension(format output.Format) string {
	switch format {
	case output.FormatJSON:
		return "json"
	case output.FormatMarkdown:
		return "md"
	case output.FormatYAML:
		return "yaml"
	default:
		return "txt"
	}
}

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

func sanitizeFilename(value string) string {
	clean := strings.ToLower(strings.TrimSpace(value))
	clean = nonFilename.ReplaceAllString(clean, "-")
	clean = strings.Trim(clean, "-.")
	if clean == "" {
		return "output"
	}
	return clean
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// openCommandSink resolves --out and --out-dir for cmd. With --out-dir the
// file is named from the name parts plus the format's extension.
func openCommandSink(cmd *cobra.Command, format output.Format, name ...string) (*outputSink, error) {
	outPath, _ := cmd.Flags().GetString("out")
	outDir, _ := cmd.Flags().GetString("out-dir")
	outPath, outDir = strings.TrimSpace(outPath), strings.TrimSpace(outDir)

	switch {
	case outPath != "" && outDir != "":
		return nil, fmt.Errorf("--out and --out-dir are mutually exclusive")
	case outDir != "":
		parts := make([]string, 0, len(name)+1)
		for _, part := range name {
			parts = append(parts, sanitizeFilename(part))
		}
		parts = append(parts, outputExtension(format))
		outPath = filepath.Join(outDir, strings.Join(parts, "."))
	case outPath == "" || outPath == "-":
		return &outputSink{writer: cmd.OutOrStdout(), close: func() error { return nil }, path: "-"}, nil
	}
	return createSink(outPath)
}

func createSink(path string) (*outputSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: path}, nil
}
