package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

// versionReport is the --json shape of the version command.
type versionReport struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	Go        string `json:"go,omitempty"`
	Gofulmen  string `json:"gofulmen,omitempty"`
	Crucible  string `json:"crucible,omitempty"`
}

func buildVersionReport(extended bool) versionReport {
	name := "courseflow"
	if identity := GetAppIdentity(); identity != nil && identity.BinaryName != "" {
		name = identity.BinaryName
	}
	report := versionReport{
		Name:      name,
		Version:   versionInfo.Version,
		Commit:    versionInfo.Commit,
		BuildDate: versionInfo.BuildDate,
	}
	if extended {
		deps := crucible.GetVersion()
		report.Go = runtime.Version()
		report.Gofulmen = deps.Gofulmen
		report.Crucible = deps.Crucible
	}
	return report
}

func writeVersion(w io.Writer, report versionReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if _, err := fmt.Fprintf(w, "%s %s\n", report.Name, report.Version); err != nil {
		return err
	}
	if report.Go == "" {
		return nil
	}
	_, err := fmt.Fprintf(w, "Commit: %s\nBuilt: %s\nGo: %s\n\nGofulmen: %s\nCrucible: %s\n",
		report.Commit, report.BuildDate, report.Go, report.Gofulmen, report.Crucible)
	return err
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for commit, build and dependency versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		extended, _ := cmd.Flags().GetBool("extended")
		asJSON, _ := cmd.Flags().GetBool("json")
		return writeVersion(cmd.OutOrStdout(), buildVersionReport(extended), asJSON)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolP("extended", "e", false, "show extended version information")
	versionCmd.Flags().Bool("json", false, "print version information as JSON")
}
