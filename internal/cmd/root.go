package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/courseflow/courseflow/internal/appid"
	"github.com/courseflow/courseflow/internal/config"
	"github.com/courseflow/courseflow/internal/observability"
)

var (
	cfgFile string
	verbose bool

	appIdentity *appidentity.Identity

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the app identity.
func GetAppIdentity() *appidentity.Identity {
	return appIdentity
}

var rootCmd = &cobra.Command{
	Use:   filepath.Base(os.Args[0]),
	Short: appid.Description,
	Long: `Guards for the CourseFlow billing and usage API.

Run "serve" to start the HTTP API. The rate-limit and usage commands read
the same store and KV backend the server uses, so operators can inspect
and clear limiter state without going through HTTP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Config loading would otherwise emit telemetry to stdout before serve
	// installs the real system.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	if identity, err := appid.Get(context.Background()); err == nil {
		applyIdentity(identity)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/courseflow/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func applyIdentity(identity *appidentity.Identity) {
	if identity == nil {
		return
	}
	appIdentity = identity
	if identity.BinaryName != "" {
		rootCmd.Use = identity.BinaryName
	}
	if identity.Description != "" {
		rootCmd.Short = identity.Description
	}
	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil && identity.ConfigName != "" {
		f.Usage = fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName)
	}
}

// initConfig resolves the config file path and CLI logger. config.Load does
// the actual layering; the global viper only tracks the file in use and the
// flags bound to it.
func initConfig() {
	identity, err := appid.Get(context.Background())
	if err != nil {
		ExitWithCodeStderr(foundry.ExitFileNotFound, "Failed to load app identity", err)
		return
	}
	applyIdentity(identity)

	viper.SetEnvPrefix(strings.TrimSuffix(identity.EnvPrefix, "_"))
	viper.AutomaticEnv()
	if viper.GetBool("verbose") {
		verbose = true
	}

	observability.InitCLILogger(identity.BinaryName, verbose)

	path := strings.TrimSpace(cfgFile)
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if path == "" {
		return
	}
	viper.SetConfigFile(path)

	if _, statErr := os.Stat(path); statErr != nil {
		if cfgFile != "" {
			ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Config file not found", statErr)
			return
		}
		if verbose {
			observability.CLILogger.Debug("No config file found, using defaults and environment variables",
				zap.String("path", path))
		}
		return
	}
	if verbose {
		observability.CLILogger.Debug("Using config file", zap.String("path", path))
	}
}
