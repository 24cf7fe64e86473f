// Package cmd implements the inkforge CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkforge/inkforge/internal/config"
	"github.com/inkforge/inkforge/internal/dependency"
	"github.com/inkforge/inkforge/internal/telemetry"
)

const version = "0.1.0"
const logo = "🖋"

var (
	configPath string
	logLevel   string
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:          "inkforge",
	Short:        logo + " inkforge: multi-provider content generation",
	Long:         logo + " inkforge drives local and cloud LLMs to write briefs and long-form articles, then publishes them to WordPress",
	SilenceUsage: true,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.inkforge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)
}

// loadConfig reads the config file and environment, then applies the
// --log-level flag and installs the stderr logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	telemetry.SetupLogger(os.Stderr, cfg.ParsedLogLevel())
	return cfg, nil
}

func buildContainer() (*dependency.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return dependency.New(cfg, dependency.Version(version))
}
