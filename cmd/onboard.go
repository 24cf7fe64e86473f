package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkforge/inkforge/internal/config"
	"github.com/inkforge/inkforge/internal/dependency"
	"github.com/inkforge/inkforge/internal/telemetry"
)

var onboardOverwrite bool

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration and install the preset tools",
	RunE:  runOnboard,
}

func init() {
	onboardCmd.Flags().BoolVar(&onboardOverwrite, "overwrite", false, "Replace existing preset tool and prompt files")
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	var cfg *config.Config
	if _, err := os.Stat(cfgPath); err == nil {
		// Refresh: keep existing values, add any new keys.
		existing, loadErr := config.LoadFile(cfgPath)
		if loadErr != nil {
			def := config.DefaultConfig()
			existing = &def
		}
		cfg = existing
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s\n", cfgPath)
	} else {
		def := config.DefaultConfig()
		cfg = &def
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return err
	}
	telemetry.SetupLogger(os.Stderr, cfg.ParsedLogLevel())

	container, err := dependency.New(cfg, dependency.Version(version))
	if err != nil {
		return err
	}
	n, err := container.Registry().InstallPresets(context.Background(), onboardOverwrite)
	if err != nil {
		return fmt.Errorf("install presets: %w", err)
	}
	fmt.Printf("✓ Installed %d preset files under %s and %s\n", n, cfg.ToolsURL(), cfg.PromptsURL())

	fmt.Printf("\n%s inkforge is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Start a local model: ollama pull gemma3:12b\n")
	fmt.Printf("  2. Optionally add cloud API keys and WordPress credentials to %s\n", cfgPath)
	fmt.Printf("  3. Try it: inkforge run --tool brief --input question=\"如何写好开头\" --input platform=zhihu\n")
	return nil
}
