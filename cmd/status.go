package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkforge/inkforge/internal/config"
	"github.com/inkforge/inkforge/internal/providers"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show inkforge status",
	RunE:  runStatus,
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	fmt.Printf("%s inkforge Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	fmt.Printf("Config:    %s %s\n", cfgPath, mark(statErr == nil))

	container, err := buildContainer()
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}
	cfg := container.Config()

	defs, listErr := container.Registry().List(context.Background())
	fmt.Printf("Tools:     %s %s", cfg.ToolsURL(), mark(listErr == nil))
	if listErr == nil {
		fmt.Printf(" (%d)", len(defs))
	}
	fmt.Println()
	fmt.Printf("Prompts:   %s\n", cfg.PromptsURL())
	fmt.Printf("Default:   %s\n\n", cfg.DefaultProvider)

	fmt.Println("Providers:")
	for _, spec := range providers.PROVIDERS {
		p := cfg.ProviderByName(spec.Name)
		if p == nil {
			continue
		}
		label := spec.Label()
		switch {
		case !spec.NeedsAPIKey:
			base := p.APIBase
			if base == "" {
				base = spec.DefaultAPIBase
			}
			fmt.Printf("  %-20s ✓ %s\n", label, base)
		case p.APIKey != "":
			fmt.Printf("  %-20s ✓\n", label)
		default:
			fmt.Printf("  %-20s (not set)\n", label)
		}
	}

	fmt.Printf("\nWordPress: %s\n", mark(container.WordPress().Configured()))
	return nil
}
