package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkforge/inkforge/internal/schema"
	"github.com/inkforge/inkforge/internal/shared/cmdutils"
)

var (
	runTool         string
	runInputs       []string
	runProvider     string
	runMaterialURL  string
	runMaterialFile string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a tool once and print the result",
	Example: `  inkforge run --tool brief --input question="如何写好开头" --input platform=zhihu
  inkforge run --tool brief --input question=... --material-url https://example.com/post`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runTool, "tool", "t", "", "Tool id")
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "Input as name=value (repeatable)")
	runCmd.Flags().StringVarP(&runProvider, "provider", "p", "", "Provider type override")
	runCmd.Flags().StringVar(&runMaterialURL, "material-url", "", "Fetch this page into the file input")
	runCmd.Flags().StringVar(&runMaterialFile, "material-file", "", "Read this file into the file input")
	_ = runCmd.MarkFlagRequired("tool")
}

func parseInputs(pairs []string) (map[string]string, error) {
	inputs := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --input %q, want name=value", p)
		}
		inputs[strings.TrimSpace(name)] = value
	}
	return inputs, nil
}

func runRun(_ *cobra.Command, _ []string) error {
	inputs, err := parseInputs(runInputs)
	if err != nil {
		return err
	}

	container, err := buildContainer()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), container.Config().RequestTimeout)
	defer cancel()

	switch {
	case runMaterialURL != "":
		m, err := container.Fetcher().Fetch(ctx, runMaterialURL)
		if err != nil {
			return err
		}
		inputs[schema.InputFile] = m.String()
	case runMaterialFile != "":
		data, err := os.ReadFile(runMaterialFile)
		if err != nil {
			return fmt.Errorf("read material: %w", err)
		}
		inputs[schema.InputFile] = string(data)
	}

	fmt.Fprintf(os.Stderr, "  ↳ running %s...\n", runTool)
	res, err := container.Runner().Run(ctx, schema.InvocationRequest{
		ToolID:   runTool,
		Inputs:   inputs,
		Provider: runProvider,
	})
	if err != nil {
		return err
	}
	return cmdutils.PrintJSON(os.Stdout, res)
}
