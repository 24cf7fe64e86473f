package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkforge/inkforge/internal/shared/cmdutils"
)

var publishFile string

var publishCmd = &cobra.Command{
	Use:       "publish brief|article",
	Short:     "Publish a brief or an article to WordPress",
	Args:      cobra.ExactValidArgs(1),
	ValidArgs: []string{"brief", "article"},
	RunE:      runPublish,
}

func init() {
	publishCmd.Flags().StringVarP(&publishFile, "file", "f", "-", "JSON payload file, - for stdin")
}

func runPublish(_ *cobra.Command, args []string) error {
	payload, err := readPayload(publishFile)
	if err != nil {
		return err
	}

	container, err := buildContainer()
	if err != nil {
		return err
	}

	pub, err := container.Publisher().Publish(context.Background(), args[0], payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Published %s #%d (%s)\n", args[0], pub.PostID, pub.Status)
	return cmdutils.PrintJSON(os.Stdout, pub)
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}
