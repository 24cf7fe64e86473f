package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inkforge/inkforge/internal/config"
	"github.com/inkforge/inkforge/internal/dependency"
	"github.com/inkforge/inkforge/internal/telemetry"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve tools to an MCP client over stdio",
	RunE:  runMCP,
}

func runMCP(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	// stdout carries the protocol.
	logPath := cfg.Log.File
	if logPath == "" {
		logPath = filepath.Join(config.DataDir(), "mcp.log")
		_ = os.MkdirAll(config.DataDir(), 0o755)
	}
	_, closer, err := telemetry.SetupFileLogger(logPath, cfg.ParsedLogLevel())
	if err != nil {
		return err
	}
	defer closer.Close()

	container, err := dependency.New(cfg, dependency.Version(version))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting MCP stdio server")
	return container.MCPServer().ServeStdio(ctx, os.Stdin, os.Stdout)
}
