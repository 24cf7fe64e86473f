package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/inkforge/inkforge/internal/telemetry"
)

var (
	servePort        int
	serveDiagnostics bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the inkforge HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides config)")
	serveCmd.Flags().BoolVar(&serveDiagnostics, "diagnostics", false, "Start a gops diagnostics agent")
}

func runServe(_ *cobra.Command, _ []string) error {
	container, err := buildContainer()
	if err != nil {
		return err
	}
	cfg := container.Config()
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("tracing shutdown failed", "err", err)
		}
	}()

	if serveDiagnostics {
		if err := agent.Listen(agent.Options{}); err != nil {
			return fmt.Errorf("start gops agent: %w", err)
		}
		defer agent.Close()
		slog.Info("gops diagnostics agent listening")
	}

	addr := cfg.ListenAddr()
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: container.HTTPServer().Handler(),
	}

	if !container.WordPress().Configured() {
		slog.Warn("WordPress credentials not configured, publish routes will fail")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	fmt.Printf("%s inkforge listening on %s. Press Ctrl+C to stop.\n", logo, addr)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server stopped with error", "err", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}
