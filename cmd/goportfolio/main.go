// Package main is the entry point for the portfolio image server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"goportfolio/config"
	"goportfolio/internal/app"
	"goportfolio/internal/logging"
	"goportfolio/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("failed to execute command", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "goportfolio",
		Short:         "Serves randomized image pairs and collections from a cloud storage account",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				return os.Setenv("CONFIG_PATH", configPath)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (overrides CONFIG_PATH)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	root.RunE = serve.RunE

	warm := &cobra.Command{
		Use:   "warm",
		Short: "Refresh every bucket once and persist the snapshots to the durable store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWarm(cmd.Context())
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}

	root.AddCommand(serve, warm, versionCmd)
	return root
}

// setup loads configuration and installs the process-wide logger.
func setup() (*config.LoadResult, error) {
	result, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logging.Setup(os.Stderr, logging.Config{
		Format: result.Config.Log.Format,
		Level:  result.Config.Log.Level,
	}); err != nil {
		return nil, err
	}
	return result, nil
}

func runServe() error {
	result, err := setup()
	if err != nil {
		return err
	}

	slog.Info("starting goportfolio",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	application, err := app.New(context.Background(), app.Config{AppConfig: result})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("application shutdown error", "error", err)
		}
	}()

	return serveUntilShutdown(application, ":"+result.Config.Server.Port, done)
}

// server is the part of the application that serveUntilShutdown drives.
type server interface {
	Start(ctx context.Context, addr string) error
	Shutdown(ctx context.Context) error
}

// serveUntilShutdown runs the server and, once it stops, waits for the
// signal-driven shutdown closing done to finish releasing resources.
func serveUntilShutdown(srv server, addr string, done <-chan struct{}) error {
	if err := srv.Start(context.Background(), addr); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			slog.Error("application shutdown error", "error", shutdownErr)
		}
		return err
	}

	<-done
	return nil
}

func runWarm(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, app.Config{AppConfig: result})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	warmErr := application.Warm(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("application shutdown error", "error", err)
	}
	return warmErr
}
