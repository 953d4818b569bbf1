// Package main implements the standalone worker process. It runs
// queue.worker_count event loops against the configured queue backend
// until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/scry-queue/internal/app"
	"github.com/phrazzld/scry-queue/internal/config"
	"github.com/phrazzld/scry-queue/internal/platform/logger"
	"github.com/phrazzld/scry-queue/internal/redact"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		slog.Error("worker failed", "error", redact.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateStandaloneWorker(cfg); err != nil {
		return err
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	l = l.With("service", "worker")

	a, err := app.New(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			l.Error("error during shutdown", "error", redact.Error(err))
		}
	}()

	l.Info("worker starting",
		"backend", cfg.Queue.Backend,
		"channels", cfg.Queue.Channels,
		"worker_count", a.Workers.Size())

	return a.Workers.Run(ctx)
}
