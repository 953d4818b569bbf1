// Package main implements the task queue API server. It accepts tasks over
// HTTP and, when queue.embedded_workers is set, runs them in-process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/scry-queue/internal/redact"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file")
	migrate := flag.String("migrate", "", "run a migration command (up, down, reset, status, version) and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile, *migrate); err != nil {
		slog.Error("server failed", "error", redact.Error(err))
		os.Exit(1)
	}
}

// run loads configuration, then either applies a migration command or
// serves until ctx is canceled.
func run(ctx context.Context, configFile, migrateCmd string) error {
	cfg, err := loadAppConfig(configFile)
	if err != nil {
		return err
	}

	logger, err := setupAppLogger(cfg)
	if err != nil {
		return err
	}

	if migrateCmd != "" {
		return runMigrations(ctx, cfg, migrateCmd, logger)
	}

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	return app.Run(ctx)
}
