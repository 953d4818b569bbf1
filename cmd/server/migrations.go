package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-queue/internal/app"
	"github.com/phrazzld/scry-queue/internal/config"
	"github.com/phrazzld/scry-queue/internal/platform/postgres"
)

// ErrNoDatabase is returned when a migration is requested without a database URL.
var ErrNoDatabase = errors.New("database.url is required to run migrations")

// runMigrations applies a goose command against the configured database.
// Every log line of the run carries the same correlation ID.
func runMigrations(ctx context.Context, cfg *config.Config, command string, logger *slog.Logger) error {
	if cfg.Database.URL == "" {
		return ErrNoDatabase
	}

	migrationLogger := logger.With("correlation_id", uuid.NewString())

	db, err := app.OpenDB(ctx, cfg.Database.URL, migrationLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			migrationLogger.Error("failed to close database connection", "error", err)
		}
	}()

	return postgres.Migrate(ctx, db, command, migrationLogger)
}
