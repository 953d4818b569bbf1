package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/phrazzld/scry-queue/internal/config"
	"github.com/phrazzld/scry-queue/internal/platform/memory"
	"github.com/phrazzld/scry-queue/internal/platform/postgres"
	"github.com/phrazzld/scry-queue/internal/store"
)

// Backend is an opened queue store and the function that releases it.
type Backend struct {
	Store store.QueueStore
	Close func() error
}

// BackendFactory opens the queue store selected by configuration.
type BackendFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

// Backends maps queue.backend values to their factories.
var Backends = map[string]BackendFactory{
	"memory":   openMemory,
	"postgres": openPostgres,
}

// BackendNames returns the registered backend names in sorted order.
func BackendNames() []string {
	names := make([]string, 0, len(Backends))
	for name := range Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenBackend resolves cfg.Queue.Backend and opens it.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	factory, ok := Backends[cfg.Queue.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown queue backend %q (known: %v)", cfg.Queue.Backend, BackendNames())
	}
	return factory(ctx, cfg, logger)
}

func openMemory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	logger.Info("using in-memory queue store")
	return &Backend{
		Store: memory.NewQueueStore(),
		Close: func() error { return nil },
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	db, err := OpenDB(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, err
	}

	if err := postgres.Migrate(ctx, db, "up", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	interval := time.Duration(cfg.Queue.StorePollIntervalMs) * time.Millisecond
	return &Backend{
		Store: postgres.NewQueueStore(db, interval),
		Close: db.Close,
	}, nil
}

// OpenDB opens a pgx-backed database/sql pool and verifies it with a ping.
func OpenDB(ctx context.Context, url string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")
	return db, nil
}
