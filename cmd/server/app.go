package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/scry-queue/internal/api"
	"github.com/phrazzld/scry-queue/internal/app"
	"github.com/phrazzld/scry-queue/internal/auth"
	"github.com/phrazzld/scry-queue/internal/config"
	"golang.org/x/sync/errgroup"
)

// application holds the server's dependencies and ensures proper cleanup
// on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// core is the queue wiring shared with the worker command
	core *app.App

	// tokens is nil when no JWT secret is configured
	tokens *auth.TokenService
}

// newApplication creates a new application instance with all dependencies initialized.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	a := &application{
		config: cfg,
		logger: logger,
	}

	if cfg.Auth.JWTSecret != "" {
		tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize token service: %w", err)
		}
		a.tokens = tokens
		logger.Info("API bearer-token authentication enabled")
	} else {
		logger.Warn("no JWT secret configured, API routes are unauthenticated")
	}

	core, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.core = core

	return a, nil
}

// setupRouter creates the HTTP handler from the application dependencies.
func (a *application) setupRouter() http.Handler {
	rc := api.RouterConfig{
		Logger: a.logger,
		Tasks: api.NewTaskHandler(
			a.core.Pool,
			a.core.Registry,
			a.core.Emitter,
			time.Duration(a.config.Queue.DefaultWaitSeconds)*time.Second,
			a.logger,
		),
	}
	if a.tokens != nil {
		rc.Tokens = a.tokens
	}
	return api.NewRouter(rc)
}

// Run serves HTTP, and runs the embedded workers when configured, until
// ctx is canceled or either of them fails.
func (a *application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.startHTTPServer(gctx, a.setupRouter())
	})

	if a.config.Queue.EmbeddedWorkers {
		g.Go(func() error {
			return a.core.Workers.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (a *application) cleanup() {
	if a.core != nil {
		if err := a.core.Close(); err != nil {
			a.logger.Error("error during application shutdown", "error", err)
		}
	}
}
