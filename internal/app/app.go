// Package app wires configuration, the queue store, the task registry and
// the pools into a single application value shared by the server and
// worker commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-queue/internal/config"
	"github.com/phrazzld/scry-queue/internal/events"
	"github.com/phrazzld/scry-queue/internal/jobs"
	"github.com/phrazzld/scry-queue/internal/store"
	"github.com/phrazzld/scry-queue/internal/task"
)

// App holds every long-lived dependency of a process.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    store.QueueStore
	Registry *task.Registry
	Emitter  *events.InMemoryEventEmitter

	// Pool serves blocking callers such as the HTTP API
	Pool *task.Pool

	// AsyncPool and Workers run tasks in the background
	AsyncPool *task.AsyncPool
	Workers   *task.WorkerPool

	backend     *Backend
	unsubscribe func()
}

// Option customizes New.
type Option func(*options)

type options struct {
	deps *jobs.Deps
}

// WithDeps replaces the services handed to task types.
func WithDeps(deps jobs.Deps) Option {
	return func(o *options) {
		o.deps = &deps
	}
}

// New builds an App from cfg. Workers are created but not started.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	backend, err := OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue backend: %w", err)
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Store:    backend.Store,
		Registry: task.NewRegistry(),
		Emitter:  events.NewInMemoryEventEmitter(logger),
		backend:  backend,
	}

	deps := jobs.Deps{
		Logger: logger,
		Cache:  jobs.NewMemoryCache(),
		Mailer: jobs.NewLogMailer(logger),
	}
	if o.deps != nil {
		deps = *o.deps
	}
	if err := jobs.Register(app.Registry, deps); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to register task types: %w", err)
	}

	poolConfig := PoolConfig(cfg.Queue)
	app.Pool = task.NewPool(app.Store, app.Registry, app.Emitter, poolConfig, logger)
	app.AsyncPool = task.NewAsyncPool(app.Store, app.Registry, app.Emitter, poolConfig, logger)
	app.Workers = task.NewWorkerPool(app.AsyncPool, WorkerPoolConfig(cfg.Queue), logger)

	handler := task.NewRequestHandler(app.Registry, app.Pool, logger)
	app.unsubscribe = app.Emitter.Subscribe(events.TaskRequested, handler)

	logger.Info("application initialized",
		"backend", cfg.Queue.Backend,
		"task_types", app.Registry.Types(),
		"worker_count", app.Workers.Size())
	return app, nil
}

// PoolConfig derives the pool settings from the queue configuration.
func PoolConfig(cfg config.QueueConfig) task.PoolConfig {
	pc := task.DefaultPoolConfig()
	pc.Channels = cfg.Channels
	if cfg.PollWaitMs > 0 {
		pc.PollWait = time.Duration(cfg.PollWaitMs) * time.Millisecond
	}
	return pc
}

// WorkerPoolConfig derives the worker settings from the queue configuration.
func WorkerPoolConfig(cfg config.QueueConfig) task.WorkerPoolConfig {
	wc := task.DefaultWorkerPoolConfig()
	wc.Worker.Channels = cfg.Channels
	if cfg.WorkerCount > 0 {
		wc.WorkerCount = cfg.WorkerCount
	}
	if cfg.SweepIntervalSeconds > 0 {
		wc.Worker.SweepInterval = time.Duration(cfg.SweepIntervalSeconds) * time.Second
	}
	return wc
}

// Close stops the workers and releases the queue backend.
func (a *App) Close() error {
	a.Workers.Stop()
	if a.unsubscribe != nil {
		a.unsubscribe()
	}

	if err := a.backend.Close(); err != nil {
		a.Logger.Error("error closing queue backend", "error", err)
		return err
	}

	a.Logger.Info("application shutdown completed")
	return nil
}
