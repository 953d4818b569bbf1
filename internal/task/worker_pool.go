package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// WorkerPool runs several independent Workers over one AsyncPool.
// Each worker has its own event loop and outstanding poll.
type WorkerPool struct {
	// pool is shared by every worker so any sweep can fail any local claim
	pool *AsyncPool

	// workers are created up front and started together
	workers []*Worker

	mu      sync.Mutex
	started bool

	// logger for structured logging
	logger *slog.Logger
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many workers to start
	// If zero or negative, defaults to 1
	WorkerCount int

	// Worker is the configuration applied to every worker
	Worker WorkerConfig
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 2,
		Worker:      DefaultWorkerConfig(),
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(pool *AsyncPool, config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	workers := make([]*Worker, workerCount)
	for i := range workers {
		workers[i] = NewWorker(pool, config.Worker, logger.With("worker_id", i))
	}

	return &WorkerPool{
		pool:    pool,
		workers: workers,
		logger:  logger.With("component", "worker_pool"),
	}
}

// Size returns the number of workers in the pool.
func (p *WorkerPool) Size() int {
	return len(p.workers)
}

// Start launches every worker.
func (p *WorkerPool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("worker pool already started")
	}
	p.started = true

	for _, w := range p.workers {
		if err := w.Start(); err != nil {
			return err
		}
	}

	p.logger.Info("worker pool started", "worker_count", len(p.workers))
	return nil
}

// Stop stops every worker concurrently and waits for all of them.
func (p *WorkerPool) Stop() {
	var g errgroup.Group
	for _, w := range p.workers {
		w := w
		g.Go(func() error {
			w.Stop()
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("worker pool stopped", "in_flight", p.InFlight())
}

// Run starts the pool and blocks until ctx is done, then stops it.
func (p *WorkerPool) Run(ctx context.Context) error {
	if err := p.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	p.Stop()
	return nil
}

// InFlight returns the number of tasks invoked by the pool's workers that
// have not reached a terminal state.
func (p *WorkerPool) InFlight() int {
	total := 0
	for _, w := range p.workers {
		total += w.InFlight()
	}
	return total
}
