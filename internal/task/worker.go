package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WorkerConfig holds configuration for a Worker
type WorkerConfig struct {
	// Channels is the channel set to poll. Nil uses the pool's channel set.
	Channels []string

	// SweepInterval defines how often in-flight tasks are checked for timeouts.
	// If zero, defaults to 5 seconds
	SweepInterval time.Duration

	// PollErrorBackoff is the minimum delay between polls after a poll fails.
	// If zero, defaults to 1 second
	PollErrorBackoff time.Duration
}

// DefaultWorkerConfig returns a WorkerConfig with reasonable defaults
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		SweepInterval:    5 * time.Second,
		PollErrorBackoff: time.Second,
	}
}

type pollResult struct {
	task Task
	err  error
}

// Worker is a single event loop over an AsyncPool. It keeps exactly one poll
// outstanding and invokes each claimed task on the loop goroutine. A second
// goroutine sweeps every channel for timed out tasks on a fixed interval.
type Worker struct {
	pool     *AsyncPool
	config   WorkerConfig
	logger   *slog.Logger
	limiter  *rate.Limiter
	received chan pollResult

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// polling is only touched by the loop goroutine
	polling bool

	mu       sync.Mutex
	inFlight map[string]Task
	started  bool
}

// NewWorker creates a Worker that claims tasks through pool.
func NewWorker(pool *AsyncPool, config WorkerConfig, logger *slog.Logger) *Worker {
	defaults := DefaultWorkerConfig()
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if config.PollErrorBackoff <= 0 {
		config.PollErrorBackoff = defaults.PollErrorBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		pool:     pool,
		config:   config,
		logger:   logger.With("component", "task_worker"),
		limiter:  rate.NewLimiter(rate.Every(config.PollErrorBackoff), 1),
		received: make(chan pollResult, 1),
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[string]Task),
	}
}

// Start launches the event loop. A Worker can only be started once.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return errors.New("worker already started")
	}
	w.started = true

	w.wg.Add(2)
	go w.loop()
	go w.sweepLoop()
	return nil
}

// Stop shuts the loop down. A task claimed by the outstanding poll is
// released back to its channel. Tasks still running keep their completion
// callbacks and complete through the pool when they finish.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()

	if n := w.InFlight(); n > 0 {
		w.logger.Info("worker stopped with tasks in flight", "in_flight", n)
	}
}

// Run starts the worker and blocks until ctx is done, then stops it.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

// InFlight returns the number of tasks invoked by this worker that have not
// reached a terminal state.
func (w *Worker) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inFlight)
}

// Sweep reaps timed out tasks on every channel known to the store and
// returns how many were reaped.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	channels, err := w.pool.ListChannels(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for _, channel := range channels {
		n, err := w.pool.TimedOutTasks(ctx, channel)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += n
	}

	if total > 0 {
		w.logger.Info("reaped timed out tasks", "count", total)
	}
	return total, errors.Join(errs...)
}

func (w *Worker) loop() {
	defer w.wg.Done()

	w.logger.Debug("starting worker")

	w.poll()
	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			w.logger.Debug("stopping worker")
			return

		case res := <-w.received:
			w.polling = false
			w.handle(res)
		}
	}
}

// sweepLoop reaps timed out tasks on its own goroutine, so a task body that
// blocks the event loop does not hold up the sweep.
func (w *Worker) sweepLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Sweep(w.ctx); err != nil && w.ctx.Err() == nil {
				w.logger.Error("failed to sweep timed out tasks", "error", err)
			}
		}
	}
}

// poll issues the single outstanding claim. Its result arrives on received.
func (w *Worker) poll() {
	if w.ctx.Err() != nil {
		return
	}
	w.polling = true
	w.pool.Poll(w.ctx, w.config.Channels, func(t Task, err error) {
		w.received <- pollResult{task: t, err: err}
	})
}

func (w *Worker) handle(res pollResult) {
	switch {
	case res.err != nil:
		if w.ctx.Err() != nil {
			return
		}
		w.logger.Error("failed to poll for task", "error", res.err)
		if err := w.limiter.Wait(w.ctx); err != nil {
			return
		}

	case res.task != nil:
		w.invoke(res.task)
	}

	w.poll()
}

func (w *Worker) invoke(t Task) {
	logger := w.logger.With(
		"task_id", t.ID(),
		"task_type", t.Type(),
		"channel", t.Channel(),
	)

	w.track(t)
	ackCtx := context.WithoutCancel(w.ctx)
	t.base().SetCompletionCallback(func(done Task) {
		defer w.untrack(done.ID())

		if err := done.base().Err(); err != nil {
			logger.Error("task failed", "error", err)
		} else {
			logger.Info("task completed")
		}
		if err := w.pool.Complete(ackCtx, done); err != nil {
			logger.Error("failed to complete task", "error", err)
		}
	})

	logger.Info("invoking task")
	if err := Invoke(w.ctx, t); err != nil {
		// The sweep reaps the claim.
		w.untrack(t.ID())
		logger.Error("failed to invoke task", "error", err)
	}
}

// drain waits for the outstanding poll and releases whatever it claimed.
func (w *Worker) drain() {
	if !w.polling {
		return
	}
	res := <-w.received
	w.polling = false
	if res.task == nil {
		return
	}

	if err := w.pool.Release(context.Background(), res.task); err != nil {
		w.logger.Error("failed to release task on shutdown",
			"task_id", res.task.ID(),
			"error", err)
	}
}

func (w *Worker) track(t Task) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight[t.ID()] = t
}

func (w *Worker) untrack(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, id)
}

