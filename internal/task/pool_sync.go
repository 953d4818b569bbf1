package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-queue/internal/events"
	"github.com/phrazzld/scry-queue/internal/store"
)

// Pool is the blocking execution model: Poll claims a task and returns it,
// and the wait operations block the calling goroutine until a task finishes.
type Pool struct {
	*pool
}

// NewPool creates a blocking pool backed by st.
func NewPool(
	st store.QueueStore,
	registry *Registry,
	emitter events.EventEmitter,
	config PoolConfig,
	logger *slog.Logger,
) *Pool {
	return &Pool{
		pool: newPool(st, registry, emitter, config, logger.With("component", "task_pool")),
	}
}

// Poll blocks up to timeout for a task on any of channels (all channels when
// empty) and returns it claimed, or nil if none arrived. The returned task
// completes itself through the pool once it reaches a terminal state.
func (p *Pool) Poll(ctx context.Context, channels []string, timeout time.Duration) (Task, error) {
	if len(channels) == 0 {
		channels = p.config.Channels
	}

	t, err := p.claim(ctx, channels, timeout)
	if err != nil || t == nil {
		return nil, err
	}

	ackCtx := context.WithoutCancel(ctx)
	t.base().SetCompletionCallback(func(done Task) {
		if err := p.Complete(ackCtx, done); err != nil {
			p.logger.Error("failed to complete task",
				"task_id", done.ID(),
				"task_type", done.Type(),
				"error", err)
		}
	})

	p.logger.Debug("task claimed",
		"task_id", t.ID(),
		"task_type", t.Type(),
		"channel", t.Channel())
	return t, nil
}

// Await blocks until t, which must have been enqueued, reaches a terminal
// state or timeout elapses. A timeout of zero waits until ctx is done.
// The returned task is a fresh copy carrying the stored outcome.
func (p *Pool) Await(ctx context.Context, t Task, timeout time.Duration) (WaitResult, error) {
	if t == nil {
		return WaitResult{}, ErrNilTask
	}
	if t.ID() == "" {
		return WaitResult{}, fmt.Errorf("wait on %s task: task has not been enqueued", t.Type())
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := p.store.Await(waitCtx, t.ID())
	if err != nil {
		if timeout > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return WaitResult{Task: t, TimedOut: true}, nil
		}
		return WaitResult{}, fmt.Errorf("failed to wait for task %s: %w", t.ID(), err)
	}

	done, err := p.settle(out)
	if err != nil {
		return WaitResult{}, fmt.Errorf("failed to decode outcome of task %s: %w", t.ID(), err)
	}
	return WaitResult{Task: done}, nil
}

// Wait blocks until t reaches a terminal state, bounded only by ctx.
func (p *Pool) Wait(ctx context.Context, t Task) (Task, error) {
	res, err := p.Await(ctx, t, 0)
	if err != nil {
		return nil, err
	}
	return res.Task, nil
}

// TryEnqueueWait enqueues t and waits up to timeout for it to finish.
// On timeout the result carries TimedOut and the task keeps running.
func (p *Pool) TryEnqueueWait(ctx context.Context, t Task, timeout time.Duration) (WaitResult, error) {
	if _, err := p.Enqueue(ctx, t); err != nil {
		return WaitResult{}, err
	}
	return p.Await(ctx, t, timeout)
}

// EnqueueWait enqueues t and waits up to timeout for it to finish,
// returning an ErrWaitTimeout error if it does not.
func (p *Pool) EnqueueWait(ctx context.Context, t Task, timeout time.Duration) (Task, error) {
	res, err := p.TryEnqueueWait(ctx, t, timeout)
	if err != nil {
		return nil, err
	}
	if res.TimedOut {
		return nil, newWaitTimeoutError(t.ID(), timeout.Seconds())
	}
	return res.Task, nil
}
