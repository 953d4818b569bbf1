package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-queue/internal/events"
	"github.com/phrazzld/scry-queue/internal/store"
)

// PollFunc receives the outcome of an asynchronous poll: a claimed task,
// nil when nothing arrived within the poll wait, or an error.
type PollFunc func(t Task, err error)

// AsyncPool is the callback-driven execution model used by Worker. Poll
// returns immediately and delivers its result on another goroutine.
type AsyncPool struct {
	*pool
}

// NewAsyncPool creates a callback-driven pool backed by st.
func NewAsyncPool(
	st store.QueueStore,
	registry *Registry,
	emitter events.EventEmitter,
	config PoolConfig,
	logger *slog.Logger,
) *AsyncPool {
	return &AsyncPool{
		pool: newPool(st, registry, emitter, config, logger.With("component", "async_task_pool")),
	}
}

// Poll starts a claim on channels and returns at once. A nil channels slice
// polls the configured channel set. cb runs exactly once, on a goroutine of
// its own, after the claim succeeds, comes back empty, or fails.
func (p *AsyncPool) Poll(ctx context.Context, channels []string, cb PollFunc) {
	if channels == nil {
		channels = p.config.Channels
	}

	go func() {
		t, err := p.claim(ctx, channels, p.config.PollWait)
		if t != nil {
			p.logger.Debug("task claimed",
				"task_id", t.ID(),
				"task_type", t.Type(),
				"channel", t.Channel())
		}
		cb(t, err)
	}()
}

// TimedOutTasks reaps in-flight entries on channel whose deadline passed.
// The store marks them failed with a timeout; tasks claimed through this
// pool are also failed locally so their completion callbacks fire.
// It returns the number of entries reaped.
func (p *AsyncPool) TimedOutTasks(ctx context.Context, channel string) (int, error) {
	ids, err := p.store.ScanTimeouts(ctx, channel)
	if err != nil {
		return 0, fmt.Errorf("failed to scan timeouts on %s: %w", channel, err)
	}

	for _, id := range ids {
		t := p.claimed(id)
		if t == nil {
			p.logger.Info("reaped task claimed elsewhere",
				"task_id", id,
				"channel", channel)
			continue
		}

		timeoutErr := NewTimeoutError(t.TimeoutSeconds())
		p.logger.Warn("task timed out",
			"task_id", id,
			"task_type", t.Type(),
			"channel", channel,
			"timeout_seconds", t.TimeoutSeconds())
		p.emit(ctx, events.TaskTimedOut, t, timeoutErr)
		t.base().Fail(timeoutErr)
	}
	return len(ids), nil
}

// Release hands a claimed task that will not be run back to its channel.
func (p *AsyncPool) Release(ctx context.Context, t Task) error {
	if t == nil {
		return ErrNilTask
	}

	p.untrack(t.ID())
	if err := p.store.Release(ctx, t.Channel(), t.ID()); err != nil {
		return fmt.Errorf("failed to release task %s: %w", t.ID(), err)
	}

	p.logger.Debug("task released",
		"task_id", t.ID(),
		"task_type", t.Type(),
		"channel", t.Channel())
	p.emit(ctx, events.TaskReleased, t, nil)
	return nil
}
