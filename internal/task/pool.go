package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-queue/internal/events"
	"github.com/phrazzld/scry-queue/internal/store"
	"github.com/sethvargo/go-retry"
)

// maxChainLength bounds successor chains so a cycle cannot loop forever.
const maxChainLength = 64

// PoolConfig holds configuration options shared by Pool and AsyncPool
type PoolConfig struct {
	// Channels is the channel set polled when a caller passes nil channels.
	// Empty means every channel.
	Channels []string

	// PollWait bounds a single dequeue issued by AsyncPool.Poll
	PollWait time.Duration

	// AckRetries is how many times a failed ack is retried before giving up
	AckRetries uint64

	// AckBackoff is the base delay of the exponential ack retry backoff
	AckBackoff time.Duration
}

// DefaultPoolConfig returns a PoolConfig with reasonable defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		PollWait:   time.Second,
		AckRetries: 3,
		AckBackoff: 50 * time.Millisecond,
	}
}

// WaitResult is the outcome of a bounded wait: either the task in a
// terminal state, or TimedOut with the task as the caller passed it.
type WaitResult struct {
	Task     Task
	TimedOut bool
}

// pool holds the operations both execution models share.
type pool struct {
	store    store.QueueStore
	registry *Registry
	emitter  events.EventEmitter
	config   PoolConfig
	logger   *slog.Logger

	// claims is the in-flight bookkeeping of tasks claimed through this pool
	mu     sync.Mutex
	claims map[string]Task
}

func newPool(
	st store.QueueStore,
	registry *Registry,
	emitter events.EventEmitter,
	config PoolConfig,
	logger *slog.Logger,
) *pool {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if config.PollWait <= 0 {
		config.PollWait = DefaultPoolConfig().PollWait
	}
	if config.AckBackoff <= 0 {
		config.AckBackoff = DefaultPoolConfig().AckBackoff
	}

	return &pool{
		store:    st,
		registry: registry,
		emitter:  emitter,
		config:   config,
		logger:   logger,
		claims:   make(map[string]Task),
	}
}

// Enqueue assigns IDs to t and its successor chain, stores t under its
// channel and returns its ID. Successors keep their IDs until the pool
// enqueues them, so callers can wait on them right away.
func (p *pool) Enqueue(ctx context.Context, t Task) (string, error) {
	if t == nil {
		return "", ErrNilTask
	}

	length := 0
	for cur := t; cur != nil; cur = cur.base().Successor() {
		if length++; length > maxChainLength {
			return "", fmt.Errorf("successor chain longer than %d tasks", maxChainLength)
		}
		if !p.registry.Registered(cur.Type()) {
			return "", fmt.Errorf("%w: %s", ErrUnknownType, cur.Type())
		}
		if cur.ID() == "" {
			cur.base().assignID(uuid.NewString())
		}
	}

	blob, err := p.registry.Encode(t)
	if err != nil {
		return "", fmt.Errorf("failed to encode task: %w", err)
	}

	env := store.Envelope{
		ID:             t.ID(),
		Channel:        t.Channel(),
		TimeoutSeconds: t.TimeoutSeconds(),
		Blob:           blob,
		EnqueuedAt:     time.Now().UTC(),
	}
	if err := p.store.Enqueue(ctx, env); err != nil {
		p.logger.Error("failed to enqueue task",
			"task_id", env.ID,
			"task_type", t.Type(),
			"channel", env.Channel,
			"error", err)
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	p.logger.Debug("task enqueued",
		"task_id", env.ID,
		"task_type", t.Type(),
		"channel", env.Channel)
	p.emit(ctx, events.TaskEnqueued, t, nil)

	return env.ID, nil
}

// Complete acks the in-flight entry of a task that reached a terminal state,
// recording its outcome for waiters, and enqueues the successor of a
// completed task. It is normally called from the task's completion callback.
// Completing a task whose claim is gone (already acked, or reaped by a
// sweep) is a no-op.
func (p *pool) Complete(ctx context.Context, t Task) error {
	if t == nil {
		return ErrNilTask
	}

	b := t.base()
	status := b.Status()
	if !status.IsTerminal() {
		return fmt.Errorf("complete task %s: %w", t.ID(), newInvalidStateError(t.ID(), status))
	}

	p.untrack(t.ID())

	out := p.outcome(t, status)
	err := p.ack(ctx, t.Channel(), t.ID(), out)
	switch {
	case errors.Is(err, store.ErrNotInFlight):
		p.logger.Debug("task no longer in flight, skipping ack",
			"task_id", t.ID(),
			"task_type", t.Type(),
			"status", status)
		return nil
	case err != nil:
		p.logger.Error("failed to ack task",
			"task_id", t.ID(),
			"task_type", t.Type(),
			"error", err)
		return fmt.Errorf("failed to ack task %s: %w", t.ID(), err)
	}

	if status == TaskStatusFailed {
		p.emit(ctx, events.TaskFailed, t, b.Err())
		return nil
	}
	p.emit(ctx, events.TaskCompleted, t, nil)

	if next := b.Successor(); next != nil {
		if err := p.enqueueSuccessor(ctx, next); err != nil {
			p.logger.Error("successor lost",
				"task_id", t.ID(),
				"successor_id", next.ID(),
				"successor_type", next.Type(),
				"error", err)
			return fmt.Errorf("failed to enqueue successor of task %s: %w", t.ID(), err)
		}
		p.logger.Debug("successor enqueued",
			"task_id", t.ID(),
			"successor_id", next.ID(),
			"successor_type", next.Type())
	}
	return nil
}

// ListChannels returns the channels that currently hold pending or in-flight tasks.
func (p *pool) ListChannels(ctx context.Context) ([]string, error) {
	channels, err := p.store.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// claim dequeues and decodes one task, registering it as in flight.
// It returns nil, nil when nothing was available within wait.
func (p *pool) claim(ctx context.Context, channels []string, wait time.Duration) (Task, error) {
	env, err := p.store.Dequeue(ctx, channels, wait)
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}
	if env == nil {
		return nil, nil
	}

	t, err := p.registry.Decode(env.Blob)
	if err != nil {
		// Nobody can run it, so fail it in the store to release its waiters
		out := store.Outcome{
			Status:       store.QueueStatusFailed,
			ErrorKind:    kindNames[ErrRuntime],
			ErrorMessage: err.Error(),
			Blob:         env.Blob,
		}
		if ackErr := p.store.Ack(ctx, env.Channel, env.ID, out); ackErr != nil {
			p.logger.Error("failed to fail undecodable task",
				"task_id", env.ID,
				"channel", env.Channel,
				"error", ackErr)
		}
		return nil, fmt.Errorf("failed to decode task %s: %w", env.ID, err)
	}

	p.track(t)
	return t, nil
}

// settle decodes a stored outcome into a task in its terminal state.
func (p *pool) settle(out *store.Outcome) (Task, error) {
	t, err := p.registry.Decode(out.Blob)
	if err != nil {
		return nil, err
	}

	if out.Status == store.QueueStatusFailed {
		t.base().settle(TaskStatusFailed, errorFromKind(out.ErrorKind, out.ErrorMessage))
	} else {
		t.base().settle(TaskStatusCompleted, nil)
	}
	return t, nil
}

func (p *pool) outcome(t Task, status TaskStatus) store.Outcome {
	out := store.Outcome{
		Status:     store.QueueStatusCompleted,
		FinishedAt: time.Now().UTC(),
	}
	if status == TaskStatusFailed {
		out.Status = store.QueueStatusFailed
		var taskErr *Error
		if errors.As(t.base().Err(), &taskErr) {
			out.ErrorKind = taskErr.KindName()
			out.ErrorMessage = taskErr.Message
		}
	}

	blob, err := p.registry.Encode(t)
	if err != nil {
		p.logger.Error("failed to encode task outcome",
			"task_id", t.ID(),
			"task_type", t.Type(),
			"error", err)
	}
	out.Blob = blob
	return out
}

func (p *pool) ack(ctx context.Context, channel, id string, out store.Outcome) error {
	backoff := retry.WithMaxRetries(p.config.AckRetries, retry.NewExponential(p.config.AckBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := p.store.Ack(ctx, channel, id, out)
		if err == nil || errors.Is(err, store.ErrNotInFlight) || store.IsNotFoundError(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// enqueueSuccessor retries transient store failures with the ack backoff.
// A duplicate means an earlier attempt reached the store.
func (p *pool) enqueueSuccessor(ctx context.Context, next Task) error {
	backoff := retry.WithMaxRetries(p.config.AckRetries, retry.NewExponential(p.config.AckBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := p.Enqueue(ctx, next)
		switch {
		case err == nil, errors.Is(err, store.ErrDuplicate):
			return nil
		case errors.Is(err, ErrUnknownType), errors.Is(err, store.ErrInvalidEntity):
			return err
		}
		return retry.RetryableError(err)
	})
}

func (p *pool) track(t Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claims[t.ID()] = t
}

func (p *pool) untrack(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.claims, id)
}

func (p *pool) claimed(id string) Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.claims[id]
}

// InFlight returns the number of tasks claimed through this pool and not
// yet completed or released.
func (p *pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.claims)
}

func (p *pool) emit(ctx context.Context, name string, t Task, cause error) {
	event := events.NewEvent(name, t.Type())
	event.TaskID = t.ID()
	event.Channel = t.Channel()
	if cause != nil {
		event.Error = cause.Error()
	}

	if err := p.emitter.EmitEvent(ctx, event); err != nil {
		p.logger.Warn("event handler failed",
			"event_name", name,
			"task_id", event.TaskID,
			"error", err)
	}
}
