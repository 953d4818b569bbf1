package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Base carries the metadata and lifecycle every task shares. Concrete task
// types embed it by value and are always used through a pointer.
//
// Base has no exported fields, so it never leaks into the JSON payload of
// the embedding task.
type Base struct {
	mu             sync.Mutex
	id             string
	channel        string
	timeoutSeconds int
	status         TaskStatus
	err            *Error
	callback       CompletionFunc
	successor      Task

	// self is the embedding task, captured by Invoke so hooks and callbacks
	// receive the outer value rather than the Base.
	self Task
}

func (b *Base) base() *Base { return b }

// ID returns the identifier assigned by the pool, or "" before enqueue.
func (b *Base) ID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

// Channel returns the task's queue partition, DefaultChannel if unset.
func (b *Base) Channel() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channel == "" {
		return DefaultChannel
	}
	return b.channel
}

// SetChannel routes the task to the named channel. It has no effect once
// the task has been enqueued.
func (b *Base) SetChannel(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.id == "" {
		b.channel = channel
	}
}

// TimeoutSeconds returns the deadline set with SetTimeout, 0 by default.
// Task types with a fixed deadline override this method.
func (b *Base) TimeoutSeconds() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timeoutSeconds
}

// SetTimeout sets the per-instance deadline in seconds; negative values mean none.
func (b *Base) SetTimeout(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeoutSeconds = seconds
}

// Status returns the current lifecycle state.
func (b *Base) Status() TaskStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == "" {
		return TaskStatusCreated
	}
	return b.status
}

// Err returns the captured error, or nil unless the task failed.
func (b *Base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil {
		return nil
	}
	return b.err
}

// HasException reports whether the task failed with a captured error.
func (b *Base) HasException() bool {
	return b.Err() != nil
}

// Raise hands the captured error to the caller so it can treat the task's
// failure as its own. It returns nil when the task did not fail.
func (b *Base) Raise() error {
	return b.Err()
}

// Then registers next as the successor, enqueued by the pool once this task
// completes successfully. It returns next so chains read a.Then(b).Then(c).
func (b *Base) Then(next Task) Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successor = next
	return next
}

// Successor returns the task registered with Then, if any.
func (b *Base) Successor() Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.successor
}

// SetCompletionCallback installs the single-shot callback run when the task
// reaches a terminal state. It replaces any previous callback.
func (b *Base) SetCompletionCallback(fn CompletionFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callback = fn
}

// Complete marks the task completed, runs the After hook and delivers the
// completion callback. Only the first terminal transition has any effect.
func (b *Base) Complete() {
	b.finish(TaskStatusCompleted, nil)
}

// Fail records err, marks the task failed, runs the OnException and After
// hooks and delivers the completion callback. Errors that are not domain
// errors are captured as runtime errors carrying the same message.
func (b *Base) Fail(err error) {
	if err == nil {
		err = errors.New("task failed without an error")
	}
	b.finish(TaskStatusFailed, normalize(err))
}

func (b *Base) finish(status TaskStatus, err *Error) {
	b.mu.Lock()
	if b.status != TaskStatusInvoked {
		b.mu.Unlock()
		return
	}
	b.status = status
	b.err = err
	cb := b.callback
	b.callback = nil
	self := b.self
	b.mu.Unlock()

	// A panicking hook on a completed task fails it instead. The callback is
	// delivered either way.
	if p := runHooks(self, err); p != nil && status == TaskStatusCompleted {
		b.mu.Lock()
		b.status = TaskStatusFailed
		b.err = &Error{Kind: ErrRuntime, Message: fmt.Sprintf("after hook panicked: %v", p)}
		b.mu.Unlock()
	}

	if cb != nil {
		cb(self)
	}
}

// runHooks runs OnException (when err is set) then After, and returns the
// value of any panic they raise.
func runHooks(t Task, err *Error) (recovered any) {
	defer func() {
		recovered = recover()
	}()

	if err != nil {
		if h, ok := t.(ExceptionHook); ok {
			h.OnException(err)
		}
	}
	if h, ok := t.(AfterHook); ok {
		h.After()
	}
	return nil
}

// assignID sets the pool-assigned identifier if none is set yet.
func (b *Base) assignID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.id == "" {
		b.id = id
	}
}

// restore applies stored metadata to a freshly decoded task.
func (b *Base) restore(id, channel string, timeoutSeconds int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.id = id
	b.channel = channel
	b.timeoutSeconds = timeoutSeconds
}

// settle applies a terminal outcome observed by a waiter.
func (b *Base) settle(status TaskStatus, err *Error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
	b.err = err
}

// Invoke runs t through its lifecycle: Before hook, then Execute.
// A second call on the same instance returns an ErrInvalidState error.
// Errors and panics raised by the task body are captured on the task with
// Fail; they are never returned from Invoke.
func Invoke(ctx context.Context, t Task) error {
	if t == nil {
		return ErrNilTask
	}

	b := t.base()
	b.mu.Lock()
	if b.status != "" && b.status != TaskStatusCreated {
		err := newInvalidStateError(b.id, b.status)
		b.mu.Unlock()
		return err
	}
	b.status = TaskStatusInvoked
	b.self = t
	b.mu.Unlock()

	if err := execute(ctx, t); err != nil {
		b.Fail(err)
	}
	return nil
}

func execute(ctx context.Context, t Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &Error{Kind: ErrRuntime, Message: fmt.Sprint(p)}
		}
	}()

	if h, ok := t.(BeforeHook); ok {
		h.Before(ctx)
	}
	return t.Execute(ctx)
}
