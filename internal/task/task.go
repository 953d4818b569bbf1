package task

import (
	"context"
)

// TaskStatus represents the lifecycle state of a task instance
type TaskStatus string

// Possible task status values. Completed and failed are terminal and
// mutually exclusive.
const (
	TaskStatusCreated   TaskStatus = "created"
	TaskStatusInvoked   TaskStatus = "invoked"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsTerminal reports whether s is completed or failed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// DefaultChannel is the queue partition used when a task does not name one.
const DefaultChannel = "default"

// Task represents a unit of background work.
//
// Concrete tasks embed Base, which supplies the lifecycle, and implement
// Type and Execute. Execute signals success by calling Complete (possibly
// later, from another goroutine) and failure by returning an error or
// calling Fail. Exported struct fields form the task's payload.
type Task interface {
	// Type returns the task type identifier used to decode stored tasks
	Type() string

	// Execute runs the task logic
	Execute(ctx context.Context) error

	// ID returns the identifier assigned by the pool on enqueue
	ID() string

	// Channel returns the queue partition the task is routed to
	Channel() string

	// TimeoutSeconds returns the claim deadline enforced by the sweep; 0 means none
	TimeoutSeconds() int

	base() *Base
}

// BeforeHook is implemented by tasks that need to run code right before Execute.
type BeforeHook interface {
	Before(ctx context.Context)
}

// AfterHook is implemented by tasks that need to run code once a terminal
// state is reached, before the completion callback fires.
type AfterHook interface {
	After()
}

// ExceptionHook is implemented by tasks that want to observe their failure.
// It runs before After.
type ExceptionHook interface {
	OnException(err error)
}

// CompletionFunc receives a task once it reaches a terminal state.
type CompletionFunc func(t Task)
