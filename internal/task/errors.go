package task

import (
	"errors"
	"fmt"
)

// Error kinds. Every error a caller can observe on a task matches exactly one
// of these with errors.Is.
var (
	// ErrInvalidState is returned when a task instance is invoked more than once.
	ErrInvalidState = errors.New("invalid task state")

	// ErrValidation is the family of domain failures raised on purpose inside Execute.
	ErrValidation = errors.New("validation failed")

	// ErrRuntime wraps any non-domain error or panic surfaced during Execute.
	ErrRuntime = errors.New("runtime error")

	// ErrWaitTimeout is returned to a blocking caller whose wait elapsed.
	// The task itself keeps running.
	ErrWaitTimeout = errors.New("wait timed out")

	// ErrTimeout is captured on a task whose claim outlived its declared timeout.
	ErrTimeout = errors.New("task timed out")
)

// Registry errors.
var (
	ErrUnknownType   = errors.New("unknown task type")
	ErrDuplicateType = errors.New("task type already registered")
	ErrNilTask       = errors.New("task cannot be nil")
)

// kindNames maps each kind to the name used in stored outcomes.
var kindNames = map[error]string{
	ErrInvalidState: "invalid_state",
	ErrValidation:   "validation",
	ErrRuntime:      "runtime",
	ErrWaitTimeout:  "wait_timeout",
	ErrTimeout:      "timeout",
}

// Error is the typed error captured on a failed task.
// Error() returns the original message so callers can match on it.
type Error struct {
	Kind    error  // One of the kind sentinels above
	Message string // Original message
	Err     error  // Wrapped cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is/errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns the stable name of the error's kind.
func (e *Error) KindName() string {
	if name, ok := kindNames[e.Kind]; ok {
		return name
	}
	return kindNames[ErrRuntime]
}

// NewValidationError creates a domain validation error.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// NewRuntimeError wraps err as a runtime error preserving its message.
func NewRuntimeError(err error) *Error {
	return &Error{Kind: ErrRuntime, Message: err.Error(), Err: err}
}

// NewTimeoutError creates the error the sweep captures on a lapsed task.
func NewTimeoutError(seconds int) *Error {
	return &Error{Kind: ErrTimeout, Message: fmt.Sprintf("task timed out after %d seconds", seconds)}
}

func newInvalidStateError(id string, status TaskStatus) *Error {
	return &Error{
		Kind:    ErrInvalidState,
		Message: fmt.Sprintf("task %q cannot be invoked in state %s", id, status),
	}
}

func newWaitTimeoutError(id string, seconds float64) *Error {
	return &Error{
		Kind:    ErrWaitTimeout,
		Message: fmt.Sprintf("gave up waiting for task %q after %.0f seconds", id, seconds),
	}
}

// normalize turns anything raised by a task body into a typed *Error.
// Domain errors are kept as they are; everything else becomes a runtime error.
func normalize(err error) *Error {
	var taskErr *Error
	if errors.As(err, &taskErr) {
		return taskErr
	}
	if errors.Is(err, ErrValidation) {
		return &Error{Kind: ErrValidation, Message: err.Error(), Err: err}
	}
	return NewRuntimeError(err)
}

// errorFromKind rebuilds a typed error from a stored outcome.
func errorFromKind(kind, message string) *Error {
	for sentinel, name := range kindNames {
		if name == kind {
			return &Error{Kind: sentinel, Message: message}
		}
	}
	return &Error{Kind: ErrRuntime, Message: message}
}
