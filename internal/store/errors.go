package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all QueueStore implementations.
var (
	// ErrNotFound is returned when a requested entry does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an enqueue would reuse an existing task ID.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an envelope fails validation before
	// being stored.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUpdateFailed is returned when a state transition could not be applied.
	ErrUpdateFailed = errors.New("update failed")

	// ErrTaskNotFound indicates that no queue entry exists for the task ID.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrNotInFlight is returned by Ack and Release when the task is not
	// currently claimed, for example because the sweep already reaped it.
	ErrNotInFlight = fmt.Errorf("%w: task not in flight", ErrUpdateFailed)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "task")
	Operation string // The operation that failed (e.g., "enqueue", "ack")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
