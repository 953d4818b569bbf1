package task

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Kinds(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	tests := []struct {
		name    string
		err     *Error
		kind    error
		name2   string
		message string
	}{
		{"validation", NewValidationError("bad %d", 1), ErrValidation, "validation", "bad 1"},
		{"runtime", NewRuntimeError(cause), ErrRuntime, "runtime", "disk full"},
		{"timeout", NewTimeoutError(3), ErrTimeout, "timeout", "task timed out after 3 seconds"},
		{"invalid state", newInvalidStateError("x", TaskStatusCompleted), ErrInvalidState, "invalid_state", `task "x" cannot be invoked in state completed`},
		{"wait timeout", newWaitTimeoutError("x", 2), ErrWaitTimeout, "wait_timeout", `gave up waiting for task "x" after 2 seconds`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.err, tc.kind)
			assert.Equal(t, tc.name2, tc.err.KindName())
			assert.EqualError(t, tc.err, tc.message)
		})
	}

	assert.ErrorIs(t, NewRuntimeError(cause), cause)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	validation := NewValidationError("nope")
	assert.Same(t, validation, normalize(validation))
	assert.Same(t, validation, normalize(fmt.Errorf("wrapped: %w", validation)))

	wrapped := normalize(fmt.Errorf("field: %w", ErrValidation))
	assert.ErrorIs(t, wrapped, ErrValidation)
	assert.Equal(t, "field: validation failed", wrapped.Message)

	plain := normalize(errors.New("boom"))
	assert.ErrorIs(t, plain, ErrRuntime)
	assert.Equal(t, "boom", plain.Message)
}

func TestErrorFromKind(t *testing.T) {
	t.Parallel()

	for _, kind := range []error{ErrValidation, ErrRuntime, ErrTimeout, ErrInvalidState, ErrWaitTimeout} {
		original := &Error{Kind: kind, Message: "message"}
		restored := errorFromKind(original.KindName(), original.Message)
		assert.ErrorIs(t, restored, kind)
		assert.Equal(t, "message", restored.Message)
	}

	unknown := errorFromKind("mystery", "what")
	assert.ErrorIs(t, unknown, ErrRuntime)
	assert.Equal(t, "runtime", (&Error{Kind: errors.New("other")}).KindName())
}
