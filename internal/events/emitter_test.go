package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryEventEmitter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		err := emitter.EmitEvent(context.Background(), NewEvent(TaskEnqueued, "reverse"))
		assert.NoError(t, err)
	})

	t.Run("delivers only to subscribers of the event name", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)

		completed := &MockEventHandler{}
		failed := &MockEventHandler{}
		emitter.Subscribe(TaskCompleted, completed)
		emitter.Subscribe(TaskFailed, failed)

		event := NewEvent(TaskCompleted, "reverse")
		require.NoError(t, emitter.EmitEvent(context.Background(), event))

		assert.Equal(t, 1, completed.HandledCount)
		assert.Same(t, event, completed.LastEvent)
		assert.Equal(t, 0, failed.HandledCount)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)

		handler := &MockEventHandler{}
		unsubscribe := emitter.Subscribe(TaskEnqueued, handler)
		require.Equal(t, 1, emitter.HandlerCount(TaskEnqueued))

		require.NoError(t, emitter.EmitEvent(context.Background(), NewEvent(TaskEnqueued, "x")))
		unsubscribe()
		unsubscribe()
		require.NoError(t, emitter.EmitEvent(context.Background(), NewEvent(TaskEnqueued, "x")))

		assert.Equal(t, 1, handler.HandledCount)
		assert.Equal(t, 0, emitter.HandlerCount(TaskEnqueued))
	})

	t.Run("unsubscribe leaves other handlers in place", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)

		first := &MockEventHandler{}
		second := &MockEventHandler{}
		unsubscribeFirst := emitter.Subscribe(TaskFailed, first)
		emitter.Subscribe(TaskFailed, second)

		unsubscribeFirst()
		require.NoError(t, emitter.EmitEvent(context.Background(), NewEvent(TaskFailed, "x")))

		assert.Equal(t, 0, first.HandledCount)
		assert.Equal(t, 1, second.HandledCount)
	})

	t.Run("emit event with failing handler", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)

		successHandler := &MockEventHandler{}
		failingHandler := &MockEventHandler{HandlerError: errors.New("handler error")}
		emitter.Subscribe(TaskTimedOut, successHandler)
		emitter.Subscribe(TaskTimedOut, failingHandler)

		err := emitter.EmitEvent(context.Background(), NewEvent(TaskTimedOut, "x"))

		assert.EqualError(t, err, "handler error")
		assert.Equal(t, 1, successHandler.HandledCount)
		assert.Equal(t, 1, failingHandler.HandledCount)
	})
}
