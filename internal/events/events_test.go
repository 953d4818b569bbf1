package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskRequestEvent(t *testing.T) {
	type testPayload struct {
		Str string `json:"str"`
	}

	event, err := NewTaskRequestEvent("reverse", "strings", testPayload{Str: "foo"})

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, TaskRequested, event.Name)
	assert.Equal(t, "reverse", event.TaskType)
	assert.Equal(t, "strings", event.Channel)
	assert.Empty(t, event.TaskID)
	assert.WithinDuration(t, time.Now(), event.CreatedAt, 2*time.Second)

	var decoded testPayload
	require.NoError(t, event.UnmarshalPayload(&decoded))
	assert.Equal(t, "foo", decoded.Str)
}

func TestNewTaskRequestEvent_UnmarshalablePayload(t *testing.T) {
	_, err := NewTaskRequestEvent("reverse", "", make(chan int))
	assert.Error(t, err)
}

// MockEventHandler implements the EventHandler interface for testing
type MockEventHandler struct {
	LastEvent    *Event
	HandlerError error
	HandledCount int
}

// HandleEvent implements the EventHandler interface
func (h *MockEventHandler) HandleEvent(ctx context.Context, event *Event) error {
	h.LastEvent = event
	h.HandledCount++
	return h.HandlerError
}

func TestHandlerFunc(t *testing.T) {
	var got *Event
	h := HandlerFunc(func(ctx context.Context, event *Event) error {
		got = event
		return errors.New("boom")
	})

	event := NewEvent(TaskCompleted, "reverse")
	err := h.HandleEvent(context.Background(), event)

	assert.EqualError(t, err, "boom")
	assert.Same(t, event, got)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.EmitEvent(context.Background(), NewEvent(TaskFailed, "x")))
}
