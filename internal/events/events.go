package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event names.
const (
	TaskRequested = "task.requested"
	TaskEnqueued  = "task.enqueued"
	TaskCompleted = "task.completed"
	TaskFailed    = "task.failed"
	TaskTimedOut  = "task.timed_out"
	TaskReleased  = "task.released"
)

// Event is a single occurrence published on the bus.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Name selects the subscribers that receive the event
	Name string `json:"name"`

	// TaskID, TaskType and Channel describe the task the event is about.
	// TaskID is empty for task.requested, which precedes enqueue.
	TaskID   string `json:"task_id,omitempty"`
	TaskType string `json:"task_type"`
	Channel  string `json:"channel,omitempty"`

	// Error carries the failure message for task.failed and task.timed_out
	Error string `json:"error,omitempty"`

	// Payload holds event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates an event with a fresh ID and timestamp.
func NewEvent(name, taskType string) *Event {
	return &Event{
		ID:        uuid.New(),
		Name:      name,
		TaskType:  taskType,
		CreatedAt: time.Now().UTC(),
	}
}

// NewTaskRequestEvent creates a task.requested event carrying payload as JSON.
func NewTaskRequestEvent(taskType, channel string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	event := NewEvent(TaskRequested, taskType)
	event.Channel = channel
	event.Payload = data
	return event, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
type EventEmitter interface {
	// EmitEvent publishes the event to the handlers subscribed to its name.
	EmitEvent(ctx context.Context, event *Event) error
}

// Nop is an EventEmitter that drops every event.
type Nop struct{}

// EmitEvent implements EventEmitter.
func (Nop) EmitEvent(context.Context, *Event) error { return nil }
