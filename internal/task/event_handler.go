package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-queue/internal/events"
)

// Enqueuer accepts tasks for background execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, t Task) (string, error)
}

// RequestHandler implements events.EventHandler for task.requested events.
// It builds the requested task from the registry, applies the payload and
// channel carried by the event, and enqueues it.
type RequestHandler struct {
	registry *Registry
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewRequestHandler creates a handler that enqueues requested tasks.
func NewRequestHandler(registry *Registry, enqueuer Enqueuer, logger *slog.Logger) *RequestHandler {
	return &RequestHandler{
		registry: registry,
		enqueuer: enqueuer,
		logger:   logger.With("component", "task_request_handler"),
	}
}

// HandleEvent creates and enqueues the task an event asks for.
// Events with a name other than task.requested are ignored.
func (h *RequestHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Name != events.TaskRequested {
		h.logger.Debug("ignoring event",
			"event_name", event.Name,
			"event_id", event.ID)
		return nil
	}

	t, err := h.registry.New(event.TaskType)
	if err != nil {
		h.logger.Error("failed to create task",
			"error", err,
			"task_type", event.TaskType,
			"event_id", event.ID)
		return fmt.Errorf("failed to create task: %w", err)
	}

	if len(event.Payload) > 0 {
		if err := event.UnmarshalPayload(t); err != nil {
			h.logger.Error("failed to unmarshal payload",
				"error", err,
				"task_type", event.TaskType,
				"event_id", event.ID)
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	if event.Channel != "" {
		t.base().SetChannel(event.Channel)
	}

	id, err := h.enqueuer.Enqueue(ctx, t)
	if err != nil {
		h.logger.Error("failed to enqueue task",
			"error", err,
			"task_type", event.TaskType,
			"event_id", event.ID)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	h.logger.Info("requested task enqueued",
		"task_id", id,
		"task_type", event.TaskType,
		"channel", t.Channel(),
		"event_id", event.ID)
	return nil
}

// Ensure RequestHandler implements events.EventHandler
var _ events.EventHandler = (*RequestHandler)(nil)
