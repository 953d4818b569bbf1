package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter dispatches events to handlers subscribed to the
// event's name.
type InMemoryEventEmitter struct {
	mu       sync.RWMutex
	handlers map[string]map[uint64]EventHandler
	nextID   uint64
	logger   *slog.Logger
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		handlers: make(map[string]map[uint64]EventHandler),
		logger:   logger.With("component", "in_memory_event_emitter"),
	}
}

// Subscribe registers handler for events named name. The returned function
// removes the subscription; calling it more than once is harmless.
func (e *InMemoryEventEmitter) Subscribe(name string, handler EventHandler) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	if e.handlers[name] == nil {
		e.handlers[name] = make(map[uint64]EventHandler)
	}
	e.handlers[name][id] = handler
	e.logger.Debug("registered event handler",
		"event_name", name,
		"handler_count", len(e.handlers[name]))

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.handlers[name], id)
			if len(e.handlers[name]) == 0 {
				delete(e.handlers, name)
			}
		})
	}
}

// HandlerCount returns the number of handlers subscribed to name.
func (e *InMemoryEventEmitter) HandlerCount(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[name])
}

// EmitEvent publishes the event to every handler subscribed to its name.
// If any handler returns an error, the event is still sent to all other
// handlers, and the first error encountered is returned.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *Event) error {
	e.mu.RLock()
	handlers := make([]EventHandler, 0, len(e.handlers[event.Name]))
	for _, h := range e.handlers[event.Name] {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var firstErr error
	for _, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"event_id", event.ID,
				"event_name", event.Name,
				"task_id", event.TaskID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// Ensure InMemoryEventEmitter implements EventEmitter
var _ EventEmitter = (*InMemoryEventEmitter)(nil)
