package task

import (
	"context"
	"sync/atomic"
)

// MockTaskType is the type identifier of MockTask.
const MockTaskType = "mock_task"

// MockTask is a configurable Task for tests. Its Message travels as the
// payload; ExecuteFn replaces the default body, which completes at once.
type MockTask struct {
	Base

	Message string `json:"message"`
	Result  string `json:"result,omitempty"`

	ExecuteFn func(ctx context.Context, t *MockTask) error `json:"-"`

	// Calls counts Execute invocations on this instance
	Calls atomic.Int32 `json:"-"`
}

// NewMockTask creates a MockTask carrying message.
func NewMockTask(message string) *MockTask {
	return &MockTask{Message: message}
}

// Type returns the task type identifier
func (t *MockTask) Type() string {
	return MockTaskType
}

// Execute runs ExecuteFn, or completes with Result set to Message.
func (t *MockTask) Execute(ctx context.Context) error {
	t.Calls.Add(1)
	if t.ExecuteFn != nil {
		return t.ExecuteFn(ctx, t)
	}
	t.Result = t.Message
	t.Complete()
	return nil
}

// RegisterMockTask registers MockTask under MockTaskType. execute, when not
// nil, becomes the ExecuteFn of every decoded instance.
func RegisterMockTask(r *Registry, execute func(ctx context.Context, t *MockTask) error) error {
	return r.Register(MockTaskType, func() Task {
		return &MockTask{ExecuteFn: execute}
	})
}
