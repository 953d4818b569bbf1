package jobs

import (
	"context"

	"github.com/phrazzld/scry-queue/internal/task"
)

// TypeReverse is the type identifier of ReverseTask.
const TypeReverse = "reverse"

// ReverseTask reverses Str and stores it in Result.
type ReverseTask struct {
	task.Base

	Str    string `json:"str"`
	Result string `json:"result,omitempty"`
}

// NewReverseTask creates a ReverseTask for s.
func NewReverseTask(s string) *ReverseTask {
	return &ReverseTask{Str: s}
}

// Type returns the task type identifier
func (t *ReverseTask) Type() string {
	return TypeReverse
}

// Execute reverses the string rune by rune.
func (t *ReverseTask) Execute(ctx context.Context) error {
	runes := []rune(t.Str)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	t.Result = string(runes)
	t.Complete()
	return nil
}
