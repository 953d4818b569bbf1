package api

import (
	"encoding/json"
	"errors"

	"github.com/phrazzld/scry-queue/internal/task"
)

// createTaskParams are the query parameters of POST /api/tasks/{type}.
type createTaskParams struct {
	// Channel is the queue partition; empty means the task's default
	Channel string `validate:"omitempty,max=64,printascii"`

	// Wait is how many seconds to block for the result; zero returns at once
	Wait float64 `validate:"gte=0"`
}

// TaskAcceptedResponse is returned when a task was accepted but has not
// finished yet.
type TaskAcceptedResponse struct {
	// ID is empty for tasks requested through an event
	ID       string `json:"id,omitempty"`
	TaskType string `json:"task_type"`
	Channel  string `json:"channel,omitempty"`
	Status   string `json:"status"`
}

// TaskErrorResponse describes the error captured on a failed task.
type TaskErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TaskResultResponse is a task in its terminal state.
type TaskResultResponse struct {
	ID       string             `json:"id"`
	TaskType string             `json:"task_type"`
	Channel  string             `json:"channel"`
	Status   task.TaskStatus    `json:"status"`
	Error    *TaskErrorResponse `json:"error,omitempty"`
	Result   json.RawMessage    `json:"result"`
}

// ChannelsResponse lists the known channels.
type ChannelsResponse struct {
	Channels []string `json:"channels"`
}

// TaskTypesResponse lists the registered task types.
type TaskTypesResponse struct {
	Types []string `json:"types"`
}

// statusReporter is implemented by every task embedding task.Base
type statusReporter interface {
	Status() task.TaskStatus
	Err() error
}

// taskToResultResponse converts a terminal task to its response body.
func taskToResultResponse(t task.Task) (TaskResultResponse, error) {
	result, err := json.Marshal(t)
	if err != nil {
		return TaskResultResponse{}, err
	}

	resp := TaskResultResponse{
		ID:       t.ID(),
		TaskType: t.Type(),
		Channel:  t.Channel(),
		Result:   result,
	}

	if sr, ok := t.(statusReporter); ok {
		resp.Status = sr.Status()
		var taskErr *task.Error
		if errors.As(sr.Err(), &taskErr) {
			resp.Error = &TaskErrorResponse{Kind: taskErr.KindName(), Message: taskErr.Message}
		}
	}
	return resp, nil
}
