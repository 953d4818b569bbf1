package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/scry-queue/internal/api/shared"
	"github.com/phrazzld/scry-queue/internal/events"
	"github.com/phrazzld/scry-queue/internal/platform/logger"
	"github.com/phrazzld/scry-queue/internal/task"
)

// TaskPool is the part of task.Pool the handler needs.
type TaskPool interface {
	TryEnqueueWait(ctx context.Context, t task.Task, timeout time.Duration) (task.WaitResult, error)
	ListChannels(ctx context.Context) ([]string, error)
}

// TaskHandler serves the task endpoints.
type TaskHandler struct {
	pool     TaskPool
	registry *task.Registry
	emitter  events.EventEmitter
	maxWait  time.Duration
	logger   *slog.Logger
}

// NewTaskHandler creates a TaskHandler. Requests asking to wait longer
// than maxWait are capped to it.
func NewTaskHandler(
	pool TaskPool,
	registry *task.Registry,
	emitter events.EventEmitter,
	maxWait time.Duration,
	logger *slog.Logger,
) *TaskHandler {
	return &TaskHandler{
		pool:     pool,
		registry: registry,
		emitter:  emitter,
		maxWait:  maxWait,
		logger:   logger.With("component", "task_handler"),
	}
}

// CreateTask handles POST /api/tasks/{type}.
//
// The JSON body is the task payload. With wait=0 (the default) the task is
// requested through the event bus and 202 is returned at once. With wait>0
// the task is enqueued directly; the response is 200 with the terminal task
// if it finishes in time, or 202 with its ID if not.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	taskType := chi.URLParam(r, "type")

	if !h.registry.Registered(taskType) {
		shared.RespondWithError(w, r, http.StatusNotFound, "Unknown task type")
		return
	}

	params, err := h.parseParams(r)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	var payload json.RawMessage
	if err := shared.DecodeJSON(w, r, &payload); err != nil && !errors.Is(err, shared.ErrEmptyBody) {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if params.Wait == 0 {
		h.request(w, r, taskType, params.Channel, payload)
		return
	}

	t, err := h.registry.New(taskType)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	if len(payload) > 0 {
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(t); err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid task payload", err)
			return
		}
	}
	if params.Channel != "" {
		if ch, ok := t.(interface{ SetChannel(string) }); ok {
			ch.SetChannel(params.Channel)
		}
	}

	wait := time.Duration(params.Wait * float64(time.Second))
	if h.maxWait > 0 && wait > h.maxWait {
		wait = h.maxWait
	}

	res, err := h.pool.TryEnqueueWait(r.Context(), t, wait)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	if res.TimedOut {
		log.Debug("task still running after wait",
			"task_id", t.ID(),
			"task_type", taskType,
			"wait", wait)
		shared.RespondWithJSON(w, r, http.StatusAccepted, TaskAcceptedResponse{
			ID:       t.ID(),
			TaskType: taskType,
			Channel:  t.Channel(),
			Status:   "pending",
		})
		return
	}

	resp, err := taskToResultResponse(res.Task)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to encode task result", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// request hands the task to the event bus without waiting.
func (h *TaskHandler) request(w http.ResponseWriter, r *http.Request, taskType, channel string, payload json.RawMessage) {
	event, err := events.NewTaskRequestEvent(taskType, channel, payload)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid task payload", err)
		return
	}

	if err := h.emitter.EmitEvent(r.Context(), event); err != nil {
		status := MapErrorToStatusCode(err)
		if status == http.StatusInternalServerError && isDecodeError(err) {
			status = http.StatusBadRequest
		}
		shared.RespondWithErrorAndLog(w, r, status, GetSafeErrorMessage(err), err)
		return
	}

	h.logger.Debug("task requested",
		"event_id", event.ID,
		"task_type", taskType,
		"channel", channel)
	shared.RespondWithJSON(w, r, http.StatusAccepted, TaskAcceptedResponse{
		TaskType: taskType,
		Channel:  channel,
		Status:   "requested",
	})
}

// ListChannels handles GET /api/channels.
func (h *TaskHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.pool.ListChannels(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to list channels", err)
		return
	}
	if channels == nil {
		channels = []string{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ChannelsResponse{Channels: channels})
}

// ListTaskTypes handles GET /api/task-types.
func (h *TaskHandler) ListTaskTypes(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, TaskTypesResponse{Types: h.registry.Types()})
}

func (h *TaskHandler) parseParams(r *http.Request) (createTaskParams, error) {
	q := r.URL.Query()
	params := createTaskParams{Channel: q.Get("channel")}

	if raw := q.Get("wait"); raw != "" {
		wait, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return params, err
		}
		if math.IsNaN(wait) || math.IsInf(wait, 0) {
			return params, errors.New("wait must be a finite number of seconds")
		}
		params.Wait = wait
	}

	return params, shared.ValidateRequest(params)
}

// isDecodeError reports whether err came from decoding a task payload
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
