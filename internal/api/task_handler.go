package api

import (
	"net/http"
	"time"

	"github.com/digiflow/taskkeeper/internal/api/shared"
	"github.com/digiflow/taskkeeper/internal/platform/logger"
	"github.com/digiflow/taskkeeper/internal/service"
	"github.com/digiflow/taskkeeper/internal/task"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// TaskHandler handles requests about live tasks
type TaskHandler struct {
	taskService service.TaskService
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(taskService service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// ListTasks handles GET /api/tasks requests. The optional state and kind
// query parameters filter the result.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var filter service.TaskFilter

	if raw := r.URL.Query().Get("state"); raw != "" {
		state, err := task.ParseState(raw)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid state filter", err)
			return
		}
		filter.State = &state
	}
	filter.Kind = r.URL.Query().Get("kind")

	snapshots := h.taskService.ListTasks(r.Context(), filter)
	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(snapshots))
}

// GetTask handles GET /api/tasks/{id} requests
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	snap, err := h.taskService.GetTask(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(snap))
}

// StopTask handles POST /api/tasks/{id}/stop requests. The request is
// accepted once the task has been asked to stop; it terminates later.
func (h *TaskHandler) StopTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	req := StopTaskRequest{Behaviour: task.DefaultBehaviour.String()}
	if err := shared.DecodeOptionalJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if req.Behaviour == "" {
		req.Behaviour = task.DefaultBehaviour.String()
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, shared.ValidationMessage(err), err)
		return
	}

	behaviour, err := task.ParseBehaviour(req.Behaviour)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	snap, err := h.taskService.StopTask(r.Context(), id, behaviour)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to stop task")
		return
	}

	subject, _ := shared.GetSubject(r.Context())
	logger.FromContext(r.Context()).Info("stop requested over API",
		"task_id", id,
		"behaviour", behaviour,
		"subject", subject)

	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(snap))
}

// LaunchEmptyTask handles POST /api/tasks/empty requests
func (h *TaskHandler) LaunchEmptyTask(w http.ResponseWriter, r *http.Request) {
	var req LaunchEmptyTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, shared.ValidationMessage(err), err)
		return
	}

	launch := service.EmptyTaskRequest{
		Steps:     req.Steps,
		StepDelay: time.Duration(req.StepMillis) * time.Millisecond,
		CrashAt:   req.CrashAt,
	}
	if req.Behaviour != "" {
		behaviour, err := task.ParseBehaviour(req.Behaviour)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		launch.Behaviour = behaviour
	}

	snap, err := h.taskService.LaunchEmptyTask(r.Context(), launch)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to launch task")
		return
	}

	w.Header().Set("Location", "/api/tasks/"+snap.ID.String())
	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(snap))
}

// pathUUID parses a UUID path parameter. It writes a 400 response and
// returns false if the parameter is not a valid UUID.
func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		logger.FromContext(r.Context()).Debug("invalid path parameter",
			"param_name", param,
			"value", raw)
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}
