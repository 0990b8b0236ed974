package api

import (
	"net/http"

	"github.com/digiflow/taskkeeper/internal/api/shared"
	"github.com/digiflow/taskkeeper/internal/service"
)

// HealthHandler answers liveness probes
type HealthHandler struct {
	taskService    service.TaskService
	historyEnabled bool
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(taskService service.TaskService, historyEnabled bool) *HealthHandler {
	return &HealthHandler{taskService: taskService, historyEnabled: historyEnabled}
}

// Health handles GET /health requests
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	tasks := h.taskService.ListTasks(r.Context(), service.TaskFilter{})
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:  "ok",
		Tasks:   len(tasks),
		History: h.historyEnabled,
	})
}
