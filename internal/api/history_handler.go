package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/digiflow/taskkeeper/internal/api/shared"
	"github.com/digiflow/taskkeeper/internal/service"
	"github.com/digiflow/taskkeeper/internal/store"
	"github.com/digiflow/taskkeeper/internal/task"
)

// MaxHistoryLimit caps the limit query parameter of the history endpoint
const MaxHistoryLimit = 1000

// HistoryHandler serves the records of tasks the housekeeper dropped
type HistoryHandler struct {
	taskService service.TaskService
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(taskService service.TaskService) *HistoryHandler {
	return &HistoryHandler{taskService: taskService}
}

// ListHistory handles GET /api/history requests. Supported query
// parameters are kind, state, since (RFC 3339) and limit.
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRecordFilter(r)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	records, err := h.taskService.ListHistory(r.Context(), filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read task history")
		return
	}
	if records == nil {
		records = []*store.TaskRecord{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, HistoryListResponse{Records: records, Count: len(records)})
}

// GetHistoryRecord handles GET /api/history/{id} requests
func (h *HistoryHandler) GetHistoryRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	record, err := h.taskService.GetHistoryRecord(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read task history")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, record)
}

// filterError is a client error whose message is safe to return
type filterError string

func (e filterError) Error() string { return string(e) }

func parseRecordFilter(r *http.Request) (store.RecordFilter, error) {
	q := r.URL.Query()
	filter := store.RecordFilter{Kind: q.Get("kind")}

	if raw := q.Get("state"); raw != "" {
		state, err := task.ParseState(raw)
		if err != nil || !state.IsTerminal() {
			return filter, filterError("Invalid state filter")
		}
		filter.State = state
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, filterError("Invalid since filter, expected RFC 3339 time")
		}
		filter.Since = since
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > MaxHistoryLimit {
			return filter, filterError("Invalid limit, expected 1 to " + strconv.Itoa(MaxHistoryLimit))
		}
		filter.Limit = limit
	}
	return filter, nil
}
