package api

import (
	"time"

	"github.com/digiflow/taskkeeper/internal/store"
	"github.com/digiflow/taskkeeper/internal/task"
	"github.com/google/uuid"
)

// LaunchEmptyTaskRequest defines the payload for launching the demonstration task.
type LaunchEmptyTaskRequest struct {
	Steps      int    `json:"steps"       validate:"required,min=1,max=1000"`
	StepMillis int    `json:"step_millis" validate:"gte=0,lte=60000"`
	CrashAt    int    `json:"crash_at"    validate:"gte=0,lte=100"`
	Behaviour  string `json:"behaviour"   validate:"omitempty,oneof=delete_immediately keep_for_a_while prepare_for_restart"`
}

// StopTaskRequest defines the payload for asking a task to stop.
type StopTaskRequest struct {
	// Behaviour tells the housekeeper what to do once the task terminated.
	// Defaults to keep_for_a_while.
	Behaviour string `json:"behaviour" validate:"omitempty,oneof=delete_immediately keep_for_a_while prepare_for_restart"`
}

// TaskResponse is the API view of a supervised task.
type TaskResponse struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Progress  int       `json:"progress"`
	Detail    string    `json:"detail,omitempty"`
	Behaviour string    `json:"behaviour"`
	Error     string    `json:"error,omitempty"`

	// TerminatedAt is set once the task stopped, crashed or finished
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
	// DeadForMillis is the time since termination when the response was built
	DeadForMillis int64 `json:"dead_for_ms,omitempty"`
}

// TaskListResponse wraps the tasks returned by the list endpoint.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Count int            `json:"count"`
}

// HistoryListResponse wraps the records returned by the history endpoint.
type HistoryListResponse struct {
	Records []*store.TaskRecord `json:"records"`
	Count   int                 `json:"count"`
}

// HealthResponse reports liveness and a few supervisor gauges.
type HealthResponse struct {
	Status  string `json:"status"`
	Tasks   int    `json:"tasks"`
	History bool   `json:"history"`
}

// taskToResponse converts a task snapshot to a TaskResponse
func taskToResponse(s task.Snapshot) TaskResponse {
	return TaskResponse{
		ID:            s.ID,
		Kind:          s.Kind,
		Name:          s.Name,
		State:         s.State.String(),
		Progress:      s.Progress,
		Detail:        s.Detail,
		Behaviour:     s.Behaviour.String(),
		Error:         s.Error,
		TerminatedAt:  s.TerminatedAt,
		DeadForMillis: s.DeadForMillis,
	}
}

func tasksToResponse(snapshots []task.Snapshot) TaskListResponse {
	tasks := make([]TaskResponse, 0, len(snapshots))
	for _, s := range snapshots {
		tasks = append(tasks, taskToResponse(s))
	}
	return TaskListResponse{Tasks: tasks, Count: len(tasks)}
}
