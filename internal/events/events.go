package events

import (
	"context"
	"time"

	"github.com/digiflow/taskkeeper/internal/task"
	"github.com/google/uuid"
)

// Lifecycle event types
const (
	// TypeTaskStarted is emitted when a task is launched on request
	TypeTaskStarted = "task.started"
	// TypeTaskStopRequested is emitted when an operator asks a task to stop
	TypeTaskStopRequested = "task.stop_requested"
	// TypeTaskRemoved is emitted when the housekeeper drops a terminated task
	TypeTaskRemoved = "task.removed"
	// TypeTaskRestarted is emitted when a stopped task is replaced by its successor
	TypeTaskRestarted = "task.restarted"
)

// TaskEvent describes something that happened to a task.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// TaskID is the task the event is about
	TaskID uuid.UUID `json:"task_id"`

	// Snapshot is the task as it was when the event was created
	Snapshot task.Snapshot `json:"snapshot"`

	// Reason says why the housekeeper acted, e.g. "expired" or "delete_immediately"
	Reason string `json:"reason,omitempty"`

	// SuccessorID is set on restart events
	SuccessorID *uuid.UUID `json:"successor_id,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewTaskEvent creates a TaskEvent for the given snapshot
func NewTaskEvent(eventType string, snap task.Snapshot) *TaskEvent {
	return &TaskEvent{
		ID:        uuid.New(),
		Type:      eventType,
		TaskID:    snap.ID,
		Snapshot:  snap,
		CreatedAt: time.Now().UTC(),
	}
}

// WithReason sets the reason and returns the event
func (e *TaskEvent) WithReason(reason string) *TaskEvent {
	e.Reason = reason
	return e
}

// WithSuccessor sets the successor ID and returns the event
func (e *TaskEvent) WithSuccessor(id uuid.UUID) *TaskEvent {
	e.SuccessorID = &id
	return e
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// EventHandlerFunc adapts a function to the EventHandler interface
type EventHandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent calls f(ctx, event)
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}

// NopEmitter drops every event
type NopEmitter struct{}

// EmitEvent implements EventEmitter
func (NopEmitter) EmitEvent(context.Context, *TaskEvent) error { return nil }
