package service

import (
	"errors"
	"fmt"

	"github.com/digiflow/taskkeeper/internal/store"
	"github.com/digiflow/taskkeeper/internal/task"
)

// Common service errors - sentinel errors callers check with errors.Is().
//
// Error handling principles:
// 1. Expected conditions are returned as sentinel errors, from this package or
// from the task and store packages
// 2. Unexpected errors are wrapped in TaskServiceError
// 3. The API layer maps sentinels to HTTP status codes
var (
	// ErrInvalidRequest indicates parameters the service cannot act on.
	// API layer should map this to HTTP 400 Bad Request.
	ErrInvalidRequest = errors.New("invalid task request")
)

// passthrough lists the sentinels returned to callers without wrapping
var passthrough = []error{
	ErrInvalidRequest,
	task.ErrTaskNotFound,
	task.ErrInvalidBehaviour,
	task.ErrInvalidState,
	task.ErrPoolOverload,
	store.ErrHistoryDisabled,
	store.ErrNotFound,
}

// TaskServiceError wraps unexpected errors of the task service with context.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "launch_task", "list_history")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
// Known sentinel errors keep their message and are returned as they are.
func NewTaskServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range passthrough {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
