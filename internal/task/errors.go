package task

import (
	"errors"
	"fmt"
)

// Errors returned by task supervision calls
var (
	// ErrInvalidState is returned when an operation is invoked in a lifecycle phase
	// that does not allow it, such as starting a task twice
	ErrInvalidState = errors.New("invalid task state")

	// ErrProgressOutOfRange is returned when a body reports progress outside [0,100]
	ErrProgressOutOfRange = errors.New("progress out of range")

	// ErrInvalidBehaviour is returned for an unknown behaviour after termination
	ErrInvalidBehaviour = errors.New("invalid behaviour after termination")

	// ErrNilBody is returned when a task is constructed without a body
	ErrNilBody = errors.New("task body cannot be nil")

	// ErrTaskNotFound is returned by the registry for unknown task IDs
	ErrTaskNotFound = errors.New("task not found")

	// ErrDuplicateTask is returned when a task is registered twice
	ErrDuplicateTask = errors.New("task already registered")

	// ErrNotRestartable is returned when a successor is requested for a body
	// that cannot continue the work of a stopped task
	ErrNotRestartable = errors.New("task body is not restartable")
)

// BodyFailure records why a task body terminated abnormally. It is never
// returned to the caller of Start; it is kept by the task and read through LastError.
type BodyFailure struct {
	// Err is the error returned by the body or recorded by a supervision call.
	// It is nil when the body panicked with a value that is not an error.
	Err error

	// Panic holds the recovered value if the body panicked
	Panic any

	// Stack is the goroutine stack at the time of the panic
	Stack []byte
}

// Error implements the error interface
func (f *BodyFailure) Error() string {
	switch {
	case f.Panic != nil:
		return fmt.Sprintf("task body panicked: %v", f.Panic)
	case f.Err != nil:
		return fmt.Sprintf("task body failed: %v", f.Err)
	default:
		return "task body failed"
	}
}

// Unwrap returns the underlying cause to support errors.Is/errors.As
func (f *BodyFailure) Unwrap() error {
	return f.Err
}

// Panicked reports whether the failure was caused by a panic
func (f *BodyFailure) Panicked() bool {
	return f.Panic != nil
}
