package task

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Registry holds every task that is known to the application, running or
// terminated, in the order they were added. The housekeeper sweeps it and UI
// pollers list it.
type Registry struct {
	mu     sync.RWMutex
	tasks  []*Task
	logger *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tasks:  make([]*Task, 0),
		logger: logger.With("component", "task_registry"),
	}
}

// Add registers a task without starting it
func (r *Registry) Add(t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(t.ID()) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID())
	}
	r.tasks = append(r.tasks, t)

	r.logger.Debug("task registered",
		"task_id", t.ID(),
		"task_kind", t.Kind(),
		"task_count", len(r.tasks))
	return nil
}

// Launch registers a task and starts it. If the task cannot be started it is
// not kept in the registry.
func (r *Registry) Launch(t *Task) error {
	if err := r.Add(t); err != nil {
		return err
	}
	if err := t.Start(); err != nil {
		_ = r.Remove(t.ID())
		return err
	}
	return nil
}

// Get returns the task with the given ID
func (r *Registry) Get(id uuid.UUID) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return r.tasks[i], nil
}

// List returns the registered tasks in registration order
func (r *Registry) List() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]*Task, len(r.tasks))
	copy(tasks, r.tasks)
	return tasks
}

// Snapshots reads a snapshot of every registered task
func (r *Registry) Snapshots() []Snapshot {
	tasks := r.List()
	snapshots := make([]Snapshot, 0, len(tasks))
	for _, t := range tasks {
		snapshots = append(snapshots, t.Snapshot())
	}
	return snapshots
}

// Remove discards a task from the registry. It does not stop it.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	last := len(r.tasks) - 1
	copy(r.tasks[i:], r.tasks[i+1:])
	// Clear the vacated slot so the removed task can be collected
	r.tasks[last] = nil
	r.tasks = r.tasks[:last]

	r.logger.Debug("task removed", "task_id", id, "task_count", len(r.tasks))
	return nil
}

// Replace puts successor at the position of the task with ID oldID
func (r *Registry) Replace(oldID uuid.UUID, successor *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(oldID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, oldID)
	}
	if j := r.indexOf(successor.ID()); j >= 0 && j != i {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, successor.ID())
	}
	r.tasks[i] = successor

	r.logger.Debug("task replaced", "task_id", oldID, "successor_id", successor.ID())
	return nil
}

// StopAll requests every task that has not terminated to stop with the given
// behaviour and returns how many were asked
func (r *Registry) StopAll(b Behaviour) (int, error) {
	if !b.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBehaviour, uint32(b))
	}

	count := 0
	for _, t := range r.List() {
		if t.State().IsTerminal() {
			continue
		}
		if err := t.RequestStop(b); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Len returns the number of registered tasks
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

func (r *Registry) indexOf(id uuid.UUID) int {
	for i, t := range r.tasks {
		if t.ID() == id {
			return i
		}
	}
	return -1
}
