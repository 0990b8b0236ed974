package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/digiflow/taskkeeper/internal/events"
	"github.com/digiflow/taskkeeper/internal/store"
	"github.com/digiflow/taskkeeper/internal/task"
	"github.com/google/uuid"
)

// Limits of the demonstration task that can be launched over the API
const (
	MaxEmptyTaskSteps     = 1000
	MaxEmptyTaskStepDelay = time.Minute
)

// EmptyTaskRequest describes an EmptyTask to launch
type EmptyTaskRequest struct {
	Steps     int
	StepDelay time.Duration
	// CrashAt makes the task fail at this progress; 0 disables it
	CrashAt int
	// Behaviour is the initial behaviour after termination; 0 keeps the default
	Behaviour task.Behaviour
}

// Validate checks the request against the launch limits
func (r EmptyTaskRequest) Validate() error {
	switch {
	case r.Steps < 1 || r.Steps > MaxEmptyTaskSteps:
		return fmt.Errorf("%w: steps must be between 1 and %d, got %d", ErrInvalidRequest, MaxEmptyTaskSteps, r.Steps)
	case r.StepDelay < 0 || r.StepDelay > MaxEmptyTaskStepDelay:
		return fmt.Errorf("%w: step delay must be between 0 and %s, got %s", ErrInvalidRequest, MaxEmptyTaskStepDelay, r.StepDelay)
	case r.CrashAt < 0 || r.CrashAt > 100:
		return fmt.Errorf("%w: crash_at must be between 0 and 100, got %d", ErrInvalidRequest, r.CrashAt)
	case r.Behaviour != 0 && !r.Behaviour.Valid():
		return fmt.Errorf("%w: %d", task.ErrInvalidBehaviour, uint32(r.Behaviour))
	}
	return nil
}

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	State *task.State
	Kind  string
}

func (f TaskFilter) matches(s task.Snapshot) bool {
	if f.State != nil && s.State != *f.State {
		return false
	}
	return f.Kind == "" || f.Kind == s.Kind
}

// TaskService provides the operations of the control API
type TaskService interface {
	// Launch registers a task for body and starts it
	Launch(ctx context.Context, body task.Body, opts ...task.Option) (task.Snapshot, error)

	// LaunchEmptyTask starts a demonstration task
	LaunchEmptyTask(ctx context.Context, req EmptyTaskRequest) (task.Snapshot, error)

	// StopTask asks a task to stop and records the behaviour after termination
	StopTask(ctx context.Context, id uuid.UUID, behaviour task.Behaviour) (task.Snapshot, error)

	// GetTask returns the snapshot of a registered task
	GetTask(ctx context.Context, id uuid.UUID) (task.Snapshot, error)

	// ListTasks returns the snapshots of the registered tasks in registration order
	ListTasks(ctx context.Context, filter TaskFilter) []task.Snapshot

	// GetHistoryRecord returns the record of a task the housekeeper dropped
	GetHistoryRecord(ctx context.Context, id uuid.UUID) (*store.TaskRecord, error)

	// ListHistory returns records of dropped tasks, newest termination first
	ListHistory(ctx context.Context, filter store.RecordFilter) ([]*store.TaskRecord, error)
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	registry     *task.Registry
	launcher     task.Launcher
	names        task.NameFormatter
	history      store.HistoryStore
	eventEmitter events.EventEmitter
	logger       *slog.Logger
}

var _ TaskService = (*taskServiceImpl)(nil)

// NewTaskService creates a new TaskService. A nil history store disables
// history reads; a nil launcher starts bodies on plain goroutines.
func NewTaskService(
	registry *task.Registry,
	launcher task.Launcher,
	names task.NameFormatter,
	history store.HistoryStore,
	eventEmitter events.EventEmitter,
	logger *slog.Logger,
) (TaskService, error) {
	if registry == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "registry cannot be nil"}
	}
	if eventEmitter == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "eventEmitter cannot be nil"}
	}
	if launcher == nil {
		launcher = task.GoLauncher
	}
	if names == nil {
		names = task.DefaultNameFormatter{}
	}
	if history == nil {
		history = store.NopHistoryStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		registry:     registry,
		launcher:     launcher,
		names:        names,
		history:      history,
		eventEmitter: eventEmitter,
		logger:       logger.With("component", "task_service"),
	}, nil
}

// Launch registers a task for body, starts it and announces it
func (s *taskServiceImpl) Launch(
	ctx context.Context,
	body task.Body,
	opts ...task.Option,
) (task.Snapshot, error) {
	base := []task.Option{
		task.WithLauncher(s.launcher),
		task.WithNameFormatter(s.names),
		task.WithLogger(s.logger),
	}
	t, err := task.New(body, append(base, opts...)...)
	if err != nil {
		return task.Snapshot{}, NewTaskServiceError("launch_task", "failed to create task", err)
	}

	if err := s.registry.Launch(t); err != nil {
		s.logger.Warn("failed to launch task",
			"error", err,
			"task_id", t.ID(),
			"task_kind", t.Kind())
		return task.Snapshot{}, NewTaskServiceError("launch_task", "failed to start task", err)
	}

	snap := t.Snapshot()
	s.emit(ctx, events.NewTaskEvent(events.TypeTaskStarted, snap))

	s.logger.Info("task launched", "task_id", snap.ID, "task_kind", snap.Kind)
	return snap, nil
}

// LaunchEmptyTask starts a demonstration task
func (s *taskServiceImpl) LaunchEmptyTask(ctx context.Context, req EmptyTaskRequest) (task.Snapshot, error) {
	if err := req.Validate(); err != nil {
		return task.Snapshot{}, err
	}

	body, err := task.NewEmptyTask(req.Steps, req.StepDelay)
	if err != nil {
		return task.Snapshot{}, NewTaskServiceError("launch_task", "failed to create empty task", err)
	}
	body.CrashAt = req.CrashAt

	var opts []task.Option
	if req.Behaviour != 0 {
		opts = append(opts, task.WithBehaviour(req.Behaviour))
	}
	return s.Launch(ctx, body, opts...)
}

// StopTask asks a task to stop. A task that already terminated only has its
// behaviour updated.
func (s *taskServiceImpl) StopTask(
	ctx context.Context,
	id uuid.UUID,
	behaviour task.Behaviour,
) (task.Snapshot, error) {
	t, err := s.registry.Get(id)
	if err != nil {
		return task.Snapshot{}, NewTaskServiceError("stop_task", "failed to find task", err)
	}

	if err := t.RequestStop(behaviour); err != nil {
		return task.Snapshot{}, NewTaskServiceError("stop_task", "failed to request stop", err)
	}

	snap := t.Snapshot()
	s.emit(ctx, events.NewTaskEvent(events.TypeTaskStopRequested, snap))
	return snap, nil
}

// GetTask returns the snapshot of a registered task
func (s *taskServiceImpl) GetTask(_ context.Context, id uuid.UUID) (task.Snapshot, error) {
	t, err := s.registry.Get(id)
	if err != nil {
		return task.Snapshot{}, NewTaskServiceError("get_task", "failed to find task", err)
	}
	return t.Snapshot(), nil
}

// ListTasks returns the snapshots matching filter
func (s *taskServiceImpl) ListTasks(_ context.Context, filter TaskFilter) []task.Snapshot {
	all := s.registry.Snapshots()
	matched := make([]task.Snapshot, 0, len(all))
	for _, snap := range all {
		if filter.matches(snap) {
			matched = append(matched, snap)
		}
	}
	return matched
}

// GetHistoryRecord returns one history record
func (s *taskServiceImpl) GetHistoryRecord(ctx context.Context, id uuid.UUID) (*store.TaskRecord, error) {
	record, err := s.history.GetRecord(ctx, id)
	if err != nil {
		return nil, NewTaskServiceError("get_history_record", "failed to read history", err)
	}
	return record, nil
}

// ListHistory returns history records matching filter
func (s *taskServiceImpl) ListHistory(ctx context.Context, filter store.RecordFilter) ([]*store.TaskRecord, error) {
	records, err := s.history.ListRecords(ctx, filter)
	if err != nil {
		return nil, NewTaskServiceError("list_history", "failed to read history", err)
	}
	return records, nil
}

// emit publishes an event. Handler failures are logged; the operation that
// caused the event has already happened.
func (s *taskServiceImpl) emit(ctx context.Context, event *events.TaskEvent) {
	if err := s.eventEmitter.EmitEvent(ctx, event); err != nil {
		s.logger.Error("failed to emit task event",
			"error", err,
			"event_type", event.Type,
			"task_id", event.TaskID)
	}
}
