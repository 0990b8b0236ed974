package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/digiflow/taskkeeper/internal/platform/logger"
	"github.com/digiflow/taskkeeper/internal/store"
	"github.com/digiflow/taskkeeper/internal/task"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventLog records the events each named handler received, in call order
type eventLog struct {
	mu    sync.Mutex
	calls []string
	seen  map[string][]*TaskEvent
}

func newEventLog() *eventLog {
	return &eventLog{seen: make(map[string][]*TaskEvent)}
}

// handler returns a handler recording under name and failing with err
func (l *eventLog) handler(name string, err error) EventHandler {
	return EventHandlerFunc(func(_ context.Context, event *TaskEvent) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.calls = append(l.calls, name)
		l.seen[name] = append(l.seen[name], event)
		return err
	})
}

// wrap records a call under name before delegating to next
func (l *eventLog) wrap(name string, next EventHandler) EventHandler {
	return EventHandlerFunc(func(ctx context.Context, event *TaskEvent) error {
		l.mu.Lock()
		l.calls = append(l.calls, name)
		l.mu.Unlock()
		return next.HandleEvent(ctx, event)
	})
}

func TestInMemoryEventEmitter_NoHandlers(t *testing.T) {
	t.Parallel()
	log, _ := logger.GetTestLogger(t)
	emitter := NewInMemoryEventEmitter(log)

	assert.NoError(t, emitter.EmitEvent(context.Background(),
		NewTaskEvent(TypeTaskStarted, testSnapshot(task.StateWorking))))
}

func TestInMemoryEventEmitter_LogsTaskID(t *testing.T) {
	t.Parallel()
	log, buf := logger.GetTestLogger(t)
	emitter := NewInMemoryEventEmitter(log)
	events := newEventLog()
	emitter.RegisterHandler(events.handler("sink", nil))

	snap := testSnapshot(task.StateFinished)
	require.NoError(t, emitter.EmitEvent(context.Background(),
		NewTaskEvent(TypeTaskRemoved, snap).WithReason("expired")))

	logger.AssertLogField(t, buf, "task_id", snap.ID.String())
	logger.AssertLogField(t, buf, "event_type", TypeTaskRemoved)
	logger.AssertLogField(t, buf, "component", "in_memory_event_emitter")
}

func TestInMemoryEventEmitter_HandlersShareDecoratedEvent(t *testing.T) {
	t.Parallel()
	log, _ := logger.GetTestLogger(t)
	emitter := NewInMemoryEventEmitter(log)
	events := newEventLog()
	emitter.RegisterHandler(events.handler("kafka", nil))
	emitter.RegisterHandler(events.handler("cache", nil))

	snap := testSnapshot(task.StateStopped)
	successor := uuid.New()
	event := NewTaskEvent(TypeTaskRestarted, snap).WithReason("prepare_for_restart").WithSuccessor(successor)
	require.NoError(t, emitter.EmitEvent(context.Background(), event))

	for _, name := range []string{"kafka", "cache"} {
		require.Len(t, events.seen[name], 1, name)
		got := events.seen[name][0]
		assert.Equal(t, snap.ID, got.TaskID, name)
		assert.Equal(t, "prepare_for_restart", got.Reason, name)
		require.NotNil(t, got.SuccessorID, name)
		assert.Equal(t, successor, *got.SuccessorID, name)
		assert.Equal(t, task.StateStopped, got.Snapshot.State, name)
	}
}

func TestInMemoryEventEmitter_OrderAndFirstError(t *testing.T) {
	t.Parallel()
	log, buf := logger.GetTestLogger(t)
	emitter := NewInMemoryEventEmitter(log)
	events := newEventLog()
	history := newMemoryHistory()

	publishErr := errors.New("broker unavailable")
	cacheErr := errors.New("cache unavailable")
	emitter.RegisterHandler(events.handler("audit", nil))
	emitter.RegisterHandler(events.handler("publisher", publishErr))
	emitter.RegisterHandler(events.wrap("history", NewHistoryRecorder(history)))
	emitter.RegisterHandler(events.handler("cache", cacheErr))

	snap := testSnapshot(task.StateCrashed)
	snap.Error = "task body failed: disk full"
	err := emitter.EmitEvent(context.Background(), NewTaskEvent(TypeTaskRemoved, snap).WithReason("expired"))

	require.ErrorIs(t, err, publishErr)
	assert.NotErrorIs(t, err, cacheErr)
	assert.Equal(t, []string{"audit", "publisher", "history", "cache"}, events.calls)

	// A failing handler does not keep later handlers from recording the task
	record, err := history.GetRecord(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "expired", record.Reason)
	assert.Equal(t, task.StateCrashed, record.State)
	assert.Equal(t, "task body failed: disk full", record.Error)

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	var failedIndexes []float64
	for _, e := range entries {
		if e["msg"] == "handler failed to process event" {
			assert.Equal(t, snap.ID.String(), e["task_id"])
			failedIndexes = append(failedIndexes, e["handler_index"].(float64))
		}
	}
	assert.Equal(t, []float64{1, 3}, failedIndexes)
}

func TestInMemoryEventEmitter_HistoryRecorderErrorComesFirst(t *testing.T) {
	t.Parallel()
	log, _ := logger.GetTestLogger(t)
	emitter := NewInMemoryEventEmitter(log)
	events := newEventLog()
	history := newMemoryHistory()
	emitter.RegisterHandler(NewHistoryRecorder(history))
	emitter.RegisterHandler(events.handler("publisher", errors.New("broker unavailable")))

	// A removal event for a task that never terminated cannot be recorded
	snap := testSnapshot(task.StateWorking)
	err := emitter.EmitEvent(context.Background(), NewTaskEvent(TypeTaskRemoved, snap))

	require.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.Len(t, events.seen["publisher"], 1)
	_, err = history.GetRecord(context.Background(), snap.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
