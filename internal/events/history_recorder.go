package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digiflow/taskkeeper/internal/platform/logger"
	"github.com/digiflow/taskkeeper/internal/store"
)

// ReasonRestarted is the record reason of a task replaced by its successor
const ReasonRestarted = "restarted"

// HistoryRecorder writes the final snapshot of every task leaving the
// registry into a history store.
type HistoryRecorder struct {
	store store.HistoryStore
	now   func() time.Time
}

// NewHistoryRecorder creates a HistoryRecorder writing to s
func NewHistoryRecorder(s store.HistoryStore) *HistoryRecorder {
	return &HistoryRecorder{store: s, now: time.Now}
}

// HandleEvent implements EventHandler. Events other than removals and
// restarts are ignored.
func (r *HistoryRecorder) HandleEvent(ctx context.Context, event *TaskEvent) error {
	reason := event.Reason
	switch event.Type {
	case TypeTaskRemoved:
	case TypeTaskRestarted:
		reason = ReasonRestarted
	default:
		return nil
	}

	record, err := store.NewTaskRecord(event.Snapshot, reason, r.now())
	if err != nil {
		return fmt.Errorf("failed to build history record for task %s: %w", event.TaskID, err)
	}

	if err := r.store.SaveRecord(ctx, record); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			logger.FromContext(ctx).Debug("task already recorded in history",
				"task_id", event.TaskID)
			return nil
		}
		return fmt.Errorf("failed to record task %s in history: %w", event.TaskID, err)
	}

	logger.FromContext(ctx).Debug("task recorded in history",
		"task_id", record.ID,
		"state", record.State,
		"reason", record.Reason)
	return nil
}
