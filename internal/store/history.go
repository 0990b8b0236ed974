package store

import (
	"context"
	"fmt"
	"time"

	"github.com/digiflow/taskkeeper/internal/task"
	"github.com/google/uuid"
)

// DefaultListLimit caps ListRecords when the filter sets no limit
const DefaultListLimit = 100

// TaskRecord is the final snapshot of a task, written when the housekeeper
// removes it from the registry or replaces it with a successor.
type TaskRecord struct {
	ID           uuid.UUID      `json:"id"`
	Kind         string         `json:"kind"`
	Name         string         `json:"name"`
	State        task.State     `json:"state"`
	Progress     int            `json:"progress"`
	Detail       string         `json:"detail,omitempty"`
	Behaviour    task.Behaviour `json:"behaviour"`
	Error        string         `json:"error,omitempty"`
	TerminatedAt time.Time      `json:"terminated_at"`
	RecordedAt   time.Time      `json:"recorded_at"`
	// Reason says why the task left the registry, e.g. "expired" or "restarted"
	Reason string `json:"reason"`
}

// NewTaskRecord builds a record from the snapshot of a terminated task
func NewTaskRecord(snap task.Snapshot, reason string, recordedAt time.Time) (*TaskRecord, error) {
	if !snap.Terminated() || snap.TerminatedAt == nil {
		return nil, fmt.Errorf("%w: task %s is %s, only terminated tasks are recorded",
			ErrInvalidEntity, snap.ID, snap.State)
	}
	r := &TaskRecord{
		ID:           snap.ID,
		Kind:         snap.Kind,
		Name:         snap.Name,
		State:        snap.State,
		Progress:     snap.Progress,
		Detail:       snap.Detail,
		Behaviour:    snap.Behaviour,
		Error:        snap.Error,
		TerminatedAt: snap.TerminatedAt.UTC(),
		RecordedAt:   recordedAt.UTC(),
		Reason:       reason,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the invariants every stored record satisfies
func (r *TaskRecord) Validate() error {
	switch {
	case r.ID == uuid.Nil:
		return fmt.Errorf("%w: record id is empty", ErrInvalidEntity)
	case r.Kind == "":
		return fmt.Errorf("%w: record kind is empty", ErrInvalidEntity)
	case !r.State.IsTerminal():
		return fmt.Errorf("%w: record state %s is not terminal", ErrInvalidEntity, r.State)
	case r.Progress < 0 || r.Progress > 100:
		return fmt.Errorf("%w: record progress %d out of range", ErrInvalidEntity, r.Progress)
	case !r.Behaviour.Valid():
		return fmt.Errorf("%w: record behaviour %d is invalid", ErrInvalidEntity, r.Behaviour)
	case r.TerminatedAt.IsZero():
		return fmt.Errorf("%w: record has no termination time", ErrInvalidEntity)
	}
	return nil
}

// RecordFilter narrows ListRecords. Zero fields do not filter.
type RecordFilter struct {
	Kind  string
	State task.State
	// Since keeps records that terminated at or after this time
	Since time.Time
	Limit int
}

// EffectiveLimit returns the limit to apply to a query
func (f RecordFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// HistoryStore persists the records of tasks that left the registry
type HistoryStore interface {
	// SaveRecord stores a record. Saving a record whose ID exists returns ErrDuplicate.
	SaveRecord(ctx context.Context, record *TaskRecord) error

	// GetRecord returns the record with the given task ID or ErrRecordNotFound
	GetRecord(ctx context.Context, id uuid.UUID) (*TaskRecord, error)

	// ListRecords returns matching records, most recently terminated first
	ListRecords(ctx context.Context, filter RecordFilter) ([]*TaskRecord, error)

	// PurgeOlderThan deletes records that terminated before cutoff and
	// returns how many were deleted
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the underlying connection
	Close() error
}

// NopHistoryStore is used when history is disabled. Writes are dropped and
// reads fail with ErrHistoryDisabled.
type NopHistoryStore struct{}

// SaveRecord implements HistoryStore
func (NopHistoryStore) SaveRecord(context.Context, *TaskRecord) error { return nil }

// GetRecord implements HistoryStore
func (NopHistoryStore) GetRecord(context.Context, uuid.UUID) (*TaskRecord, error) {
	return nil, ErrHistoryDisabled
}

// ListRecords implements HistoryStore
func (NopHistoryStore) ListRecords(context.Context, RecordFilter) ([]*TaskRecord, error) {
	return nil, ErrHistoryDisabled
}

// PurgeOlderThan implements HistoryStore
func (NopHistoryStore) PurgeOlderThan(context.Context, time.Time) (int64, error) {
	return 0, ErrHistoryDisabled
}

// Close implements HistoryStore
func (NopHistoryStore) Close() error { return nil }

var _ HistoryStore = NopHistoryStore{}
