package store

import (
	"fmt"
	"time"

	"github.com/digiflow/taskkeeper/internal/task"
	"github.com/google/uuid"
)

// RecordRow holds the column values of a stored record as SQL drivers
// return them, before decoding into a TaskRecord.
type RecordRow struct {
	ID           string
	Kind         string
	Name         string
	State        string
	Progress     int
	Detail       string
	Behaviour    string
	Error        string
	Reason       string
	TerminatedAt time.Time
	RecordedAt   time.Time
}

// Decode parses the row into a TaskRecord
func (row RecordRow) Decode() (*TaskRecord, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: stored record id %q: %v", ErrInvalidEntity, row.ID, err)
	}
	state, err := task.ParseState(row.State)
	if err != nil {
		return nil, fmt.Errorf("%w: stored record %s: %v", ErrInvalidEntity, id, err)
	}
	behaviour, err := task.ParseBehaviour(row.Behaviour)
	if err != nil {
		return nil, fmt.Errorf("%w: stored record %s: %v", ErrInvalidEntity, id, err)
	}

	return &TaskRecord{
		ID:           id,
		Kind:         row.Kind,
		Name:         row.Name,
		State:        state,
		Progress:     row.Progress,
		Detail:       row.Detail,
		Behaviour:    behaviour,
		Error:        row.Error,
		Reason:       row.Reason,
		TerminatedAt: row.TerminatedAt.UTC(),
		RecordedAt:   row.RecordedAt.UTC(),
	}, nil
}
