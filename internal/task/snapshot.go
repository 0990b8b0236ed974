package task

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is a point-in-time read of a task for UI pollers, the housekeeper
// and the history store. Fields are read one by one, so progress and detail
// may be from slightly different moments; state, error and termination time
// are always consistent with each other.
type Snapshot struct {
	ID            uuid.UUID  `json:"id"`
	Kind          string     `json:"kind"`
	Name          string     `json:"name"`
	State         State      `json:"state"`
	Progress      int        `json:"progress"`
	Detail        string     `json:"detail,omitempty"`
	Behaviour     Behaviour  `json:"behaviour"`
	Error         string     `json:"error,omitempty"`
	TerminatedAt  *time.Time `json:"terminated_at,omitempty"`
	DeadForMillis int64      `json:"dead_for_ms,omitempty"`
}

// Snapshot reads the current state of the task
func (t *Task) Snapshot() Snapshot {
	s := Snapshot{
		ID:        t.id,
		Kind:      t.kind,
		Name:      t.Name(),
		Progress:  t.Progress(),
		Detail:    t.Detail(),
		Behaviour: t.Behaviour(),
	}

	rec := t.term.Load()
	if rec == nil {
		s.State = t.State()
		// The task may have terminated between the two loads; State is
		// authoritative only together with rec, so settle on the record.
		if s.State.IsTerminal() {
			rec = t.term.Load()
		}
	}
	if rec != nil {
		s.State = rec.state()
		at := rec.at
		s.TerminatedAt = &at
		if dead := t.now().Sub(rec.at); dead > 0 {
			s.DeadForMillis = dead.Milliseconds()
		}
		if rec.failure != nil {
			s.Error = rec.failure.Error()
		}
	}

	return s
}

// Terminated reports whether the snapshot was taken after the task terminated
func (s Snapshot) Terminated() bool {
	return s.TerminatedAt != nil
}
