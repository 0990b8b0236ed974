package task

import (
	"fmt"
	"strings"
)

// State represents the derived lifecycle state of a task
type State uint8

// Possible task states
const (
	// StateNew means the task was constructed but not started
	StateNew State = iota
	// StateWorking means the body is running and no stop was requested
	StateWorking
	// StateStopping means a stop was requested but the body has not returned yet
	StateStopping
	// StateFinished means the body returned without failure and no restart was requested
	StateFinished
	// StateStopped means the body returned without failure and a restart was requested
	StateStopped
	// StateCrashed means the body failed; it wins over any disposition
	StateCrashed
)

var stateNames = [...]string{
	StateNew:      "new",
	StateWorking:  "working",
	StateStopping: "stopping",
	StateFinished: "finished",
	StateStopped:  "stopped",
	StateCrashed:  "crashed",
}

// String returns the lowercase name of the state
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// IsTerminal reports whether the state is one of FINISHED, STOPPED or CRASHED
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateStopped || s == StateCrashed
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState converts a state name into a State
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(n, name) {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown task state %q", name)
}

// Behaviour is the instruction a task leaves for the housekeeper about what
// to do with it once it has terminated
type Behaviour uint32

// Possible behaviours after termination
const (
	// BehaviourDeleteImmediately asks the housekeeper to dispose of the task as soon as it stopped
	BehaviourDeleteImmediately Behaviour = iota + 1
	// BehaviourKeepForAWhile keeps a terminated task around until the retention limits expire
	BehaviourKeepForAWhile
	// BehaviourPrepareForRestart asks the housekeeper to replace the task by a successor
	// that continues the work of the old one
	BehaviourPrepareForRestart
)

// DefaultBehaviour is the disposition of a task nobody asked anything of
const DefaultBehaviour = BehaviourKeepForAWhile

var behaviourNames = map[Behaviour]string{
	BehaviourDeleteImmediately: "delete_immediately",
	BehaviourKeepForAWhile:     "keep_for_a_while",
	BehaviourPrepareForRestart: "prepare_for_restart",
}

// String returns the snake_case name of the behaviour
func (b Behaviour) String() string {
	if name, ok := behaviourNames[b]; ok {
		return name
	}
	return fmt.Sprintf("behaviour(%d)", uint32(b))
}

// Valid reports whether b is one of the defined behaviours
func (b Behaviour) Valid() bool {
	_, ok := behaviourNames[b]
	return ok
}

// MarshalText implements encoding.TextMarshaler
func (b Behaviour) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBehaviour, uint32(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *Behaviour) UnmarshalText(text []byte) error {
	parsed, err := ParseBehaviour(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ParseBehaviour converts a behaviour name into a Behaviour. Both snake_case and
// the upper case constant spelling are accepted.
func ParseBehaviour(name string) (Behaviour, error) {
	for b, n := range behaviourNames {
		if strings.EqualFold(n, name) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidBehaviour, name)
}

// BehaviourNames lists the text forms of all behaviours, in declaration order
func BehaviourNames() []string {
	return []string{
		BehaviourDeleteImmediately.String(),
		BehaviourKeepForAWhile.String(),
		BehaviourPrepareForRestart.String(),
	}
}
