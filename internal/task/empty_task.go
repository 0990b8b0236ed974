package task

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// KindEmptyTask is the kind of the demonstration task
const KindEmptyTask = "EmptyTask"

// ErrInducedCrash is returned by an EmptyTask told to crash
var ErrInducedCrash = errors.New("induced crash")

// EmptyTask is a body that does nothing but advance its progress step by
// step. Operators use it to check that tasks, the housekeeper and the UI work.
type EmptyTask struct {
	// Steps is the number of steps until 100%
	Steps int

	// StepDelay is the time spent on each step
	StepDelay time.Duration

	// CrashAt makes the body fail once progress would reach this value; 0 disables it
	CrashAt int

	// startStep is the step a restarted task resumes after
	startStep int
}

// NewEmptyTask creates an EmptyTask body
func NewEmptyTask(steps int, stepDelay time.Duration) (*EmptyTask, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("empty task needs at least one step, got %d", steps)
	}
	return &EmptyTask{Steps: steps, StepDelay: stepDelay}, nil
}

// Kind implements Kinded
func (e *EmptyTask) Kind() string {
	return KindEmptyTask
}

// Run implements Body
func (e *EmptyTask) Run(ctx context.Context, r Reporter) error {
	timer := time.NewTimer(e.StepDelay)
	defer timer.Stop()

	for step := e.startStep + 1; step <= e.Steps; step++ {
		if r.StopRequested() {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		timer.Reset(e.StepDelay)

		percent := step * 100 / e.Steps
		if e.CrashAt > 0 && percent >= e.CrashAt {
			return fmt.Errorf("%w at %d%%", ErrInducedCrash, percent)
		}

		r.ReportDetail(fmt.Sprintf("step %d of %d", step, e.Steps))
		if err := r.ReportProgress(percent); err != nil {
			return err
		}
	}
	return nil
}

// Restart implements Restartable. The successor resumes after the last step
// covered by the progress of the stopped task.
func (e *EmptyTask) Restart(prev Snapshot) (Body, error) {
	next := *e
	next.startStep = prev.Progress * e.Steps / 100
	return &next, nil
}
