package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// defaultKind is used when neither an option nor the body names the task kind
const defaultKind = "task"

// Body is the work routine of a task. Run is called once, on the task's own
// goroutine. It should poll r.StopRequested (or watch ctx) and return when a
// stop was requested. Returning a non-nil error crashes the task.
type Body interface {
	Run(ctx context.Context, r Reporter) error
}

// BodyFunc adapts an ordinary function to the Body interface
type BodyFunc func(ctx context.Context, r Reporter) error

// Run calls f(ctx, r)
func (f BodyFunc) Run(ctx context.Context, r Reporter) error {
	return f(ctx, r)
}

// Reporter is the body-side surface of a running task
type Reporter interface {
	// ReportProgress advances the progress to percent, which must be in [0,100]
	ReportProgress(percent int) error

	// ReportDetail replaces the human-readable status detail
	ReportDetail(detail string)

	// StopRequested reports whether someone asked the task to stop
	StopRequested() bool
}

// Kinded is implemented by bodies that name their own task kind
type Kinded interface {
	Kind() string
}

// Restartable is implemented by bodies that can continue the work of a task
// that was stopped with BehaviourPrepareForRestart. Restart returns the body
// for the successor task; prev is the final snapshot of the stopped task.
type Restartable interface {
	Restart(prev Snapshot) (Body, error)
}

// termination is written exactly once, when the body returns. Keeping the
// timestamp, the failure and the disposition seen at that moment in one record
// lets readers derive a consistent terminal state from a single atomic load.
type termination struct {
	at        time.Time
	failure   *BodyFailure
	behaviour Behaviour
}

func (r *termination) state() State {
	switch {
	case r.failure != nil:
		return StateCrashed
	case r.behaviour == BehaviourPrepareForRestart:
		return StateStopped
	default:
		return StateFinished
	}
}

// Task is a unit of asynchronous, cooperatively cancellable background work.
// All accessors are safe for concurrent use; the body writes progress and
// detail from its own goroutine while pollers read them from theirs.
type Task struct {
	id         uuid.UUID
	kind       string
	body       Body
	names      NameFormatter
	launcher   Launcher
	baseLogger *slog.Logger
	logger     *slog.Logger
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	started       atomic.Bool
	stopRequested atomic.Bool
	progress      atomic.Int32
	detail        atomic.Pointer[string]
	behaviour     atomic.Uint32
	fault         atomic.Pointer[BodyFailure]
	term          atomic.Pointer[termination]

	// optErr is the first error raised by an Option; New returns it
	optErr error
}

// Option configures a Task at construction
type Option func(*Task)

// WithID sets the task ID instead of generating a random one
func WithID(id uuid.UUID) Option {
	return func(t *Task) { t.id = id }
}

// WithKind sets the task kind used for display and logging
func WithKind(kind string) Option {
	return func(t *Task) { t.kind = kind }
}

// WithNameFormatter injects the formatter that renders display names
func WithNameFormatter(names NameFormatter) Option {
	return func(t *Task) { t.names = names }
}

// WithLauncher sets how the body's goroutine is scheduled
func WithLauncher(l Launcher) Option {
	return func(t *Task) { t.launcher = l }
}

// WithLogger sets the logger; task fields are added to it
func WithLogger(logger *slog.Logger) Option {
	return func(t *Task) { t.baseLogger = logger }
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(t *Task) { t.now = now }
}

// WithInitialProgress starts the task at the given progress. Used for
// successors that continue the work of a stopped task.
func WithInitialProgress(percent int) Option {
	return func(t *Task) {
		if percent < 0 || percent > 100 {
			if t.optErr == nil {
				t.optErr = fmt.Errorf("%w: initial progress %d", ErrProgressOutOfRange, percent)
			}
			return
		}
		t.progress.Store(int32(percent))
	}
}

// WithInitialDetail starts the task with the given detail
func WithInitialDetail(detail string) Option {
	return func(t *Task) {
		if detail != "" {
			t.detail.Store(&detail)
		}
	}
}

// WithBehaviour sets the initial behaviour after termination
func WithBehaviour(b Behaviour) Option {
	return func(t *Task) { t.behaviour.Store(uint32(b)) }
}

// New creates a task in state NEW. The body does not run until Start is called.
func New(body Body, opts ...Option) (*Task, error) {
	if body == nil {
		return nil, ErrNilBody
	}

	t := &Task{
		id:         uuid.New(),
		body:       body,
		names:      DefaultNameFormatter{},
		launcher:   GoLauncher,
		baseLogger: slog.Default(),
		now:        time.Now,
		done:       make(chan struct{}),
	}
	if k, ok := body.(Kinded); ok {
		t.kind = k.Kind()
	}
	t.behaviour.Store(uint32(DefaultBehaviour))

	for _, opt := range opts {
		opt(t)
	}

	if t.kind == "" {
		t.kind = defaultKind
	}
	if t.optErr != nil {
		return nil, t.optErr
	}
	if b := Behaviour(t.behaviour.Load()); !b.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBehaviour, uint32(b))
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.logger = t.baseLogger.With("task_id", t.id, "task_kind", t.kind)

	return t, nil
}

// Successor builds the task that continues the work of a task stopped for
// restart. The old task is not touched; the caller decides whether to start
// the successor and discard the old instance. Progress and detail are
// carried forward; opts are applied last.
func Successor(old *Task, opts ...Option) (*Task, error) {
	r, ok := old.body.(Restartable)
	if !ok {
		return nil, fmt.Errorf("%w: kind %s", ErrNotRestartable, old.kind)
	}

	body, err := r.Restart(old.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to restart task %s: %w", old.id, err)
	}

	base := []Option{
		WithKind(old.kind),
		WithNameFormatter(old.names),
		WithLauncher(old.launcher),
		WithLogger(old.baseLogger),
		WithClock(old.now),
		WithInitialProgress(old.Progress()),
		WithInitialDetail(old.Detail()),
	}
	return New(body, append(base, opts...)...)
}

// ID returns the task's unique identifier
func (t *Task) ID() uuid.UUID {
	return t.id
}

// Kind returns the task kind
func (t *Task) Kind() string {
	return t.kind
}

// Body returns the work routine of the task
func (t *Task) Body() Body {
	return t.body
}

// Start runs the body on its own goroutine. It fails with ErrInvalidState if
// the task was already started or has terminated. Failures of the body are
// never returned here; they are kept by the task.
func (t *Task) Start() error {
	if t.term.Load() != nil {
		return fmt.Errorf("%w: task %s has already terminated", ErrInvalidState, t.id)
	}
	if !t.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: task %s was already started", ErrInvalidState, t.id)
	}

	if err := t.launcher.Launch(t.run); err != nil {
		t.started.Store(false)
		return fmt.Errorf("failed to launch task %s: %w", t.id, err)
	}

	t.logger.Debug("task started")
	return nil
}

// RequestStop asks the body to stop and records what the housekeeper should do
// with the task afterwards. It never blocks and may be called repeatedly; later
// calls only update the behaviour.
func (t *Task) RequestStop(b Behaviour) error {
	if err := t.SetBehaviour(b); err != nil {
		return err
	}

	if t.stopRequested.CompareAndSwap(false, true) {
		t.logger.Info("stop requested", "behaviour", b)
	}
	t.cancel()
	return nil
}

// SetBehaviour changes the behaviour after termination without asking the task to stop
func (t *Task) SetBehaviour(b Behaviour) error {
	if !b.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidBehaviour, uint32(b))
	}
	t.behaviour.Store(uint32(b))
	return nil
}

// StopRequested reports whether RequestStop was called
func (t *Task) StopRequested() bool {
	return t.stopRequested.Load()
}

// ReportProgress sets the progress of the task. Values outside [0,100] are a
// programming error of the body: the progress is left unchanged, the error is
// recorded as the task's failure cause and returned. Values below the current
// progress are ignored.
func (t *Task) ReportProgress(percent int) error {
	if t.term.Load() != nil {
		return fmt.Errorf("%w: task %s has terminated", ErrInvalidState, t.id)
	}

	if percent < 0 || percent > 100 {
		err := fmt.Errorf("%w: %d", ErrProgressOutOfRange, percent)
		if t.fault.CompareAndSwap(nil, &BodyFailure{Err: err}) {
			t.logger.Warn("task reported invalid progress", "progress", percent)
		}
		return err
	}

	for {
		current := t.progress.Load()
		if int32(percent) <= current {
			return nil
		}
		if t.progress.CompareAndSwap(current, int32(percent)) {
			return nil
		}
	}
}

// ReportDetail replaces the status detail. Ignored once the task has terminated.
func (t *Task) ReportDetail(detail string) {
	if t.term.Load() != nil {
		return
	}
	t.detail.Store(&detail)
}

// State derives the current lifecycle state
func (t *Task) State() State {
	if rec := t.term.Load(); rec != nil {
		return rec.state()
	}
	if !t.started.Load() {
		return StateNew
	}
	if t.stopRequested.Load() {
		return StateStopping
	}
	return StateWorking
}

// Progress returns the progress in percent
func (t *Task) Progress() int {
	return int(t.progress.Load())
}

// Detail returns the status detail, or the empty string if none was reported
func (t *Task) Detail() string {
	if d := t.detail.Load(); d != nil {
		return *d
	}
	return ""
}

// Name returns the human-readable display name, derived from kind and detail
func (t *Task) Name() string {
	return t.names.FormatName(t.kind, t.Detail())
}

// Behaviour returns the current behaviour after termination
func (t *Task) Behaviour() Behaviour {
	return Behaviour(t.behaviour.Load())
}

// LastError returns the failure of a crashed task, or nil
func (t *Task) LastError() error {
	if rec := t.term.Load(); rec != nil && rec.failure != nil {
		return rec.failure
	}
	return nil
}

// TerminatedAt returns when the task terminated. The second result is false
// while the task has not terminated.
func (t *Task) TerminatedAt() (time.Time, bool) {
	if rec := t.term.Load(); rec != nil {
		return rec.at, true
	}
	return time.Time{}, false
}

// TimeSinceTermination returns how long the task has been dead. The second
// result is false while the task has not terminated.
func (t *Task) TimeSinceTermination() (time.Duration, bool) {
	rec := t.term.Load()
	if rec == nil {
		return 0, false
	}
	elapsed := t.now().Sub(rec.at)
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed, true
}

// Done returns a channel that is closed when the task terminates
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task terminates or ctx is done
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is executed on the task's own goroutine
func (t *Task) run() {
	failure := t.invoke()
	if fault := t.fault.Load(); fault != nil {
		failure = fault
	}

	rec := &termination{
		at:        t.now(),
		failure:   failure,
		behaviour: t.Behaviour(),
	}
	t.term.Store(rec)
	t.cancel()
	close(t.done)

	state := rec.state()
	if failure != nil {
		t.logger.Error("task crashed",
			"state", state,
			"progress", t.Progress(),
			"error", failure)
		return
	}
	t.logger.Info("task terminated",
		"state", state,
		"progress", t.Progress(),
		"behaviour", rec.behaviour)
}

// invoke calls the body and converts an error or panic into a BodyFailure
func (t *Task) invoke() (failure *BodyFailure) {
	defer func() {
		if r := recover(); r != nil {
			failure = &BodyFailure{Panic: r, Stack: debug.Stack()}
			if err, ok := r.(error); ok {
				failure.Err = err
			}
		}
	}()

	err := t.body.Run(t.ctx, t)
	if err == nil {
		return nil
	}
	// A body that gives up because its context was cancelled by RequestStop
	// has honoured the stop request.
	if t.stopRequested.Load() && errors.Is(err, context.Canceled) {
		return nil
	}
	return &BodyFailure{Err: err}
}

// Ensure Task can be handed to bodies as their Reporter
var _ Reporter = (*Task)(nil)
