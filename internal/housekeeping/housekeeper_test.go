package housekeeping

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/digiflow/taskkeeper/internal/events"
	"github.com/digiflow/taskkeeper/internal/task"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced clock shared by the tasks of a test
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingSink remembers what the housekeeper published and forgot
type recordingSink struct {
	mu        sync.Mutex
	published [][]task.Snapshot
	forgotten []uuid.UUID
	err       error
}

func (s *recordingSink) Publish(_ context.Context, snaps []task.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, snaps)
	return s.err
}

func (s *recordingSink) Forget(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgotten = append(s.forgotten, id)
	return s.err
}

func (s *recordingSink) sweeps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

// recordingEmitter remembers emitted events
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.TaskEvent
	err    error
}

func (e *recordingEmitter) EmitEvent(_ context.Context, event *events.TaskEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return e.err
}

func (e *recordingEmitter) reasons() map[uuid.UUID]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[uuid.UUID]string, len(e.events))
	for _, ev := range e.events {
		out[ev.TaskID] = ev.Reason
	}
	return out
}

type fixture struct {
	registry *task.Registry
	clock    *fakeClock
	sink     *recordingSink
	emitter  *recordingEmitter
	keeper   *Housekeeper
}

func newFixture(t *testing.T, config Config) *fixture {
	t.Helper()
	f := &fixture{
		registry: task.NewRegistry(discardLogger()),
		clock:    newFakeClock(),
		sink:     &recordingSink{},
		emitter:  &recordingEmitter{},
	}
	f.keeper = New(f.registry, config, f.sink, f.emitter, discardLogger())
	return f
}

// launch registers and starts a task running body
func (f *fixture) launch(t *testing.T, body task.Body, opts ...task.Option) *task.Task {
	t.Helper()
	opts = append([]task.Option{task.WithClock(f.clock.Now), task.WithLogger(discardLogger())}, opts...)
	tk, err := task.New(body, opts...)
	require.NoError(t, err)
	require.NoError(t, f.registry.Launch(tk))
	return tk
}

// terminated launches a task that terminates in the given state
func (f *fixture) terminated(t *testing.T, state task.State) *task.Task {
	t.Helper()

	var body task.Body
	switch state {
	case task.StateFinished:
		body = task.NewMockBody("ImportTask", nil)
	case task.StateCrashed:
		body = task.NewMockBody("ImportTask", func(context.Context, task.Reporter) error {
			return errors.New("disk full")
		})
	default:
		t.Fatalf("unsupported state %s", state)
	}

	tk := f.launch(t, body)
	waitDone(t, tk)
	require.Equal(t, state, tk.State())
	return tk
}

func waitDone(t *testing.T, tk *task.Task) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tk.Wait(ctx), "task did not terminate")
}

func (f *fixture) ids() []uuid.UUID {
	var ids []uuid.UUID
	for _, tk := range f.registry.List() {
		ids = append(ids, tk.ID())
	}
	return ids
}

func TestSweep_LeavesLiveTasksAlone(t *testing.T) {
	f := newFixture(t, Config{MaxFinished: 1})

	running := f.launch(t, task.NewBlockingMockBody("ExportTask"))
	t.Cleanup(func() { _ = running.RequestStop(task.BehaviourDeleteImmediately) })

	idle, err := task.New(task.NewMockBody("ExportTask", nil))
	require.NoError(t, err)
	require.NoError(t, f.registry.Add(idle))

	report, err := f.keeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{Live: 2}, report)
	assert.Equal(t, 2, f.registry.Len())
	require.Len(t, f.sink.published, 1)
	assert.Len(t, f.sink.published[0], 2)
	assert.Empty(t, f.emitter.events)
}

func TestSweep_DeleteImmediately(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	finished := f.terminated(t, task.StateFinished)
	crashed := f.terminated(t, task.StateCrashed)
	kept := f.terminated(t, task.StateFinished)

	// The behaviour may still be changed after termination
	require.NoError(t, finished.SetBehaviour(task.BehaviourDeleteImmediately))
	require.NoError(t, crashed.SetBehaviour(task.BehaviourDeleteImmediately))

	report, err := f.keeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Removed)
	assert.Equal(t, 1, report.Kept)
	assert.Equal(t, []uuid.UUID{kept.ID()}, f.ids())
	assert.ElementsMatch(t, []uuid.UUID{finished.ID(), crashed.ID()}, f.sink.forgotten)

	reasons := f.emitter.reasons()
	assert.Equal(t, ReasonDeleteImmediately, reasons[finished.ID()])
	assert.Equal(t, ReasonDeleteImmediately, reasons[crashed.ID()])
	for _, ev := range f.emitter.events {
		assert.Equal(t, events.TypeTaskRemoved, ev.Type)
		assert.True(t, ev.Snapshot.Terminated())
	}
}

func TestSweep_StoppingTaskIsNotDeletedEarly(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	release := make(chan struct{})
	tk := f.launch(t, task.NewMockBody("ExportTask", func(ctx context.Context, r task.Reporter) error {
		<-release
		return nil
	}))
	require.NoError(t, tk.RequestStop(task.BehaviourDeleteImmediately))
	require.Equal(t, task.StateStopping, tk.State())

	report, err := f.keeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Live)
	assert.Equal(t, 1, f.registry.Len())

	close(release)
	waitDone(t, tk)

	report, err = f.keeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Zero(t, f.registry.Len())
}

func TestSweep_RetentionByCount(t *testing.T) {
	f := newFixture(t, Config{MaxFinished: 2, MaxFailed: 1})

	var finished, crashed []*task.Task
	for i := 0; i < 4; i++ {
		finished = append(finished, f.terminated(t, task.StateFinished))
		crashed = append(crashed, f.terminated(t, task.StateCrashed))
		f.clock.Advance(time.Minute)
	}

	report, err := f.keeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Kept)
	assert.Equal(t, 5, report.Removed)
	// The newest of each kind survive, in registry order
	assert.Equal(t, []uuid.UUID{finished[2].ID(), finished[3].ID(), crashed[3].ID()}, f.ids())

	reasons := f.emitter.reasons()
	assert.Equal(t, ReasonOverLimit, reasons[finished[0].ID()])
	assert.Equal(t, ReasonOverLimit, reasons[crashed[2].ID()])
}

func TestSweep_RetentionByAge(t *testing.T) {
	f := newFixture(t, Config{FinishedRetention: time.Hour, FailedRetention: 4 * time.Hour})

	oldFinished := f.terminated(t, task.StateFinished)
	oldCrashed := f.terminated(t, task.StateCrashed)
	f.clock.Advance(90 * time.Minute)
	youngFinished := f.terminated(t, task.StateFinished)

	report, err := f.keeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, []uuid.UUID{oldCrashed.ID(), youngFinished.ID()}, f.ids())
	assert.Equal(t, ReasonExpired, f.emitter.reasons()[oldFinished.ID()])

	f.clock.Advance(3 * time.Hour)
	report, err = f.keeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Removed)
	assert.Zero(t, f.registry.Len())
}

func TestSweep_ZeroLimitsKeepEverything(t *testing.T) {
	f := newFixture(t, Config{})

	for i := 0; i < 5; i++ {
		f.terminated(t, task.StateFinished)
		f.clock.Advance(24 * time.Hour)
	}

	report, err := f.keeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Kept)
	assert.Zero(t, report.Removed)
}

// progressingBody reports 40% and then waits to be stopped
func progressingBody() *task.MockRestartableBody {
	return task.NewMockRestartableBody(task.NewMockBody("ExportTask", func(ctx context.Context, r task.Reporter) error {
		r.ReportDetail("page 40")
		if err := r.ReportProgress(40); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	}))
}

func TestSweep_RestartsStoppedTask(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	before := f.terminated(t, task.StateFinished)
	stopped := f.launch(t, progressingBody())
	after := f.terminated(t, task.StateFinished)

	require.Eventually(t, func() bool { return stopped.Progress() == 40 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stopped.RequestStop(task.BehaviourPrepareForRestart))
	waitDone(t, stopped)
	require.Equal(t, task.StateStopped, stopped.State())

	report, err := f.keeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Restarted)

	tasks := f.registry.List()
	require.Len(t, tasks, 3)
	successor := tasks[1]
	t.Cleanup(func() { _ = successor.RequestStop(task.BehaviourDeleteImmediately) })

	assert.Equal(t, before.ID(), tasks[0].ID())
	assert.Equal(t, after.ID(), tasks[2].ID())
	assert.NotEqual(t, stopped.ID(), successor.ID())
	assert.Equal(t, "ExportTask", successor.Kind())
	assert.Equal(t, 40, successor.Progress())
	assert.Equal(t, "page 40", successor.Detail())
	assert.Eventually(t, func() bool { return successor.State() == task.StateWorking }, 2*time.Second, 5*time.Millisecond)

	require.Len(t, f.emitter.events, 1)
	event := f.emitter.events[0]
	assert.Equal(t, events.TypeTaskRestarted, event.Type)
	assert.Equal(t, stopped.ID(), event.TaskID)
	require.NotNil(t, event.SuccessorID)
	assert.Equal(t, successor.ID(), *event.SuccessorID)
	assert.Equal(t, []uuid.UUID{stopped.ID()}, f.sink.forgotten)
}

func TestSweep_StoppedWithoutRestartSupportAgesAsFinished(t *testing.T) {
	f := newFixture(t, Config{MaxFinished: 1})

	tk := f.launch(t, task.NewBlockingMockBody("ExportTask"))
	require.NoError(t, tk.RequestStop(task.BehaviourPrepareForRestart))
	waitDone(t, tk)
	require.Equal(t, task.StateStopped, tk.State())

	report, err := f.keeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Kept: 1}, report)

	f.clock.Advance(time.Second)
	f.terminated(t, task.StateFinished)

	report, err = f.keeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, ReasonOverLimit, f.emitter.reasons()[tk.ID()])
}

func TestSweep_RestartDeferredWhenPoolIsFull(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	var launches atomic.Int32
	var saturated atomic.Bool
	launcher := task.LauncherFunc(func(fn func()) error {
		launches.Add(1)
		if saturated.Load() {
			return task.ErrPoolOverload
		}
		go fn()
		return nil
	})

	tk := f.launch(t, progressingBody(), task.WithLauncher(launcher))
	require.Eventually(t, func() bool { return tk.Progress() == 40 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, tk.RequestStop(task.BehaviourPrepareForRestart))
	waitDone(t, tk)

	saturated.Store(true)
	report, err := f.keeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Kept: 1}, report)
	assert.Equal(t, []uuid.UUID{tk.ID()}, f.ids(), "stopped task should stay for the next sweep")
	assert.Empty(t, f.emitter.events)
	assert.Equal(t, int32(2), launches.Load())

	saturated.Store(false)
	report, err = f.keeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Restarted)

	successor := f.registry.List()[0]
	t.Cleanup(func() { _ = successor.RequestStop(task.BehaviourDeleteImmediately) })
	assert.NotEqual(t, tk.ID(), successor.ID())
}

func TestSweep_CollectsOutputErrors(t *testing.T) {
	f := newFixture(t, Config{MaxFinished: 1})
	sinkErr := errors.New("redis unavailable")
	emitErr := errors.New("kafka unavailable")
	f.sink.err = sinkErr
	f.emitter.err = emitErr

	f.terminated(t, task.StateFinished)
	f.clock.Advance(time.Second)
	f.terminated(t, task.StateFinished)

	report, err := f.keeper.Sweep(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sinkErr)
	assert.ErrorIs(t, err, emitErr)

	// The pass completes despite the failures
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 1, f.registry.Len())
}

func TestNew_Defaults(t *testing.T) {
	keeper := New(task.NewRegistry(discardLogger()), Config{}, nil, nil, discardLogger())

	assert.Equal(t, DefaultConfig().Interval, keeper.config.Interval)
	assert.IsType(t, NopSink{}, keeper.sink)
	assert.IsType(t, events.NopEmitter{}, keeper.emitter)
}

func TestHousekeeper_StartStop(t *testing.T) {
	f := newFixture(t, Config{Interval: 10 * time.Millisecond})
	tk := f.terminated(t, task.StateFinished)
	require.NoError(t, tk.SetBehaviour(task.BehaviourDeleteImmediately))

	f.keeper.Start()
	f.keeper.Start()

	assert.Eventually(t, func() bool { return f.registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return f.sink.sweeps() >= 2 }, 2*time.Second, 10*time.Millisecond)

	f.keeper.Stop()
	sweeps := f.sink.sweeps()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, sweeps, f.sink.sweeps(), "no sweeps after Stop")

	f.keeper.Stop()
}

func TestHousekeeper_RunStopsWithContext(t *testing.T) {
	f := newFixture(t, Config{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.keeper.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return f.sink.sweeps() > 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
