package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/digiflow/taskkeeper/internal/events"
	"github.com/digiflow/taskkeeper/internal/platform/logger"
	"github.com/digiflow/taskkeeper/internal/task"
	"github.com/google/uuid"
)

// Reasons recorded on removal events
const (
	ReasonDeleteImmediately = "delete_immediately"
	ReasonExpired           = "expired"
	ReasonOverLimit         = "over_limit"
)

// Config controls the sweep. A zero retention or count means no limit of
// that kind; a finished task then stays until the other limit removes it.
type Config struct {
	// Interval is the time between two sweeps of Run
	Interval time.Duration

	// FinishedRetention is how long finished tasks stay visible
	FinishedRetention time.Duration

	// MaxFinished is how many finished tasks stay visible, newest first
	MaxFinished int

	// FailedRetention is how long crashed tasks stay visible
	FailedRetention time.Duration

	// MaxFailed is how many crashed tasks stay visible, newest first
	MaxFailed int
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		Interval:          5 * time.Second,
		FinishedRetention: time.Hour,
		MaxFinished:       3,
		FailedRetention:   4 * time.Hour,
		MaxFailed:         10,
	}
}

// ProgressSink receives the snapshots of all visible tasks after each sweep
// and is told when a task leaves the registry.
type ProgressSink interface {
	Publish(ctx context.Context, snapshots []task.Snapshot) error
	Forget(ctx context.Context, id uuid.UUID) error
}

// NopSink is the ProgressSink used when no progress cache is configured
type NopSink struct{}

// Publish implements ProgressSink
func (NopSink) Publish(context.Context, []task.Snapshot) error { return nil }

// Forget implements ProgressSink
func (NopSink) Forget(context.Context, uuid.UUID) error { return nil }

// Report summarises one sweep
type Report struct {
	Live      int `json:"live"`
	Kept      int `json:"kept"`
	Removed   int `json:"removed"`
	Restarted int `json:"restarted"`
}

// Housekeeper sweeps a task registry
type Housekeeper struct {
	registry *task.Registry
	config   Config
	sink     ProgressSink
	emitter  events.EventEmitter
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a Housekeeper. A nil sink or emitter disables that output.
func New(
	registry *task.Registry,
	config Config,
	sink ProgressSink,
	emitter events.EventEmitter,
	logger *slog.Logger,
) *Housekeeper {
	if sink == nil {
		sink = NopSink{}
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Housekeeper{
		registry: registry,
		config:   config,
		sink:     sink,
		emitter:  emitter,
		logger:   logger.With("component", "housekeeper"),
	}
}

type expiryCandidate struct {
	task    *task.Task
	snap    task.Snapshot
	deadFor time.Duration
}

// Sweep makes one pass over the registry. Failures to emit events or to
// publish progress are collected and returned; they never stop the pass.
func (h *Housekeeper) Sweep(ctx context.Context) (Report, error) {
	ctx = logger.WithLogger(ctx, h.logger)

	var (
		report   Report
		errs     []error
		finished []expiryCandidate
		failed   []expiryCandidate
	)

	for _, t := range h.registry.List() {
		snap := t.Snapshot()

		switch {
		case !snap.State.IsTerminal():
			report.Live++

		case snap.Behaviour == task.BehaviourDeleteImmediately:
			if err := h.remove(ctx, t, snap, ReasonDeleteImmediately); err != nil {
				errs = append(errs, err)
			}
			report.Removed++

		case snap.State == task.StateStopped && snap.Behaviour == task.BehaviourPrepareForRestart:
			outcome, err := h.restart(ctx, t, snap)
			if err != nil {
				errs = append(errs, err)
			}
			switch outcome {
			case restarted:
				report.Restarted++
				continue
			case deferred:
				report.Kept++
				continue
			}
			// Bodies that cannot be restarted age like finished tasks
			finished = append(finished, newCandidate(t, snap))

		case snap.State == task.StateCrashed:
			failed = append(failed, newCandidate(t, snap))

		default:
			finished = append(finished, newCandidate(t, snap))
		}
	}

	kept, removed, expireErrs := h.expire(ctx, finished, h.config.FinishedRetention, h.config.MaxFinished)
	report.Kept += kept
	report.Removed += removed
	errs = append(errs, expireErrs...)

	kept, removed, expireErrs = h.expire(ctx, failed, h.config.FailedRetention, h.config.MaxFailed)
	report.Kept += kept
	report.Removed += removed
	errs = append(errs, expireErrs...)

	if err := h.sink.Publish(ctx, h.registry.Snapshots()); err != nil {
		errs = append(errs, fmt.Errorf("failed to publish task progress: %w", err))
	}

	if report.Removed > 0 || report.Restarted > 0 {
		h.logger.Info("sweep finished",
			"live", report.Live,
			"kept", report.Kept,
			"removed", report.Removed,
			"restarted", report.Restarted)
	}

	return report, errors.Join(errs...)
}

func newCandidate(t *task.Task, snap task.Snapshot) expiryCandidate {
	deadFor, _ := t.TimeSinceTermination()
	return expiryCandidate{task: t, snap: snap, deadFor: deadFor}
}

// expire keeps the youngest candidates within the age and count limits
func (h *Housekeeper) expire(
	ctx context.Context,
	candidates []expiryCandidate,
	retention time.Duration,
	limit int,
) (kept, removed int, errs []error) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].deadFor < candidates[j].deadFor
	})

	for i, c := range candidates {
		var reason string
		switch {
		case retention > 0 && c.deadFor > retention:
			reason = ReasonExpired
		case limit > 0 && i >= limit:
			reason = ReasonOverLimit
		default:
			kept++
			continue
		}

		if err := h.remove(ctx, c.task, c.snap, reason); err != nil {
			errs = append(errs, err)
		}
		removed++
	}
	return kept, removed, errs
}

func (h *Housekeeper) remove(ctx context.Context, t *task.Task, snap task.Snapshot, reason string) error {
	if err := h.registry.Remove(t.ID()); err != nil {
		// Removed concurrently, e.g. by an operator
		if errors.Is(err, task.ErrTaskNotFound) {
			return nil
		}
		return err
	}

	h.logger.Debug("task removed",
		"task_id", snap.ID,
		"task_kind", snap.Kind,
		"state", snap.State,
		"reason", reason)

	var errs []error
	if err := h.sink.Forget(ctx, snap.ID); err != nil {
		errs = append(errs, fmt.Errorf("failed to forget progress of task %s: %w", snap.ID, err))
	}
	event := events.NewTaskEvent(events.TypeTaskRemoved, snap).WithReason(reason)
	if err := h.emitter.EmitEvent(ctx, event); err != nil {
		errs = append(errs, fmt.Errorf("failed to emit removal of task %s: %w", snap.ID, err))
	}
	return errors.Join(errs...)
}

type restartOutcome int

const (
	// notRestarted: the task ages like a finished one
	notRestarted restartOutcome = iota
	// restarted: the successor runs in place of the task
	restarted
	// deferred: the task stays as is and the next sweep tries again
	deferred
)

// restart replaces t by a started successor
func (h *Housekeeper) restart(ctx context.Context, t *task.Task, snap task.Snapshot) (restartOutcome, error) {
	successor, err := task.Successor(t)
	if errors.Is(err, task.ErrNotRestartable) {
		return notRestarted, nil
	}
	if err != nil {
		return notRestarted, err
	}

	if err := h.registry.Replace(t.ID(), successor); err != nil {
		return notRestarted, fmt.Errorf("failed to replace task %s: %w", t.ID(), err)
	}

	if err := successor.Start(); err != nil {
		// Put the stopped task back so the next sweep can retry
		if rerr := h.registry.Replace(successor.ID(), t); rerr != nil {
			return notRestarted, errors.Join(err, rerr)
		}
		if errors.Is(err, task.ErrPoolOverload) {
			h.logger.Warn("no worker free to restart task, retrying on next sweep", "task_id", t.ID())
			return deferred, nil
		}
		return deferred, fmt.Errorf("failed to start successor of task %s: %w", t.ID(), err)
	}

	h.logger.Info("task restarted",
		"task_id", snap.ID,
		"task_kind", snap.Kind,
		"successor_id", successor.ID(),
		"progress", snap.Progress)

	var errs []error
	if err := h.sink.Forget(ctx, snap.ID); err != nil {
		errs = append(errs, fmt.Errorf("failed to forget progress of task %s: %w", snap.ID, err))
	}
	event := events.NewTaskEvent(events.TypeTaskRestarted, snap).WithSuccessor(successor.ID())
	if err := h.emitter.EmitEvent(ctx, event); err != nil {
		errs = append(errs, fmt.Errorf("failed to emit restart of task %s: %w", snap.ID, err))
	}
	return restarted, errors.Join(errs...)
}

// Run sweeps every Interval until ctx is cancelled. Sweep errors are logged.
func (h *Housekeeper) Run(ctx context.Context) {
	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Context cancelled, stop sweeping
			return

		case <-ticker.C:
			if _, err := h.Sweep(ctx); err != nil {
				h.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// Start runs the sweep loop in the background until Stop is called
func (h *Housekeeper) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.running = true

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.Run(ctx)
	}()
	h.logger.Info("housekeeper started", "interval", h.config.Interval)
}

// Stop ends the sweep loop and waits for a running sweep to finish
func (h *Housekeeper) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.cancel()
	h.running = false
	h.mu.Unlock()

	h.wg.Wait()
	h.logger.Info("housekeeper stopped")
}
