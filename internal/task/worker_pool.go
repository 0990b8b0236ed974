package task

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
)

// ErrPoolOverload is returned by Start when a bounded launcher has no free worker
var ErrPoolOverload = errors.New("task pool is saturated")

// Launcher schedules the goroutine a task body runs on
type Launcher interface {
	Launch(fn func()) error
}

// LauncherFunc adapts a function to the Launcher interface
type LauncherFunc func(fn func()) error

// Launch calls f(fn)
func (f LauncherFunc) Launch(fn func()) error {
	return f(fn)
}

// GoLauncher runs every body on a fresh goroutine
var GoLauncher Launcher = LauncherFunc(func(fn func()) error {
	go fn()
	return nil
})

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// Size is the maximum number of task bodies running at the same time.
	// If zero or negative, defaults to 1
	Size int

	// Nonblocking makes Start fail with ErrPoolOverload instead of waiting
	// for a free worker
	Nonblocking bool

	// MaxBlockingTasks limits how many Start calls may wait for a worker in
	// blocking mode. Zero means no limit
	MaxBlockingTasks int

	// ExpiryDuration is how long an idle worker goroutine is kept
	ExpiryDuration time.Duration
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Size:           8,
		Nonblocking:    true,
		ExpiryDuration: 10 * time.Second,
	}
}

// WorkerPool bounds the number of concurrently running task bodies. Each
// body still runs on its own goroutine; the pool only limits how many.
type WorkerPool struct {
	pool   *ants.Pool
	logger *slog.Logger
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(config WorkerPoolConfig, logger *slog.Logger) (*WorkerPool, error) {
	size := config.Size
	if size <= 0 {
		size = 1
		logger.Warn("invalid worker pool size specified, using default",
			"specified_size", config.Size,
			"default_size", 1)
	}

	p := &WorkerPool{logger: logger.With("component", "task_worker_pool")}

	pool, err := ants.NewPool(size, ants.WithOptions(ants.Options{
		ExpiryDuration:   config.ExpiryDuration,
		MaxBlockingTasks: config.MaxBlockingTasks,
		Nonblocking:      config.Nonblocking,
		// Task.run recovers panics of the body itself; this only fires if
		// the supervision wrapper itself panics.
		PanicHandler: func(v any) {
			p.logger.Error("task worker panicked", "panic", v)
		},
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	p.pool = pool

	return p, nil
}

// Launch implements Launcher
func (p *WorkerPool) Launch(fn func()) error {
	if err := p.pool.Submit(fn); err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("%w: %d of %d workers busy", ErrPoolOverload, p.pool.Running(), p.pool.Cap())
		}
		return fmt.Errorf("failed to submit task to worker pool: %w", err)
	}
	return nil
}

// Running returns the number of busy workers
func (p *WorkerPool) Running() int {
	return p.pool.Running()
}

// Cap returns the pool size
func (p *WorkerPool) Cap() int {
	return p.pool.Cap()
}

// Release shuts the pool down, waiting up to timeout for running bodies to return
func (p *WorkerPool) Release(timeout time.Duration) error {
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("failed to release worker pool: %w", err)
	}
	p.logger.Info("task worker pool released")
	return nil
}
