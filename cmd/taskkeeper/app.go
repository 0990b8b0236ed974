package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/digiflow/taskkeeper/internal/config"
	"github.com/digiflow/taskkeeper/internal/events"
	"github.com/digiflow/taskkeeper/internal/housekeeping"
	"github.com/digiflow/taskkeeper/internal/platform/kafka"
	"github.com/digiflow/taskkeeper/internal/platform/postgres"
	"github.com/digiflow/taskkeeper/internal/platform/redis"
	"github.com/digiflow/taskkeeper/internal/platform/sqlite"
	"github.com/digiflow/taskkeeper/internal/service"
	"github.com/digiflow/taskkeeper/internal/service/auth"
	"github.com/digiflow/taskkeeper/internal/store"
	"github.com/digiflow/taskkeeper/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Supervision
	registry    *task.Registry
	pool        *task.WorkerPool
	housekeeper *housekeeping.Housekeeper

	// Outputs; nil when not configured
	history   store.HistoryStore
	progress  *redis.ProgressCache
	publisher *kafka.Publisher

	eventEmitter events.EventEmitter
	jwtService   auth.JWTService
	taskService  service.TaskService
}

// newApplication creates a new application instance with all dependencies
// initialized. On error everything created so far is released again.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		registry: task.NewRegistry(logger),
	}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	var launcher task.Launcher = task.GoLauncher
	if cfg.Pool.Size > 0 {
		poolConfig := task.DefaultWorkerPoolConfig()
		poolConfig.Size = cfg.Pool.Size
		poolConfig.Nonblocking = cfg.Pool.Nonblocking
		app.pool, err = task.NewWorkerPool(poolConfig, logger)
		if err != nil {
			return nil, err
		}
		launcher = app.pool
		logger.Info("task worker pool initialized",
			"size", cfg.Pool.Size,
			"nonblocking", cfg.Pool.Nonblocking)
	}

	app.history, err = openHistory(ctx, cfg.History)
	if err != nil {
		return nil, err
	}

	emitter := events.NewInMemoryEventEmitter(logger)
	if cfg.History.Driver != config.HistoryDriverNone {
		emitter.RegisterHandler(events.NewHistoryRecorder(app.history))
		logger.Info("task history enabled", "driver", cfg.History.Driver)
	}
	if cfg.Kafka.Enabled() {
		app.publisher, err = kafka.NewPublisher(cfg.Kafka, logger)
		if err != nil {
			return nil, err
		}
		emitter.RegisterHandler(app.publisher)
		logger.Info("kafka event publisher enabled", "topic", cfg.Kafka.Topic)
	}
	app.eventEmitter = emitter

	var sink housekeeping.ProgressSink = housekeeping.NopSink{}
	if cfg.Redis.Enabled() {
		app.progress, err = redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		sink = app.progress
		logger.Info("redis progress cache enabled", "address", cfg.Redis.Address)
	}

	app.housekeeper = housekeeping.New(app.registry, housekeepingConfig(cfg.Housekeeping), sink, emitter, logger)

	app.taskService, err = service.NewTaskService(
		app.registry,
		launcher,
		task.NewCatalogNameFormatter(cfg.Names),
		app.history,
		emitter,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize task service: %w", err)
	}

	return app, nil
}

func housekeepingConfig(cfg config.HousekeepingConfig) housekeeping.Config {
	return housekeeping.Config{
		Interval:          cfg.Interval,
		FinishedRetention: cfg.FinishedRetention,
		MaxFinished:       cfg.MaxFinished,
		FailedRetention:   cfg.FailedRetention,
		MaxFailed:         cfg.MaxFailed,
	}
}

// awaitTasks waits until every started task terminated or ctx is done
func (app *application) awaitTasks(ctx context.Context) {
	for _, t := range app.registry.List() {
		if t.State() == task.StateNew {
			continue
		}
		if err := t.Wait(ctx); err != nil {
			app.logger.Warn("task did not stop before shutdown timeout",
				"task_id", t.ID(),
				"task_kind", t.Kind(),
				"state", t.State())
			return
		}
	}
}

// openHistory opens the history store selected by cfg.Driver
func openHistory(ctx context.Context, cfg config.HistoryConfig) (store.HistoryStore, error) {
	switch cfg.Driver {
	case config.HistoryDriverSQLite:
		s, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite history: %w", err)
		}
		return s, nil
	case config.HistoryDriverPostgres:
		db, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres history: %w", err)
		}
		return postgres.NewHistoryStore(db), nil
	case config.HistoryDriverNone, "":
		return store.NopHistoryStore{}, nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
}

// cleanup stops all tasks and releases every resource the application holds
func (app *application) cleanup() {
	if app.housekeeper != nil {
		app.housekeeper.Stop()
	}

	if n, err := app.registry.StopAll(task.BehaviourDeleteImmediately); err != nil {
		app.logger.Error("failed to stop tasks", "error", err)
	} else if n > 0 {
		app.logger.Info("asked running tasks to stop", "count", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()
	app.awaitTasks(ctx)

	if app.pool != nil {
		if err := app.pool.Release(app.config.Server.ShutdownTimeout); err != nil {
			app.logger.Warn("tasks still running after shutdown timeout", "error", err)
		}
	}

	// Record the tasks that terminated on the stop request
	if app.housekeeper != nil {
		if _, err := app.housekeeper.Sweep(ctx); err != nil {
			app.logger.Warn("final sweep failed", "error", err)
		}
	}

	if app.publisher != nil {
		app.publisher.Close()
	}

	var errs []error
	if app.history != nil {
		errs = append(errs, app.history.Close())
	}
	if app.progress != nil {
		errs = append(errs, app.progress.Close())
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error("failed to close stores", "error", err)
	}
}
