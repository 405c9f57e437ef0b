package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/leadgen-api/internal/config"
	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/events"
	"github.com/phrazzld/leadgen-api/internal/export"
	"github.com/phrazzld/leadgen-api/internal/generation"
	"github.com/phrazzld/leadgen-api/internal/platform/gemini"
	"github.com/phrazzld/leadgen-api/internal/platform/postgres"
	"github.com/phrazzld/leadgen-api/internal/queue"
	"github.com/phrazzld/leadgen-api/internal/service"
	"github.com/phrazzld/leadgen-api/internal/store"
	"github.com/phrazzld/leadgen-api/internal/store/memory"
	"github.com/phrazzld/leadgen-api/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Infrastructure; nil when the memory backends are selected.
	db    *sql.DB
	redis *redis.Client

	jobStore     store.JobStore
	ownerStore   store.OwnerStore
	defaultOwner *domain.Owner

	producer    queue.Producer
	consumer    queue.Consumer
	memoryQueue *queue.MemoryQueue

	generator    generation.Generator
	eventEmitter *events.InMemoryEventEmitter
	jobService   service.JobService

	workerPool *task.WorkerPool
	monitor    *task.StuckJobMonitor
}

// newApplication creates a new application instance with all dependencies initialized.
// On error, anything already opened is closed before returning.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}
	if err := app.setup(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	logger.Info("application initialized successfully")
	return app, nil
}

// setup wires the application's dependencies in startup order.
func (app *application) setup(ctx context.Context) error {
	cfg := app.config

	if err := app.setupStores(ctx); err != nil {
		return err
	}
	if err := app.ensureDefaultOwner(ctx); err != nil {
		return err
	}
	if err := app.setupQueue(ctx); err != nil {
		return err
	}

	var err error
	app.generator, err = newGenerator(ctx, cfg.Generator, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize generator: %w", err)
	}

	app.eventEmitter = events.NewInMemoryEventEmitter(app.logger)
	app.eventEmitter.RegisterHandler(events.NewLoggingHandler(app.logger))

	exporter := export.NewCSVExporter(app.jobStore, cfg.Export.PageSize, app.logger)
	app.jobService, err = service.NewJobService(app.jobStore, app.producer, exporter, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create job service: %w", err)
	}

	processor := task.NewJobProcessor(app.jobStore, app.generator, app.logger,
		task.WithEventEmitter(app.eventEmitter))
	app.workerPool = task.NewWorkerPool(app.consumer, processor, task.WorkerPoolConfig{
		WorkerCount:  cfg.Task.WorkerCount,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		DrainTimeout: cfg.Server.ShutdownTimeout,
	}, app.logger)
	app.monitor = task.NewStuckJobMonitor(app.jobStore, cfg.Task.StuckJobAge, cfg.Task.StuckCheckInterval, app.logger)
	return nil
}

// setupStores selects the job and owner stores.
func (app *application) setupStores(ctx context.Context) error {
	switch app.config.Database.Driver {
	case "postgres":
		db, err := setupAppDatabase(ctx, app.config.Database, app.logger)
		if err != nil {
			return err
		}
		app.db = db
		app.jobStore = postgres.NewPostgresJobStore(db, app.logger)
		app.ownerStore = postgres.NewPostgresOwnerStore(db, app.logger)
	case "memory":
		app.logger.Warn("using in-memory job store; jobs are lost on restart")
		app.jobStore = memory.NewJobStore()
		app.ownerStore = memory.NewOwnerStore()
	default:
		return fmt.Errorf("unsupported database driver %q", app.config.Database.Driver)
	}
	return nil
}

// ensureDefaultOwner makes sure the owner used for requests without an
// X-Owner-ID header exists.
func (app *application) ensureDefaultOwner(ctx context.Context) error {
	id, err := uuid.Parse(app.config.Owner.DefaultID)
	if err != nil {
		return fmt.Errorf("invalid default owner id: %w", err)
	}
	owner, err := domain.NewOwner(id, app.config.Owner.DefaultEmail, app.config.Owner.DefaultName)
	if err != nil {
		return fmt.Errorf("invalid default owner: %w", err)
	}
	if err := app.ownerStore.EnsureOwner(ctx, owner); err != nil {
		return fmt.Errorf("failed to ensure default owner: %w", err)
	}
	app.defaultOwner = owner
	return nil
}

// setupQueue selects the dispatch transport.
func (app *application) setupQueue(ctx context.Context) error {
	qc := app.config.Queue
	switch qc.Transport {
	case "memory":
		q := queue.NewMemoryQueue(qc.BufferSize, qc.Block, app.logger)
		app.memoryQueue = q
		app.producer = q
		app.consumer = q
	case "redis":
		client, err := queue.NewRedisClient(ctx, qc.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.redis = client
		app.producer = queue.NewRedisProducer(client, qc.Stream, app.logger)
		app.consumer, err = queue.NewRedisConsumer(ctx, client, queue.ConsumerConfig{
			Stream:       qc.Stream,
			Group:        qc.Group,
			Consumer:     qc.Consumer,
			DLQStream:    qc.DLQStream,
			BatchSize:    int64(qc.BatchSize),
			Block:        qc.Block,
			ClaimMinIdle: qc.ClaimMinIdle,
			MaxAttempts:  qc.MaxAttempts,
		}, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create redis consumer: %w", err)
		}
	default:
		return fmt.Errorf("unsupported queue transport %q", qc.Transport)
	}
	return nil
}

// newGenerator builds the configured lead generation strategy.
func newGenerator(ctx context.Context, cfg config.GeneratorConfig, logger *slog.Logger) (generation.Generator, error) {
	switch cfg.Kind {
	case "placeholder":
		return generation.Placeholder{}, nil
	case "sample":
		return generation.Sample{}, nil
	case "gemini":
		return gemini.NewGenerator(ctx, logger.With("component", "gemini_generator"), cfg)
	default:
		return nil, fmt.Errorf("unsupported generator kind %q", cfg.Kind)
	}
}

// Run listens on the configured port and serves until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", app.config.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return app.serve(ctx, ln)
}

// serve runs the HTTP server, worker pool and stuck job monitor until ctx is
// cancelled or one of them fails.
func (app *application) serve(ctx context.Context, ln net.Listener) error {
	if app.config.Task.RecoverPending {
		if _, err := task.RecoverPending(ctx, app.jobStore, app.producer,
			app.config.Task.RecoverPendingAfter, app.logger); err != nil {
			app.logger.Error("pending job recovery failed", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.serveHTTP(gctx, ln, app.setupRouter()) })
	g.Go(func() error { return app.workerPool.Run(gctx) })
	g.Go(func() error { return app.monitor.Run(gctx) })

	return g.Wait()
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.memoryQueue != nil {
		app.memoryQueue.Close()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}
