package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/catalog-api/internal/config"
	"github.com/phrazzld/catalog-api/internal/platform/postgres"
	"github.com/phrazzld/catalog-api/internal/platform/rediscache"
	"github.com/phrazzld/catalog-api/internal/service"
	"github.com/phrazzld/catalog-api/internal/store"
	"github.com/phrazzld/catalog-api/internal/task"
	"github.com/phrazzld/catalog-api/internal/webhook"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *redis.Client

	jobStore     store.JobStore
	outcomeStore store.OutcomeStore
	productStore store.ProductStore
	webhookStore store.WebhookStore
	taskStore    task.TaskStore

	progressCache *rediscache.ProgressCache
	dispatcher    *webhook.Dispatcher
	taskRunner    *task.TaskRunner

	ingestionService service.IngestionService
	webhookService   service.WebhookService
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger,
// and database connection that must be established before initialization.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Redis mirrors job progress for cheap status polls. The cache is
	// advisory: a failed connection degrades polling freshness, nothing
	// else, so a ping failure logs a warning instead of aborting.
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	app.redis = redis.NewClient(redisOpts)
	if err := app.redis.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, progress polls fall back to the database", "error", err)
	}
	app.progressCache = rediscache.NewProgressCache(app.redis, logger)

	// Stores
	app.jobStore = postgres.NewPostgresJobStore(db)
	app.outcomeStore = postgres.NewPostgresOutcomeStore(db)
	app.productStore = postgres.NewPostgresProductStore(db)
	app.webhookStore = postgres.NewPostgresWebhookStore(db)
	app.taskStore = postgres.NewPostgresTaskStore(db)

	// Webhook dispatcher
	app.dispatcher = webhook.NewDispatcher(
		app.webhookStore,
		cfg.Webhook.Timeout,
		cfg.Webhook.MaxAttempts,
		logger,
	)

	// Task factory and runner
	taskFactory := task.NewTaskFactory(
		store.NewTransactor(db),
		app.jobStore,
		app.outcomeStore,
		app.productStore,
		app.progressCache,
		app.dispatcher,
		task.TaskFactoryConfig{
			ImportBatchSize: cfg.Ingest.BatchSize,
			DeleteBatchSize: cfg.Ingest.DeleteBatchSize,
		},
		logger,
	)

	app.taskRunner = task.NewTaskRunner(app.taskStore, taskFactory, task.TaskRunnerConfig{
		WorkerCount:        cfg.Queue.WorkerCount,
		QueueSize:          cfg.Queue.QueueSize,
		LeaseTimeout:       cfg.Queue.LeaseTimeout,
		LeaseCheckInterval: cfg.Queue.LeaseCheckInterval,
	}, logger)

	if err := app.taskRunner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task runner: %w", err)
	}

	// Upload spool directory
	if err := os.MkdirAll(cfg.Ingest.UploadDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	// Services
	app.ingestionService, err = service.NewIngestionService(
		app.jobStore,
		app.outcomeStore,
		app.productStore,
		app.taskRunner,
		taskFactory,
		app.progressCache,
		cfg.Ingest.UploadDir,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestion service: %w", err)
	}

	app.webhookService, err = service.NewWebhookService(app.webhookStore, app.dispatcher, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook service: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Error closing redis connection", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
