package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/phrazzld/quill-api/internal/config"
	"github.com/phrazzld/quill-api/internal/events"
	"github.com/phrazzld/quill-api/internal/platform/broker"
	"github.com/phrazzld/quill-api/internal/platform/mailer"
	"github.com/phrazzld/quill-api/internal/platform/metrics"
	"github.com/phrazzld/quill-api/internal/platform/postgres"
	"github.com/phrazzld/quill-api/internal/platform/rediscache"
	"github.com/phrazzld/quill-api/internal/platform/search"
	"github.com/phrazzld/quill-api/internal/platform/storage"
	"github.com/phrazzld/quill-api/internal/scheduler"
	"github.com/phrazzld/quill-api/internal/service"
	"github.com/phrazzld/quill-api/internal/service/auth"
	"github.com/phrazzld/quill-api/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	jwtService auth.JWTService
	attempts   rediscache.AttemptCounter
	metrics    *metrics.Metrics

	users        *service.UserService
	blogs        *service.BlogService
	comments     *service.CommentService
	interactions *service.InteractionService
	moderation   *service.ModerationService
	tickets      *service.TicketService

	emitter    *events.InMemoryEventEmitter
	taskRunner *task.TaskRunner
	scheduler  *scheduler.Scheduler

	// closers release optional external clients in reverse order on shutdown.
	closers []io.Closer
}

// newApplication creates a new application instance with all dependencies initialized.
// Optional backends (Redis, Elasticsearch, GCS, SMTP, RabbitMQ) fall back to
// in-process implementations when their URL or host is empty.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		slog.Int("token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes))

	stores := service.Stores{
		DB:           db,
		Users:        postgres.NewPostgresUserStore(db, logger),
		Blogs:        postgres.NewPostgresBlogStore(db, logger),
		Comments:     postgres.NewPostgresCommentStore(db, logger),
		Interactions: postgres.NewPostgresInteractionStore(db, logger),
		Reports:      postgres.NewPostgresReportStore(db, logger),
		Tickets:      postgres.NewPostgresTicketStore(db, logger),
	}
	blogStore := stores.Blogs

	cache, err := app.setupCache(ctx)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	index, err := app.setupSearch(ctx, stores)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	uploader, err := app.setupUploader(ctx)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	app.emitter = events.NewInMemoryEventEmitter(logger)
	if err := app.setupBroker(); err != nil {
		app.cleanup()
		return nil, err
	}

	deps := service.Deps{
		Stores:    stores,
		Emitter:   app.emitter,
		Cache:     cache,
		Index:     index,
		Uploader:  uploader,
		Hasher:    auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Tokens:    app.jwtService,
		PublicURL: cfg.Server.PublicURL,
		Logger:    logger,
	}
	if err := app.setupServices(deps); err != nil {
		app.cleanup()
		return nil, err
	}

	mail, err := mailer.New(cfg.Mail, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}

	app.taskRunner, err = app.setupTaskRunner(mail)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to setup task runner: %w", err)
	}

	app.scheduler, err = scheduler.New(blogStore, app.emitter, scheduler.Config{
		PublishSpec:   cfg.Scheduler.PublishSpec,
		ReconcileSpec: cfg.Scheduler.ReconcileSpec,
		BatchSize:     cfg.Scheduler.BatchSize,
		StaleAfter:    time.Duration(cfg.Scheduler.StaleAfterMinutes) * time.Minute,
	}, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	app.scheduler.SetRecorder(app.metrics)
	if err := app.scheduler.Start(); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

func (app *application) setupCache(ctx context.Context) (rediscache.BlogCache, error) {
	window := time.Duration(app.config.RateLimit.AuthWindowSeconds) * time.Second
	limit := app.config.RateLimit.AuthAttempts

	if app.config.Redis.URL == "" {
		app.logger.Info("Redis not configured, using in-memory attempt counters and no blog cache")
		app.attempts = rediscache.NewMemoryCounter(limit, window)
		return rediscache.NoopBlogCache{}, nil
	}

	client, err := rediscache.NewClient(ctx, app.config.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.closers = append(app.closers, client)
	app.attempts = rediscache.NewRedisCounter(client, "quill:attempts", limit, window)

	ttl := time.Duration(app.config.Redis.BlogCacheTTLSeconds) * time.Second
	app.logger.Info("Redis cache enabled", slog.Duration("blog_ttl", ttl))
	return rediscache.NewRedisBlogCache(client, ttl, app.logger), nil
}

func (app *application) setupSearch(ctx context.Context, stores service.Stores) (search.Index, error) {
	if app.config.Search.ElasticsearchURL == "" {
		app.logger.Info("Elasticsearch not configured, searching through the database")
		return search.NewStoreIndex(stores.Blogs), nil
	}

	client, err := search.NewClient(app.config.Search.ElasticsearchURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	index := search.NewElasticIndex(client, app.config.Search.Index, app.logger)
	if err := index.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure search index: %w", err)
	}
	return index, nil
}

func (app *application) setupUploader(ctx context.Context) (storage.Uploader, error) {
	if app.config.Storage.Bucket == "" {
		app.logger.Info("Storage bucket not configured, image uploads disabled")
		return storage.DisabledUploader{}, nil
	}

	uploader, err := storage.NewGCSUploader(ctx, app.config.Storage, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage uploader: %w", err)
	}
	app.closers = append(app.closers, uploader)
	return uploader, nil
}

// setupBroker mirrors every event onto RabbitMQ when a broker URL is set.
// Publishing failures never fail the originating request.
func (app *application) setupBroker() error {
	if app.config.Broker.URL == "" {
		return nil
	}

	publisher, err := broker.Dial(app.config.Broker.URL, app.config.Broker.Exchange, app.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	app.closers = append(app.closers, publisher)
	app.emitter.RegisterHandler(events.BestEffort(publisher, app.logger.With("component", "broker")))
	return nil
}

func (app *application) setupServices(deps service.Deps) error {
	var err error
	if app.users, err = service.NewUserService(deps); err != nil {
		return fmt.Errorf("failed to create user service: %w", err)
	}
	if app.blogs, err = service.NewBlogService(deps); err != nil {
		return fmt.Errorf("failed to create blog service: %w", err)
	}
	if app.comments, err = service.NewCommentService(deps); err != nil {
		return fmt.Errorf("failed to create comment service: %w", err)
	}
	if app.interactions, err = service.NewInteractionService(deps); err != nil {
		return fmt.Errorf("failed to create interaction service: %w", err)
	}
	if app.moderation, err = service.NewModerationService(deps); err != nil {
		return fmt.Errorf("failed to create moderation service: %w", err)
	}
	if app.tickets, err = service.NewTicketService(deps); err != nil {
		return fmt.Errorf("failed to create ticket service: %w", err)
	}
	return nil
}

// setupTaskRunner registers the task factories, connects the emitter to the
// runner and starts the workers.
func (app *application) setupTaskRunner(sender task.EmailSender) (*task.TaskRunner, error) {
	registry := task.NewRegistry()
	registry.Register(events.TaskBlogDelete, task.BlogDeletionTaskFactory(app.blogs, app.logger))
	registry.Register(events.TaskBlogPublish, task.BlogPublishTaskFactory(app.blogs, app.logger))
	registry.Register(events.TaskSearchIndex, task.SearchIndexTaskFactory(app.blogs, app.logger))
	registry.Register(events.TaskEmailSend, task.EmailTaskFactory(sender, app.logger))

	tc := app.config.Task
	runner := task.NewTaskRunner(postgres.NewPostgresTaskStore(app.db, app.logger), registry, task.TaskRunnerConfig{
		WorkerCount:  tc.WorkerCount,
		QueueSize:    tc.QueueSize,
		StuckTaskAge: time.Duration(tc.StuckTaskAgeMinutes) * time.Minute,
		MaxAttempts:  tc.MaxAttempts,
		RetryDelay:   time.Duration(tc.RetryDelaySeconds) * time.Second,
		TaskTimeout:  time.Duration(tc.TimeoutSeconds) * time.Second,
	}, app.logger)
	runner.SetObserver(app.metrics)

	app.emitter.RegisterHandler(task.NewTaskFactoryEventHandler(registry, runner, app.logger))

	if err := runner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task runner: %w", err)
	}
	return runner, nil
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
	if app.scheduler != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout())
		app.scheduler.Stop(ctx)
		cancel()
	}

	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Error("Error closing client", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}

func (app *application) shutdownTimeout() time.Duration {
	return time.Duration(app.config.Server.ShutdownTimeoutSeconds) * time.Second
}
