// Package app wires the application dependencies into a container shared
// by the CLI and tests. The worker does its own wiring because it also
// owns the event consumer and the queue poller lifecycle.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/calloutapp/callout/internal/automation/application/services"
	"github.com/calloutapp/callout/internal/automation/application/subscribers"
	automation "github.com/calloutapp/callout/internal/automation/domain"
	"github.com/calloutapp/callout/internal/automation/infrastructure/dedup"
	autopersistence "github.com/calloutapp/callout/internal/automation/infrastructure/persistence"
	"github.com/calloutapp/callout/internal/channels"
	fieldops "github.com/calloutapp/callout/internal/fieldops/domain"
	fieldpersistence "github.com/calloutapp/callout/internal/fieldops/infrastructure/persistence"
	"github.com/calloutapp/callout/internal/shared/infrastructure/eventbus"
	"github.com/calloutapp/callout/internal/shared/infrastructure/migrations"
	"github.com/calloutapp/callout/pkg/config"
)

// Container holds the application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database (exactly one of these is set)
	DB       *pgxpool.Pool
	SQLiteDB *sql.DB

	// Redis, nil when unavailable in development
	RedisClient *redis.Client

	// Repositories
	Rules automation.RuleRepository
	Logs  automation.ExecutionLogRepository
	Queue automation.QueuedActionRepository

	// Field-service access
	Loader fieldops.EntityLoader

	// Engine
	Dispatcher     *services.Dispatcher
	Fallback       *services.FallbackController
	Executor       *services.Executor
	ContextBuilder subscribers.ContextBuilder

	// Bus delivers trigger events to the engine synchronously and
	// carries execution outcomes back out, all within this process.
	Bus *eventbus.InProcessEventBus
}

// NewContainer initializes all application dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	var (
		taskStore fieldops.TaskStore
		jobStore  fieldops.JobStore
		noteStore fieldops.NoteStore
	)

	if cfg.SQLitePath != "" {
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run sqlite migrations: %w", err)
		}
		c.SQLiteDB = db

		c.Rules = autopersistence.NewSQLiteRuleRepository(db)
		c.Logs = autopersistence.NewSQLiteExecutionRepository(db)
		c.Queue = autopersistence.NewSQLiteQueueRepository(db)

		store := fieldpersistence.NewSQLiteStore(db)
		taskStore, jobStore, noteStore, c.Loader = store, store, store, store
	} else {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		c.DB = pool

		c.Rules = autopersistence.NewPostgresRuleRepository(pool)
		c.Logs = autopersistence.NewPostgresExecutionRepository(pool)
		c.Queue = autopersistence.NewPostgresQueueRepository(pool)

		store := fieldpersistence.NewPostgresStore(pool)
		taskStore, jobStore, noteStore, c.Loader = store, store, store, store
	}

	var locker services.FiringLocker = dedup.NewMemoryLocker()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			if !cfg.IsDevelopment() {
				c.Close()
				return nil, fmt.Errorf("failed to connect to redis: %w", err)
			}
			logger.Warn("redis not available, using in-process firing dedup", "error", err)
		} else {
			c.RedisClient = client
			locker = dedup.NewRedisLocker(client)
		}
	}

	breakerCfg := channels.DefaultBreakerConfig()
	sms := channels.NewResilientSMS(channels.NewTwilioSMS(channels.TwilioConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		From:       cfg.TwilioFromNumber,
	}), breakerCfg, logger)
	email := channels.NewResilientEmail(channels.NewSendGridEmail(channels.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}), breakerCfg, logger)

	c.Dispatcher = services.NewDispatcher(sms, email, taskStore, jobStore, noteStore, logger)
	c.Fallback = services.NewFallbackController(c.Dispatcher, c.Queue, logger)
	c.Executor = services.NewExecutor(c.Rules, c.Logs, c.Queue, c.Dispatcher, c.Fallback, locker, logger)
	c.ContextBuilder = subscribers.NewEntityContextBuilder(c.Loader)

	c.Bus = eventbus.NewInProcessEventBus(logger)
	c.Bus.RegisterConsumer(subscribers.NewTriggerSubscriber(c.Rules, c.Executor, c.ContextBuilder, automation.KnownTriggerTypes(), logger))
	c.Executor.SetPublisher(c.Bus)

	return c, nil
}

// Close releases all container resources.
func (c *Container) Close() {
	if c.RedisClient != nil {
		_ = c.RedisClient.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
	if c.SQLiteDB != nil {
		_ = c.SQLiteDB.Close()
	}
}
