package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	automation "github.com/calloutapp/callout/internal/automation/domain"
	autopersistence "github.com/calloutapp/callout/internal/automation/infrastructure/persistence"
	fieldops "github.com/calloutapp/callout/internal/fieldops/domain"
	fieldpersistence "github.com/calloutapp/callout/internal/fieldops/infrastructure/persistence"

	"github.com/calloutapp/callout/internal/automation/application/services"
	"github.com/calloutapp/callout/internal/automation/application/subscribers"
	"github.com/calloutapp/callout/internal/automation/application/workers"
	"github.com/calloutapp/callout/internal/automation/infrastructure/dedup"
	"github.com/calloutapp/callout/internal/channels"
	"github.com/calloutapp/callout/internal/shared/infrastructure/eventbus"
	"github.com/calloutapp/callout/internal/shared/infrastructure/migrations"
	"github.com/calloutapp/callout/pkg/config"
	"github.com/calloutapp/callout/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()

	logger.Info("starting callout automation worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Storage: SQLite for local single-binary mode, Postgres otherwise.
	var (
		ruleRepo  automation.RuleRepository
		logRepo   automation.ExecutionLogRepository
		queueRepo automation.QueuedActionRepository

		taskStore fieldops.TaskStore
		jobStore  fieldops.JobStore
		noteStore fieldops.NoteStore
		loader    fieldops.EntityLoader

		pingDB func(context.Context) error
	)

	if cfg.SQLitePath != "" {
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			logger.Error("failed to open sqlite database", "path", cfg.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
			logger.Error("failed to run sqlite migrations", "error", err)
			os.Exit(1)
		}

		ruleRepo = autopersistence.NewSQLiteRuleRepository(db)
		logRepo = autopersistence.NewSQLiteExecutionRepository(db)
		queueRepo = autopersistence.NewSQLiteQueueRepository(db)

		store := fieldpersistence.NewSQLiteStore(db)
		taskStore, jobStore, noteStore, loader = store, store, store, store
		pingDB = db.PingContext

		logger.Info("using sqlite storage", "path", cfg.SQLitePath)
	} else {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		ruleRepo = autopersistence.NewPostgresRuleRepository(pool)
		logRepo = autopersistence.NewPostgresExecutionRepository(pool)
		queueRepo = autopersistence.NewPostgresQueueRepository(pool)

		store := fieldpersistence.NewPostgresStore(pool)
		taskStore, jobStore, noteStore, loader = store, store, store, store
		pingDB = pool.Ping

		logger.Info("connected to database")
	}

	// Firing deduplication. Without Redis a single-process locker still
	// dedups within this worker; a broken Redis is fatal in production.
	var locker services.FiringLocker = dedup.NewMemoryLocker()
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err = client.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			_ = client.Close()
			if cfg.IsDevelopment() {
				logger.Warn("redis not available, using in-process firing dedup", "error", err)
			} else {
				logger.Error("failed to connect to redis", "error", err)
				os.Exit(1)
			}
		} else {
			defer client.Close()
			redisClient = client
			locker = dedup.NewRedisLocker(client)
			logger.Info("firing dedup enabled")
		}
	}

	// Message providers behind circuit breakers.
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

	dispatcher := services.NewDispatcher(sms, email, taskStore, jobStore, noteStore, logger)
	fallback := services.NewFallbackController(dispatcher, queueRepo, logger)
	executor := services.NewExecutor(ruleRepo, logRepo, queueRepo, dispatcher, fallback, locker, logger)

	metrics := observability.NewInMemoryMetrics()
	executor.SetMetrics(metrics)

	// Execution outcomes go back onto the bus for the field-service app.
	var publisher eventbus.Publisher = eventbus.NewNoopPublisher(logger)
	if pub, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger); err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("RabbitMQ not available, outcome publishing disabled", "error", err)
		} else {
			logger.Error("failed to connect outcome publisher", "error", err)
			os.Exit(1)
		}
	} else {
		publisher = pub
	}
	defer publisher.Close()
	executor.SetPublisher(publisher)

	// Trigger events in, firings out.
	builder := subscribers.NewEntityContextBuilder(loader)
	subscriber := subscribers.NewTriggerSubscriber(ruleRepo, executor, builder, automation.KnownTriggerTypes(), logger)

	consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
		URL:    cfg.RabbitMQURL,
		Logger: logger,
	}, newRegistryWith(subscriber, logger))
	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("RabbitMQ not available, trigger consumption disabled", "error", err)
		} else {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
	} else {
		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("trigger consumer stopped", "error", err)
			}
		}()
		defer consumer.Close()
		logger.Info("trigger consumer started", "triggers", automation.KnownTriggerTypes())
	}

	// Deferred and fallback deliveries.
	poller := workers.NewPoller(queueRepo, dispatcher, workers.PollerConfig{
		PollInterval:     cfg.QueuePollInterval,
		BatchSize:        cfg.QueueBatchSize,
		RetryBackoffBase: cfg.QueueRetryBackoffBase,
		RetryBackoffMax:  cfg.QueueRetryBackoffMax,
	}, logger)
	poller.SetMetrics(metrics)

	if cfg.QueuePollerEnabled {
		if err := poller.Start(ctx); err != nil {
			logger.Error("failed to start queue poller", "error", err)
			os.Exit(1)
		}
		logger.Info("queue poller started",
			"poll_interval", cfg.QueuePollInterval,
			"batch_size", cfg.QueueBatchSize,
		)
	}

	// Retention: old execution logs and delivered queue rows.
	cleanupTicker := time.NewTicker(cfg.QueueCleanupInterval)
	defer cleanupTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-cleanupTicker.C:
				cutoff := time.Now().AddDate(0, 0, -cfg.LogRetentionDays)
				if deleted, err := logRepo.DeleteOlderThan(ctx, cutoff); err != nil {
					logger.Error("execution log cleanup failed", "error", err)
				} else if deleted > 0 {
					logger.Info("execution log cleanup completed", "deleted", deleted, "retention_days", cfg.LogRetentionDays)
				}
				if deleted, err := queueRepo.DeleteExecuted(ctx, cutoff); err != nil {
					logger.Error("queue cleanup failed", "error", err)
				} else if deleted > 0 {
					logger.Info("queue cleanup completed", "deleted", deleted)
				}
			}
		}
	}()

	if cfg.WorkerHealthAddr != "" {
		health := observability.NewHealthRegistry()
		health.Register("database", observability.DatabaseHealthChecker(pingDB))
		if redisClient != nil {
			health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}))
		}
		if cfg.QueuePollerEnabled {
			health.Register("queue_poller", func(_ context.Context) observability.HealthCheckResult {
				if !poller.GetStats().IsRunning {
					return observability.HealthCheckResult{
						Status:  observability.HealthStatusDegraded,
						Message: "queue poller not running",
					}
				}
				return observability.HealthCheckResult{Status: observability.HealthStatusHealthy}
			})
		}

		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			stats := poller.GetStats()
			response := map[string]any{
				"status":            "ok",
				"poller_running":    stats.IsRunning,
				"delivered":         stats.DeliveredCount,
				"failed":            stats.FailedCount,
				"dead":              stats.DeadCount,
				"lag_seconds":       stats.LagSeconds,
				"last_processed_at": stats.LastProcessedAt,
				"last_error_at":     stats.LastErrorAt,
				"last_error":        stats.LastError,
				"counters":          metrics.Counters(),
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(response)
		})

		mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
			checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			overall := health.Check(checkCtx)
			w.Header().Set("Content-Type", "application/json")
			if overall.Status == observability.HealthStatusUnhealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			_ = json.NewEncoder(w).Encode(overall)
		})

		healthSrv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", "error", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := healthSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down worker")

	poller.Stop()
	logger.Info("worker stopped")
}

func newRegistryWith(subscriber eventbus.EventConsumer, logger *slog.Logger) *eventbus.ConsumerRegistry {
	registry := eventbus.NewConsumerRegistry(logger)
	registry.Register(subscriber)
	return registry
}
