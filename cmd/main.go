/**
 * @description
 * This is the main entry point for the admin-service, the operator console backend for
 * the agent-funded ledger. It wires configuration, the Postgres ledger store, the live
 * collection feed, the session gate, the decision service and the HTTP API, then serves
 * until a termination signal arrives.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5: Postgres connection pool.
 * - github.com/redis/go-redis/v9: Cross-instance action locks.
 * - github.com/prometheus/client_golang: Service metrics.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/admin-service/internal/api"
	"github.com/transfa/admin-service/internal/app"
	"github.com/transfa/admin-service/internal/config"
	"github.com/transfa/admin-service/internal/engine"
	"github.com/transfa/admin-service/internal/live"
	"github.com/transfa/admin-service/internal/session"
	"github.com/transfa/admin-service/internal/store"
	"github.com/transfa/admin-service/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, relying on environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("admin-service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("unable to parse database URL: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to prevent conflicts behind poolers
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	repository := store.NewPostgresRepository(dbpool)
	if err := repository.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := app.NewMetrics(registry)

	locks := newActionLocker(cfg, logger)
	if closer, ok := locks.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// Identifies this process on the broker: its own queue and its own messages.
	instanceID := uuid.NewString()

	var publisher rabbitmq.Publisher
	if cfg.RabbitMQURL == "" {
		logger.Warn("RABBITMQ_URL not set; ledger events will only be logged")
		publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	} else {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.LedgerExchange, instanceID, logger)
		if err != nil {
			logger.Warn("rabbitmq producer unavailable; ledger events will only be logged", "error", err)
			publisher = &rabbitmq.EventProducerFallback{Logger: logger}
		} else {
			publisher = producer
		}
	}
	defer publisher.Close()

	feed := live.NewFeed(repository, logger)

	// Other writers to the ledger announce changes on the exchange; reload on each.
	if cfg.RabbitMQURL != "" {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, instanceID, logger)
		if err != nil {
			logger.Warn("rabbitmq consumer unavailable; relying on scheduled resync", "error", err)
		} else {
			defer consumer.Close()
			if err := consumer.ConsumeWithBindings(cfg.LedgerExchange, rabbitmq.InstanceQueueName(cfg.LedgerChangeQueue, instanceID), rabbitmq.CollectionBindings(feed.HandleChangeMessage)); err != nil {
				logger.Warn("ledger change consumer failed to start", "error", err)
			}
		}
	}

	gate, err := session.NewGate(feed, session.Config{
		Secret:       []byte(cfg.SessionSecret),
		TTL:          cfg.SessionTTL(),
		PasswordHash: cfg.AdminPasswordHash,
	}, logger)
	if err != nil {
		return err
	}
	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set; any password opens the console")
	}
	defer gate.Logout()

	service := app.NewService(app.Options{
		Repo:         repository,
		Engine:       engine.New(),
		Snapshots:    gate,
		Notifier:     feed,
		Publisher:    publisher,
		Locks:        locks,
		Metrics:      metrics,
		Logger:       logger,
		WriteTimeout: cfg.StoreWriteTimeout(),
	})

	scheduler := app.NewScheduler(feed, cfg.ResyncSchedule, metrics, logger)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start resync scheduler: %w", err)
	}

	handlers := api.NewAdminHandlers(gate, service, logger)
	router := api.AdminRoutes(handlers, registry, cfg.AllowedOrigins())

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("admin-service listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		logger.Info("shutdown started")
	case err := <-serveErr:
		if err != nil {
			<-scheduler.Stop().Done()
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	<-scheduler.Stop().Done()

	logger.Info("shutdown complete")
	return nil
}

// newActionLocker returns a Redis-backed locker when Redis is reachable and an
// in-process one otherwise.
func newActionLocker(cfg config.Config, logger *slog.Logger) app.ActionLocker {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Info("redis url missing; using in-process action locks")
		return app.NewLocalActionLock()
	}
	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; using in-process action locks", "error", err)
		return app.NewLocalActionLock()
	}
	client := redis.NewClient(redisOptions)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; using in-process action locks", "error", err)
		client.Close()
		return app.NewLocalActionLock()
	}
	logger.Info("redis connected")
	return &closingLocker{RedisActionLock: app.NewRedisActionLock(client, cfg.RedisLockPrefix, cfg.ActionLockTTL()), client: client}
}

type closingLocker struct {
	*app.RedisActionLock
	client *redis.Client
}

func (c *closingLocker) Close() error {
	return c.client.Close()
}
