package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/inventory/migrations/item"
	"github.com/ghuser/inventory/pkg/app"
	"github.com/ghuser/inventory/pkg/cache"
	"github.com/ghuser/inventory/pkg/config"
	"github.com/ghuser/inventory/pkg/database"
	"github.com/ghuser/inventory/pkg/events"
	"github.com/ghuser/inventory/pkg/httpx"
	"github.com/ghuser/inventory/pkg/logger"
	"github.com/ghuser/inventory/pkg/migrator"
	"github.com/ghuser/inventory/pkg/telemetry"
	"github.com/ghuser/inventory/services/item/application/consumer"
	appsvcs "github.com/ghuser/inventory/services/item/application/services"
)

// The worker applies item events without serving HTTP. Run it with
// CONSUMER_EMBEDDED=false on the API instances.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := config.ValidateForProduction(cfg); err != nil {
		slog.Error("production config validation failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, metricsHandler, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(context.WithoutCancel(ctx)) //nolint:errcheck

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer pool.Close() //nolint:errcheck
	log.Info("database pool connected")

	if cfg.DatabaseMigrateOnStart {
		if err := migrator.Up(ctx, pool.DB(), item.FS); err != nil {
			log.Error("failed to apply migrations", "error", err)
			os.Exit(1) //nolint:gocritic
		}
	}

	eventBus, err := events.NewEventBus(cfg, log)
	if err != nil {
		log.Error("failed to setup event bus", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer eventBus.Close() //nolint:errcheck

	redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn("redis unavailable, cache eviction disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
		log.Info("redis connected")
	}

	appConfig := &app.Application{
		Config:   cfg,
		Db:       pool,
		Logger:   log,
		EventBus: eventBus,
		Redis:    redisClient,
	}

	c, err := consumer.NewFromApp(appConfig)
	if err != nil {
		log.Error("failed to subscribe to item topics", "error", err)
		os.Exit(1) //nolint:gocritic
	}

	// The worker never publishes to Kafka; only the read service is used,
	// to evict cache entries of applied items.
	svcs := appsvcs.New(appConfig)
	if err := consumer.SubscribeApplied(ctx, eventBus, svcs.Item, log); err != nil {
		_ = c.Close()
		log.Error("failed to register subscribers", "error", err)
		os.Exit(1) //nolint:gocritic
	}

	checks := httpx.HealthChecks{Database: pool, EventBus: eventBus}
	if redisClient != nil {
		checks.Redis = redisClient
	}
	ops := opsServer(cfg.WorkerMetricsAddr, metricsHandler, checks)
	go func() {
		log.Info("worker ops server listening", "addr", ops.Addr)
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("worker ops server error", "error", err)
		}
	}()

	if err := c.Run(ctx); err != nil {
		log.Error("item consumer stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ops.Shutdown(shutdownCtx)

	// EventBus.Close() (via defer) waits up to 30s for in-flight handlers.
	log.Info("worker stopped")
}

// opsServer exposes metrics and health for the worker. It carries no item routes.
func opsServer(addr string, metrics http.Handler, checks httpx.HealthChecks) *http.Server {
	r := chi.NewRouter()
	r.Get("/health", httpx.HealthHandler(checks))
	r.Handle("/metrics", metrics)
	return httpx.NewServer(addr, r, 10*time.Second)
}
