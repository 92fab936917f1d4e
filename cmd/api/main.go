package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	_ "github.com/ghuser/inventory/docs/swagger"
	"github.com/ghuser/inventory/migrations/item"
	"github.com/ghuser/inventory/pkg/app"
	"github.com/ghuser/inventory/pkg/cache"
	"github.com/ghuser/inventory/pkg/config"
	"github.com/ghuser/inventory/pkg/database"
	"github.com/ghuser/inventory/pkg/events"
	"github.com/ghuser/inventory/pkg/httpx"
	"github.com/ghuser/inventory/pkg/kafkax"
	"github.com/ghuser/inventory/pkg/logger"
	"github.com/ghuser/inventory/pkg/migrator"
	"github.com/ghuser/inventory/pkg/telemetry"
	itemApi "github.com/ghuser/inventory/services/item/application/api"
	"github.com/ghuser/inventory/services/item/application/consumer"
	appsvcs "github.com/ghuser/inventory/services/item/application/services"
)

// @title					Inventory API
// @version				1.0
// @description			Inventory items service. Creates and updates are applied asynchronously from Kafka.
// @license.name			MIT
// @license.url			https://opensource.org/licenses/MIT
// @host					localhost:8080
// @BasePath				/api
// @schemes				http https
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

	// Telemetry: OTel tracing + metrics
	otelShutdown, metricsHandler, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(context.WithoutCancel(ctx)) //nolint:errcheck

	// Crash reporting: Sentry (optional, log and continue on failure)
	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1) //nolint:gocritic // intentional: startup failure, deferred flushes are best-effort
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

	// The cache is optional: reads fall through to Postgres without it.
	redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn("redis unavailable, item cache disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
		log.Info("redis connected")
	}

	producer := kafkax.NewProducer(kafkax.ProducerConfig{
		Brokers:        cfg.Brokers(),
		ClientID:       cfg.ServiceName,
		PublishTimeout: cfg.KafkaPublishTimeout,
	}, log)
	defer producer.Close() //nolint:errcheck

	// Eager init. Failure is not fatal: the first write request retries lazily.
	go func() {
		if err := producer.Initialize(ctx, cfg.KafkaInitMaxRetries, cfg.KafkaInitRetryDelay); err != nil {
			log.Error("kafka producer unavailable at startup, will retry on first write", "error", err)
		}
	}()

	appConfig := &app.Application{
		Config:   cfg,
		Db:       pool,
		Logger:   log,
		EventBus: eventBus,
		Redis:    redisClient,
		Producer: producer,
	}

	svcs := appsvcs.New(appConfig)

	r := httpx.NewRouter(
		httpx.ServerConfig{
			ServiceName:        cfg.ServiceName,
			IsDevelopment:      cfg.Environment == config.EnvDevelopment,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			RateLimitPerMinute: cfg.HTTPRateLimit,
			RequestTimeout:     cfg.HTTPRequestTimeout,
		},
		logger.Middleware(log),
		logger.Recovery(log),
		telemetry.SentryMiddleware(),
		otelhttp.NewMiddleware(cfg.ServiceName),
	)

	checks := httpx.HealthChecks{
		Database: pool,
		EventBus: eventBus,
		Broker:   producer,
	}
	if redisClient != nil {
		checks.Redis = redisClient
	}
	r.Get("/health", httpx.HealthHandler(checks))
	r.Get("/metrics", metricsHandler.ServeHTTP)
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	registerRoutes(r, svcs, cfg.Environment == config.EnvProduction)

	srv := httpx.NewServer(cfg.HTTPAddr, r, cfg.HTTPRequestTimeout)

	go func() {
		log.Info("server listening", "addr", srv.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	var background sync.WaitGroup
	if cfg.ConsumerEmbedded {
		if err := startConsumer(ctx, &background, appConfig, svcs); err != nil {
			log.Error("failed to start item consumer", "error", err)
			os.Exit(1) //nolint:gocritic
		}
	}

	<-ctx.Done()

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	background.Wait()
	log.Info("server stopped")
}

// registerRoutes mounts all service routes at the root and under /api.
// Add each new service's route function here.
func registerRoutes(r chi.Router, svcs *appsvcs.Services, isProduction bool) {
	itemApi.ItemRoutes(r, svcs, isProduction)
}

// startConsumer runs the item consumer and the cache eviction subscriber
// until ctx is cancelled.
func startConsumer(ctx context.Context, wg *sync.WaitGroup, a *app.Application, svcs *appsvcs.Services) error {
	c, err := consumer.NewFromApp(a)
	if err != nil {
		return err
	}
	if err := consumer.SubscribeApplied(ctx, a.EventBus, svcs.Item, a.Logger); err != nil {
		_ = c.Close()
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.Run(ctx); err != nil {
			a.Logger.Error("item consumer stopped", "error", err)
		}
	}()
	return nil
}
