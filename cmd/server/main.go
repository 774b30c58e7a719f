package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/sappyoak/sappyoak-site-functions/common/id"
	"github.com/sappyoak/sappyoak-site-functions/common/logger"
	"github.com/sappyoak/sappyoak-site-functions/common/otel"
	"github.com/sappyoak/sappyoak-site-functions/core/config"
	"github.com/sappyoak/sappyoak-site-functions/core/db"
	"github.com/sappyoak/sappyoak-site-functions/internal/http/handler"
	"github.com/sappyoak/sappyoak-site-functions/internal/http/handler/webhook"
	"github.com/sappyoak/sappyoak-site-functions/internal/http/middleware"
	httprouter "github.com/sappyoak/sappyoak-site-functions/internal/http/router"
	"github.com/sappyoak/sappyoak-site-functions/internal/mapper"
	"github.com/sappyoak/sappyoak-site-functions/internal/metrics"
	"github.com/sappyoak/sappyoak-site-functions/internal/queue"
	"github.com/sappyoak/sappyoak-site-functions/internal/realtime"
	"github.com/sappyoak/sappyoak-site-functions/internal/service"
	"github.com/sappyoak/sappyoak-site-functions/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// The production log handler reads the global OTel logger provider.
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "activity feed server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(id.NodeServer); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	if err := store.EnsureSchema(ctx, database.Querier(), cfg.Feed.TableName); err != nil {
		slog.ErrorContext(ctx, "failed to ensure feed schema", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "database connected", "table", cfg.Feed.TableName)

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.QueueName)

	producer := queue.NewRedisProducer(redisClient, cfg.Pipeline.QueueName, slog.Default())

	feedStore := store.WithCircuitBreaker(
		store.NewFeedRecordStore(database.Querier(), cfg.Feed.TableName),
		store.DefaultBreakerConfig(),
	)

	ingest := service.NewActivityIngestService(service.ActivityIngestConfig{
		WebhookSecret: cfg.GitHub.WebhookSecret,
		TrustedSender: cfg.GitHub.TrustedSender,
		PartitionKey:  cfg.Feed.PartitionKey,
	}, mapper.NewGitHubActivityMapper(), producer, slog.Default())

	reader := service.NewFeedReader(feedStore, service.FeedReaderConfig{
		PartitionKey:    cfg.Feed.PartitionKey,
		DefaultPageSize: cfg.Feed.DefaultPageSize,
		MaxPageSize:     cfg.Feed.MaxPageSize,
		MaxFetchAll:     cfg.Feed.MaxFetchAll,
	}, slog.Default())

	hub := realtime.NewHub(slog.Default())
	metrics.RegisterLiveClients(hub.ClientCount)
	go hub.Run(ctx)

	subscriber := realtime.NewSubscriber(redisClient, cfg.Pipeline.BroadcastTopic, hub, slog.Default())
	go func() {
		if err := subscriber.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "live feed subscriber stopped", "error", err)
		}
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, httprouter.Handlers{
		GitHub: webhook.NewGitHubWebhookHandler(ingest, cfg.GitHub.MaxPayloadSize),
		Feed:   handler.NewFeedHandler(reader),
		Live:   handler.NewLiveHandler(hub, nil),
		Schema: handler.NewSchemaHandler(),
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	// Stops the hub and the subscriber.
	cancel()

	// Closes the shared redis client.
	if err := producer.Close(); err != nil {
		slog.ErrorContext(shutdownCtx, "redis close error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, handlers httprouter.Handlers) *gin.Engine {
	router := gin.New()

	// Span first so recovery and request logs carry the trace id.
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger("/health", "/metrics"))

	httprouter.SetupRoutes(router, handlers, httprouter.RouterConfig{
		WebhookRPS:   cfg.GitHub.WebhookRPS,
		WebhookBurst: cfg.GitHub.WebhookBurst,
	})

	return router
}

const banner = `
  activity feed : server
  github webhooks -> redis stream -> postgres feed
`
