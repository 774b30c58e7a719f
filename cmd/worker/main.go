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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sappyoak/sappyoak-site-functions/common/id"
	"github.com/sappyoak/sappyoak-site-functions/common/logger"
	"github.com/sappyoak/sappyoak-site-functions/common/otel"
	"github.com/sappyoak/sappyoak-site-functions/core/config"
	"github.com/sappyoak/sappyoak-site-functions/core/db"
	"github.com/sappyoak/sappyoak-site-functions/internal/queue"
	"github.com/sappyoak/sappyoak-site-functions/internal/realtime"
	"github.com/sappyoak/sappyoak-site-functions/internal/service"
	"github.com/sappyoak/sappyoak-site-functions/internal/store"
	"github.com/sappyoak/sappyoak-site-functions/internal/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)
	logger.Setup(cfg)

	consumerName := cfg.Pipeline.ConsumerName
	if consumerName == "" {
		consumerName = defaultConsumerName()
	}

	slog.InfoContext(ctx, "activity feed worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.ConsumerGroup,
		"consumer_name", consumerName,
		"dedupe_actions", cfg.Feed.DedupeActions)

	if err := id.Init(id.NodeWorker); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
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
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.QueueName)

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:    cfg.Pipeline.QueueName,
		Group:     cfg.Pipeline.ConsumerGroup,
		Consumer:  consumerName,
		DLQStream: cfg.Pipeline.DLQName,
		BatchSize: 10,
		Block:     cfg.Worker.Block,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	feedStore := store.WithCircuitBreaker(
		store.NewFeedRecordStore(database.Querier(), cfg.Feed.TableName),
		store.DefaultBreakerConfig(),
	)

	aggregator := service.NewFeedAggregator(
		feedStore,
		realtime.NewRedisPublisher(redisClient, cfg.Pipeline.BroadcastTopic),
		service.FeedAggregatorConfig{
			MaxWriteAttempts: cfg.Worker.MaxWriteAttempts,
			DedupeActions:    cfg.Feed.DedupeActions,
		},
		slog.Default(),
	)

	w := worker.New(consumer, aggregator, worker.Config{
		MaxAttempts:     cfg.Worker.MaxAttempts,
		RequeueDelay:    cfg.Worker.RequeueDelay,
		MaxRequeueDelay: cfg.Worker.MaxRequeueDelay,
	})

	reclaimer := worker.NewReclaimer(consumer, w.Handle, worker.ReclaimerConfig{
		MinIdle:   cfg.Worker.ReclaimMinIdle,
		Interval:  cfg.Worker.ReclaimInterval,
		BatchSize: 10,
	})

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.InfoContext(ctx, "metrics server starting", "addr", cfg.Worker.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "metrics server error", "error", err)
		}
	}()

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	reclaimer.Stop()
	w.Stop()

	for range 2 {
		select {
		case <-shutdownCtx.Done():
			slog.WarnContext(ctx, "shutdown timeout exceeded")
		case err := <-errCh:
			if err != nil {
				slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
			}
		}
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "metrics server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

// defaultConsumerName is unique per process so restarted workers do not
// inherit another instance's pending entries by accident.
func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

const banner = `
  activity feed : worker
  redis stream -> feed aggregator -> postgres + live broadcast
`
