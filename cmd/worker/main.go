package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/config"
	"github.com/noah-isme/backend-billing/internal/db"
	"github.com/noah-isme/backend-billing/internal/lock"
	"github.com/noah-isme/backend-billing/internal/notify"
	"github.com/noah-isme/backend-billing/internal/obs"
	"github.com/noah-isme/backend-billing/internal/queue"
	"github.com/noah-isme/backend-billing/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "billing"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, queries := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	queuePrefix := envOrDefault("QUEUE_PREFIX", "billing:queue")
	webhookMaxAttempts := envInt("WEBHOOK_MAX_ATTEMPTS", 5)
	webhookTimeout := envDurationMillis("WEBHOOK_TIMEOUT_MS", 10_000)

	notifyStore := notify.NewStore(queries)
	taskQueue := queue.Enqueuer{
		R:           redisClient,
		Prefix:      queuePrefix,
		DedupTTL:    envDurationMillis("QUEUE_DEDUP_TTL_MS", 6*60*60*1000),
		MaxAttempts: webhookMaxAttempts,
	}
	dispatcher := &notify.Dispatcher{
		Store: notifyStore,
		HTTP: &resilience.HTTPClient{
			Client:      notify.HttpClient(int(webhookTimeout/time.Millisecond), envBool("WEBHOOK_ALLOW_INSECURE_TLS", false)),
			Breaker:     resilience.NewBreaker(envInt("WEBHOOK_BREAKER_MIN_REQUESTS", 10), envFloat("WEBHOOK_BREAKER_FAILURE_RATIO", 0.5), envDurationMillis("WEBHOOK_BREAKER_OPEN_MS", 30_000)),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 2,
			Timeout:     webhookTimeout,
			Target:      "webhook-delivery",
			Logger:      logger,
		},
		Queue:              taskQueue,
		BackoffBaseSec:     envInt("WEBHOOK_BACKOFF_BASE_SEC", 5),
		DefaultMaxAttempts: webhookMaxAttempts,
		Enabled:            envBool("WEBHOOK_DELIVERY_ENABLED", true),
		Replay:             notify.RedisReplayProtector{Client: redisClient},
		ReplayTTL:          envDurationMillis("WEBHOOK_REPLAY_TTL_MS", 24*60*60*1000),
	}

	deliveryWorker := notify.DeliveryWorker{
		Dispatcher: dispatcher,
		Locker:     lock.Locker{R: redisClient, RetryBackoff: 50 * time.Millisecond},
		LockTTL:    envDurationMillis("DELIVERY_LOCK_TTL_MS", 30_000),
	}

	webhookQueueWorker := queue.Worker{
		R:                 redisClient,
		Prefix:            queuePrefix,
		Kind:              notify.WebhookDeliveryTask(),
		Concurrency:       envInt("QUEUE_CONCURRENCY_WEBHOOK", 4),
		VisibilityTimeout: envDurationMillis("QUEUE_VISIBILITY_TIMEOUT_MS", 30_000),
		SoftDeadline:      envDurationMillis("WORKER_JOB_SOFT_DEADLINE_MS", 60_000),
		RetryBase:         envDurationMillis("QUEUE_BACKOFF_BASE_MS", 500),
		RetryJitter:       envFloat("QUEUE_BACKOFF_JITTER", 0.2),
		Store:             queue.NewStore(pool),
		Logger:            &logger,
		Handler: func(jobCtx context.Context, task queue.Task) error {
			return deliveryWorker.Handle(jobCtx, task.Payload)
		},
	}

	logger.Info().Msg("worker starting")
	if err := webhookQueueWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pgxpool.Pool, *db.Queries) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "billing-worker"
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool, db.New(pool)
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
