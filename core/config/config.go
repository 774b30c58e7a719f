package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/sappyoak/sappyoak-site-functions/core/db"
)

type Config struct {
	Service  ServiceType
	OTel     OTelConfig
	GitHub   GitHubConfig
	Pipeline PipelineConfig
	Feed     FeedConfig
	Worker   WorkerConfig
	Env      string
	Port     string
	DB       db.Config
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type GitHubConfig struct {
	WebhookSecret  string `validate:"required" env:"GITHUB_WEBHOOK_SECRET"`
	TrustedSender  string `validate:"required" env:"GITHUB_USERNAME"`
	WebhookRPS     float64
	WebhookBurst   int
	MaxPayloadSize int64
}

type PipelineConfig struct {
	RedisURL       string `validate:"required" env:"REDIS_URL"`
	QueueName      string `validate:"required" env:"RAW_ACTIVITY_QUEUE_NAME"`
	DLQName        string `validate:"required" env:"RAW_ACTIVITY_DLQ_NAME"`
	ConsumerGroup  string `validate:"required" env:"RAW_ACTIVITY_CONSUMER_GROUP"`
	ConsumerName   string
	BroadcastTopic string `validate:"required" env:"ACTIVITY_FEED_CHANNEL"`
}

type FeedConfig struct {
	TableName       string `validate:"required" env:"ACTIVITY_FEED_TABLE_NAME"`
	PartitionKey    string `validate:"required" env:"ACTIVITY_FEED_PARTITION"`
	DefaultPageSize int    `validate:"gt=0"`
	MaxPageSize     int    `validate:"gtefield=DefaultPageSize"`
	MaxFetchAll     int    `validate:"gtefield=MaxPageSize"`
	DedupeActions   bool
}

type WorkerConfig struct {
	MaxAttempts      int `validate:"gt=0"`
	MaxWriteAttempts int `validate:"gt=0"`
	Block            time.Duration
	RequeueDelay     time.Duration
	MaxRequeueDelay  time.Duration
	ReclaimMinIdle   time.Duration
	ReclaimInterval  time.Duration
	MetricsAddr      string
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
)

// Load reads configuration from the environment. In development the
// service-specific .env.<service> file is loaded first, falling back to .env.
// Every setting the pipeline cannot run without is checked here, once, so a
// missing secret or table name stops the process at start-up.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("ACTIVITY_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Service: serviceType,
		Env:     getEnv("ACTIVITY_ENV", "development"),
		Port:    getEnv("PORT", "8080"),
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "activityfeed-"+string(serviceType)),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		GitHub: GitHubConfig{
			WebhookSecret:  getEnv("GITHUB_WEBHOOK_SECRET", ""),
			TrustedSender:  getEnv("GITHUB_USERNAME", ""),
			WebhookRPS:     getEnvFloat("WEBHOOK_RATE_LIMIT_RPS", 10),
			WebhookBurst:   getEnvInt("WEBHOOK_RATE_LIMIT_BURST", 20),
			MaxPayloadSize: int64(getEnvInt("WEBHOOK_MAX_PAYLOAD_BYTES", 25<<20)),
		},
		Pipeline: PipelineConfig{
			RedisURL:       getEnv("REDIS_URL", ""),
			QueueName:      getEnv("RAW_ACTIVITY_QUEUE_NAME", ""),
			DLQName:        getEnv("RAW_ACTIVITY_DLQ_NAME", "raw_activity_dlq"),
			ConsumerGroup:  getEnv("RAW_ACTIVITY_CONSUMER_GROUP", "activity_aggregator"),
			ConsumerName:   getEnv("RAW_ACTIVITY_CONSUMER_NAME", ""),
			BroadcastTopic: getEnv("ACTIVITY_FEED_CHANNEL", "activityFeed"),
		},
		Feed: FeedConfig{
			TableName:       getEnv("ACTIVITY_FEED_TABLE_NAME", ""),
			PartitionKey:    getEnv("ACTIVITY_FEED_PARTITION", "github-activity"),
			DefaultPageSize: getEnvInt("FEED_DEFAULT_PAGE_SIZE", 20),
			MaxPageSize:     getEnvInt("FEED_MAX_PAGE_SIZE", 100),
			MaxFetchAll:     getEnvInt("FEED_MAX_FETCH_ALL", 1000),
			DedupeActions:   getEnvBool("FEED_DEDUPE_ACTIONS", false),
		},
		Worker: WorkerConfig{
			MaxAttempts:      getEnvInt("WORKER_MAX_ATTEMPTS", 5),
			MaxWriteAttempts: getEnvInt("WORKER_MAX_WRITE_ATTEMPTS", 5),
			Block:            getEnvDuration("WORKER_BLOCK", 5*time.Second),
			RequeueDelay:     getEnvDuration("WORKER_REQUEUE_DELAY", 5*time.Second),
			MaxRequeueDelay:  getEnvDuration("WORKER_REQUEUE_MAX_DELAY", 2*time.Minute),
			ReclaimMinIdle:   getEnvDuration("WORKER_RECLAIM_MIN_IDLE", 5*time.Minute),
			ReclaimInterval:  getEnvDuration("WORKER_RECLAIM_INTERVAL", time.Minute),
			MetricsAddr:      getEnv("WORKER_METRICS_ADDR", ":9091"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate reports the first group of missing or inconsistent settings,
// naming the environment variables involved. Only the groups the process
// reads are checked: the worker never sees a webhook.
func (c Config) Validate() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	for _, target := range c.validationTargets() {
		if err := v.Struct(target); err != nil {
			return describe(target, err)
		}
	}
	return nil
}

func (c Config) validationTargets() []any {
	switch c.Service {
	case ServiceTypeServer:
		return []any{c.GitHub, c.Pipeline, c.Feed}
	case ServiceTypeWorker:
		return []any{c.Pipeline, c.Feed, c.Worker}
	default:
		return []any{c.GitHub, c.Pipeline, c.Feed, c.Worker}
	}
}

func describe(target any, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}

	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, envName(target, fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(names, ", "))
}

func envName(target any, fe validator.FieldError) string {
	if fe.Tag() == "required" {
		if name := envTag(target, fe.StructField()); name != "" {
			return name + " is required"
		}
	}
	return fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
}

func envTag(target any, field string) string {
	if f, ok := reflect.TypeOf(target).FieldByName(field); ok {
		return f.Tag.Get("env")
	}
	return ""
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
