package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment once at startup.
type Config struct {
	Addr        string   `env:"ADDR" envDefault:":8080"`
	LogMode     string   `env:"LOG_MODE" envDefault:"development"`
	LogLevel    string   `env:"LOG_LEVEL"`
	ServiceName string   `env:"SERVICE_NAME" envDefault:"secondbrain-api"`
	Environment string   `env:"ENVIRONMENT" envDefault:"development"`
	Version     string   `env:"VERSION" envDefault:"dev"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	DBDriver       string        `env:"DB_DRIVER" envDefault:"postgres"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBSlowQuery    time.Duration `env:"DB_SLOW_QUERY" envDefault:"1s"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisChannel  string `env:"REDIS_CHANNEL" envDefault:"secondbrain:sse"`
	CachePrefix   string `env:"CACHE_PREFIX" envDefault:"secondbrain:cache:"`

	ClerkPublicKey         string        `env:"CLERK_JWT_PUBLIC_KEY"`
	ClerkAuthorizedParties []string      `env:"CLERK_AUTHORIZED_PARTIES" envSeparator:","`
	ClerkWebhookSecret     string        `env:"CLERK_WEBHOOK_SECRET"`
	ClerkWebhookTolerance  time.Duration `env:"CLERK_WEBHOOK_TOLERANCE" envDefault:"5m"`
	JWTLeeway              time.Duration `env:"JWT_LEEWAY" envDefault:"5s"`

	InboundEmailSecret string `env:"INBOUND_EMAIL_SECRET"`
	InboundEmailDomain string `env:"INBOUND_EMAIL_DOMAIN"`

	OpenAIAPIKey     string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string        `env:"OPENAI_BASE_URL"`
	OpenAIModel      string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAITimeout    time.Duration `env:"OPENAI_TIMEOUT" envDefault:"60s"`
	OpenAIMaxRetries int           `env:"OPENAI_MAX_RETRIES" envDefault:"2"`

	FetchTimeout      time.Duration `env:"FETCH_TIMEOUT" envDefault:"15s"`
	FetchMaxBytes     int64         `env:"FETCH_MAX_BYTES" envDefault:"2097152"`
	FetchUserAgent    string        `env:"FETCH_USER_AGENT"`
	FetchRetries      int           `env:"FETCH_MAX_RETRIES" envDefault:"2"`
	FetchAllowPrivate bool          `env:"FETCH_ALLOW_PRIVATE"`
	MetaCacheTTL      time.Duration `env:"META_CACHE_TTL" envDefault:"24h"`

	WorkerEnabled     bool          `env:"WORKER_ENABLED" envDefault:"true"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	WorkerPoll        time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"1s"`
	JobMaxAttempts    int           `env:"JOB_MAX_ATTEMPTS" envDefault:"3"`
	JobRetryDelay     time.Duration `env:"JOB_RETRY_DELAY" envDefault:"30s"`
	JobStaleRunning   time.Duration `env:"JOB_STALE_RUNNING" envDefault:"10m"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"30"`

	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`
	QueueMetricsTTL time.Duration `env:"QUEUE_METRICS_INTERVAL" envDefault:"15s"`

	OtelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OtelEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelInsecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
	OtelSampleRatio float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1"`
	// OtelHeaders is "k1=v1,k2=v2".
	OtelHeaders map[string]string `env:"OTEL_EXPORTER_OTLP_HEADERS" envSeparator:"," envKeyValSeparator:"="`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
