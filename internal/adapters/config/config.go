package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"optibooking/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Forecast      ForecastConfig
	Tracing       TracingConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name       string `envconfig:"APP_NAME" default:"optibooking"`
	Env        string `envconfig:"APP_ENV" default:"development"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	Debug      bool   `envconfig:"DEBUG" default:"false"`
	Version    string `envconfig:"APP_VERSION" default:"dev"`
	InstanceID string `envconfig:"INSTANCE_ID"`
}

type HTTPConfig struct {
	Port            int           `envconfig:"HTTP_PORT" default:"8080"`
	MaxUploadBytes  int64         `envconfig:"HTTP_MAX_UPLOAD_BYTES" default:"67108864"` // 64 MiB
	UploadRateLimit float64       `envconfig:"HTTP_UPLOAD_RATE_LIMIT" default:"1"`       // uploads per second
	UploadBurst     int           `envconfig:"HTTP_UPLOAD_BURST" default:"3"`
	AllowedOrigins  []string      `envconfig:"HTTP_ALLOWED_ORIGINS" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"5s"`
}

// PostgresConfig holds the stay store connection. When disabled the service
// keeps stays in memory, which is only useful for demos and tests.
type PostgresConfig struct {
	Enabled  bool   `envconfig:"POSTGRES_ENABLED" default:"true"`
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"optibooking"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"optibooking"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`

	ConnMaxLifetime time.Duration `envconfig:"POSTGRES_CONN_MAX_LIFETIME" default:"1h"`
	ConnectTimeout  time.Duration `envconfig:"POSTGRES_CONNECT_TIMEOUT" default:"5s"`
	ApplicationName string        `envconfig:"POSTGRES_APPLICATION_NAME" default:"optibooking"`
}

func (c PostgresConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
	if c.ConnectTimeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", max(int(c.ConnectTimeout/time.Second), 1))
	}
	if c.ApplicationName != "" {
		dsn += " application_name=" + c.ApplicationName
	}
	return dsn
}

// Addr is the host:port pair, safe to log
func (c PostgresConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"optibooking"`

	MaxOpenConns int           `envconfig:"CLICKHOUSE_MAX_OPEN_CONNS" default:"5"`
	DialTimeout  time.Duration `envconfig:"CLICKHOUSE_DIAL_TIMEOUT" default:"5s"`
	// AsyncInsert lets the server buffer audit rows instead of the client
	AsyncInsert bool `envconfig:"CLICKHOUSE_ASYNC_INSERT" default:"false"`
}

func (c ClickHouseConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`

	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"optibooking"`

	// MaxWait bounds how long the consumer blocks for a fetch
	MaxWait time.Duration `envconfig:"KAFKA_MAX_WAIT" default:"2s"`
}

// ForecastConfig tunes the ensemble, artifact persistence and the request path
type ForecastConfig struct {
	Trees        int   `envconfig:"FORECAST_TREES" default:"100"`
	MaxDepth     int   `envconfig:"FORECAST_MAX_DEPTH" default:"12"`
	MinLeafSize  int   `envconfig:"FORECAST_MIN_LEAF_SIZE" default:"2"`
	MaxFeatures  int   `envconfig:"FORECAST_MAX_FEATURES" default:"0"` // 0 = ceil(features/3)
	Seed         int64 `envconfig:"FORECAST_SEED" default:"42"`
	TrainWorkers int   `envconfig:"FORECAST_TRAIN_WORKERS" default:"0"` // 0 = GOMAXPROCS

	// ArtifactBackend selects where the trained model is persisted: file|redis
	ArtifactBackend string `envconfig:"FORECAST_ARTIFACT_BACKEND" default:"file"`
	ArtifactPath    string `envconfig:"FORECAST_ARTIFACT_PATH" default:"data/price_model.json"`
	ArtifactKey     string `envconfig:"FORECAST_ARTIFACT_KEY" default:"optibooking:model:current"`

	CacheSize int           `envconfig:"FORECAST_CACHE_SIZE" default:"1024"`
	CacheTTL  time.Duration `envconfig:"FORECAST_CACHE_TTL" default:"10m"`
	// MaxDays caps the date range of one prediction request
	MaxDays int `envconfig:"FORECAST_MAX_DAYS" default:"366"`

	IngestionQueueSize int           `envconfig:"INGESTION_QUEUE_SIZE" default:"4"`
	IngestionLockTTL   time.Duration `envconfig:"INGESTION_LOCK_TTL" default:"30m"`
	JobHistorySize     int           `envconfig:"INGESTION_JOB_HISTORY" default:"256"`
}

type TracingConfig struct {
	Enabled      bool    `envconfig:"TRACING_ENABLED" default:"false"`
	Endpoint     string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	Insecure     bool    `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	SamplingRate float64 `envconfig:"TRACING_SAMPLING_RATE" default:"1.0"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for background workers
type WorkerConfig struct {
	RetrainEnabled  bool          `envconfig:"WORKER_RETRAIN_ENABLED" default:"true"`
	RetrainInterval time.Duration `envconfig:"WORKER_RETRAIN_INTERVAL" default:"6h"`

	// ModelSync polls the artifact store; useful for replicas without Kafka
	ModelSyncEnabled  bool          `envconfig:"WORKER_MODEL_SYNC_ENABLED" default:"false"`
	ModelSyncInterval time.Duration `envconfig:"WORKER_MODEL_SYNC_INTERVAL" default:"5m"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	switch strings.ToLower(c.Forecast.ArtifactBackend) {
	case "file":
		if c.Forecast.ArtifactPath == "" {
			return errors.NewValidationError("FORECAST_ARTIFACT_PATH", "required for file backend", "")
		}
	case "redis":
		if !c.Redis.Enabled {
			return errors.NewValidationError("FORECAST_ARTIFACT_BACKEND", "redis backend requires REDIS_ENABLED", c.Forecast.ArtifactBackend)
		}
	default:
		return errors.NewValidationError("FORECAST_ARTIFACT_BACKEND", "must be file or redis", c.Forecast.ArtifactBackend)
	}

	if c.Forecast.Trees <= 0 {
		return errors.NewValidationError("FORECAST_TREES", "must be positive", c.Forecast.Trees)
	}
	if c.Forecast.MaxDays <= 0 {
		return errors.NewValidationError("FORECAST_MAX_DAYS", "must be positive", c.Forecast.MaxDays)
	}
	if c.Forecast.IngestionQueueSize <= 0 {
		return errors.NewValidationError("INGESTION_QUEUE_SIZE", "must be positive", c.Forecast.IngestionQueueSize)
	}

	return nil
}
