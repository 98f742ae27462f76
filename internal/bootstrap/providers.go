package bootstrap

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	chclient "optibooking/internal/adapters/clickhouse"
	"optibooking/internal/adapters/config"
	errnoop "optibooking/internal/adapters/errors/noop"
	"optibooking/internal/adapters/errors/sentry"
	"optibooking/internal/adapters/kafka"
	pgclient "optibooking/internal/adapters/postgres"
	redisclient "optibooking/internal/adapters/redis"
	"optibooking/internal/api"
	"optibooking/internal/api/health"
	"optibooking/internal/api/stream"
	"optibooking/internal/consumers"
	"optibooking/internal/domain/forecastlog"
	"optibooking/internal/domain/stay"
	"optibooking/internal/events"
	"optibooking/internal/metrics"
	"optibooking/internal/ml/forest"
	chrepo "optibooking/internal/repository/clickhouse"
	"optibooking/internal/repository/filesystem"
	"optibooking/internal/repository/memory"
	pgrepo "optibooking/internal/repository/postgres"
	redisrepo "optibooking/internal/repository/redis"
	"optibooking/internal/services/forecast"
	"optibooking/internal/services/ingestion"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
	"optibooking/pkg/retry"
	"optibooking/pkg/tracing"
)

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger, error tracker and tracing
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.InstanceID = provideInstanceID(cfg)
	c.Log = logger.Get().With("instance", c.InstanceID)
	c.Log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	c.Tracing = provideTracing(c, cfg)
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects the enabled data stores
func (c *Container) MustInitInfrastructure() {
	var err error
	backoff := connectRetry(c.Log)

	if c.Config.Postgres.Enabled {
		c.Log.Info("Connecting to PostgreSQL...")
		c.PG, err = retry.DoValue(c.Context, backoff, func(ctx context.Context) (*pgclient.Client, error) {
			return pgclient.NewClient(ctx, c.Config.Postgres)
		})
		if err != nil {
			c.Log.Fatalf("failed to connect postgres: %v", err)
		}
		c.Log.Infow("PostgreSQL connected", "addr", c.PG.Addr())
	}

	if c.Config.ClickHouse.Enabled {
		c.Log.Info("Connecting to ClickHouse...")
		c.CH, err = retry.DoValue(c.Context, backoff, func(ctx context.Context) (*chclient.Client, error) {
			return chclient.NewClient(ctx, c.Config.ClickHouse)
		})
		if err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
		c.Log.Infow("ClickHouse connected", "addr", c.CH.Addr())
	}

	if c.Config.Redis.Enabled {
		c.Log.Info("Connecting to Redis...")
		c.Redis, err = retry.DoValue(c.Context, backoff, func(ctx context.Context) (*redisclient.Client, error) {
			return redisclient.NewClient(ctx, c.Config.Redis)
		})
		if err != nil {
			c.Log.Fatalf("failed to connect redis: %v", err)
		}
		c.Log.Infow("Redis connected", "addr", c.Redis.Addr())
	}
}

// ========================================
// Phase 3: Repositories
// ========================================

// MustInitRepositories picks a backend for each store
func (c *Container) MustInitRepositories() {
	if c.PG != nil {
		repo := pgrepo.NewStayRepository(c.PG.DB())
		if err := repo.EnsureSchema(c.Context); err != nil {
			c.Log.Fatalf("failed to ensure stay schema: %v", err)
		}
		c.Repos.Stays = repo
	} else {
		c.Log.Warn("PostgreSQL disabled, stays are kept in memory")
		c.Repos.Stays = memory.NewStayRepository()
	}

	switch strings.ToLower(c.Config.Forecast.ArtifactBackend) {
	case "redis":
		c.Repos.Artifacts = redisrepo.NewModelArtifactStore(c.Redis.Client(), c.Config.Forecast.ArtifactKey)
	default:
		c.Repos.Artifacts = filesystem.NewModelArtifactStore(c.Config.Forecast.ArtifactPath)
	}

	if c.Redis != nil {
		c.Repos.Locker = redisrepo.NewLocker(c.Redis.Client(), c.Config.Forecast.IngestionLockTTL)
	}

	if c.CH != nil {
		repo := chrepo.NewForecastLogRepository(c.CH.Conn(), c.Log)
		if err := repo.EnsureSchema(c.Context); err != nil {
			c.Log.Fatalf("failed to ensure forecast_log schema: %v", err)
		}
		c.Repos.ForecastLog = repo
	}

	c.Log.Infow("Repositories initialized",
		"stays", backendName(c.PG != nil, "postgres", "memory"),
		"artifacts", c.Config.Forecast.ArtifactBackend,
		"forecast_log", c.Repos.ForecastLog != nil,
		"distributed_lock", c.Repos.Locker != nil,
	)
}

// ========================================
// Phase 4: Services
// ========================================

// MustInitServices wires the stay, forecast and ingestion services
func (c *Container) MustInitServices() {
	fc := c.Config.Forecast

	c.Services.Stays = stay.NewService(c.Repos.Stays)

	// keep the interface nil, not a typed nil pointer, when ClickHouse is off
	var recorder forecastlog.Repository
	if c.Repos.ForecastLog != nil {
		recorder = c.Repos.ForecastLog
	}

	c.Services.Forecast = forecast.NewService(c.Services.Stays, c.Repos.Artifacts, recorder, forecast.Options{
		Forest: forest.Config{
			Trees:       fc.Trees,
			MaxDepth:    fc.MaxDepth,
			MinLeafSize: fc.MinLeafSize,
			MaxFeatures: fc.MaxFeatures,
			Workers:     fc.TrainWorkers,
			Seed:        fc.Seed,
		},
		CacheSize: fc.CacheSize,
		CacheTTL:  fc.CacheTTL,
		MaxDays:   fc.MaxDays,
	}, c.Log.With("component", "forecast"))

	c.Services.Pipeline = ingestion.NewPipeline(c.Services.Forecast, ingestion.Config{
		QueueSize:   fc.IngestionQueueSize,
		HistorySize: fc.JobHistorySize,
		Locker:      c.Repos.Locker,
	}, c.Log.With("component", "ingestion"))

	c.Log.Info("Services initialized")
}

// ========================================
// Phase 5: External Adapters
// ========================================

// MustInitAdapters wires Kafka when enabled
func (c *Container) MustInitAdapters() {
	if !c.Config.Kafka.Enabled {
		c.Log.Info("Kafka disabled, model events are not published")
		return
	}

	c.Adapters.KafkaProducer = provideKafkaProducer(c.Config, c.Log)
	c.Adapters.EventPublisher = events.NewPublisher(c.Adapters.KafkaProducer, c.InstanceID, c.Log.With("component", "events"))
	c.Services.Pipeline.AddNotifier(c.Adapters.EventPublisher)

	// every replica must see every model.trained, so each gets its own group
	c.Adapters.ModelEventsReader = provideKafkaConsumer(c.Config, kafka.TopicModelTrained, c.Config.Kafka.GroupID+"-"+c.InstanceID, c.Log)
}

// ========================================
// Phase 6: Application Layer
// ========================================

// MustInitApplication builds the stream hub, health checks and HTTP server
func (c *Container) MustInitApplication() {
	c.Application.Stream = stream.NewHub(originChecker(c.Config.HTTP.AllowedOrigins), c.Log)
	c.Services.Pipeline.AddNotifier(c.Application.Stream)

	metrics.Init()
	metrics.RegisterCustomCollector(metrics.NewCustomCollector(
		c.Log.With("component", "metrics"),
		c.Services.Stays,
		c.Services.Forecast,
		c.Services.Pipeline,
	))

	c.Application.HealthHandler = provideHealthHandler(c)

	c.Application.HTTPServer = api.NewServer(api.ServerConfig{
		Port:            c.Config.HTTP.Port,
		ServiceName:     c.Config.App.Name,
		Version:         c.Config.App.Version,
		Debug:           c.Config.App.Debug,
		AllowedOrigins:  c.Config.HTTP.AllowedOrigins,
		MaxUploadBytes:  c.Config.HTTP.MaxUploadBytes,
		UploadRateLimit: c.Config.HTTP.UploadRateLimit,
		UploadBurst:     c.Config.HTTP.UploadBurst,
	}, api.Deps{
		Forecaster: c.Services.Forecast,
		Pipeline:   c.Services.Pipeline,
		Health:     c.Application.HealthHandler,
		Stream:     c.Application.Stream,
	}, c.Log.With("component", "http"))
}

// ========================================
// Phase 7: Background Processing
// ========================================

// MustInitBackground registers workers and the model events consumer
func (c *Container) MustInitBackground() {
	c.Background.WorkerScheduler = provideWorkers(c.Config, c.Services, c.Log)

	if c.Adapters.ModelEventsReader != nil {
		c.Background.ModelEvents = consumers.NewModelEventsConsumer(
			c.Adapters.ModelEventsReader,
			c.Services.Forecast,
			c.InstanceID,
			c.Log.With("component", "model_events"),
		)
	}

	c.Log.Info("Background processing initialized")
}

// ========================================
// Helper Provider Functions
// ========================================

// connectRetry waits out backends that start alongside the service
func connectRetry(log *logger.Logger) retry.Config {
	cfg := retry.DefaultConfig()
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warnw("Backend not reachable yet, retrying", "attempt", attempt, "delay", delay, "error", err)
	}
	return cfg
}

func provideInstanceID(cfg *config.Config) string {
	if cfg.App.InstanceID != "" {
		return cfg.App.InstanceID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = cfg.App.Name
	}
	return host + "-" + uuid.NewString()[:8]
}

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

func provideTracing(c *Container, cfg *config.Config) *tracing.Provider {
	if !cfg.Tracing.Enabled {
		return nil
	}
	p, err := tracing.Init(c.Context, tracing.Config{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		c.Log.Warnf("Failed to initialize tracing: %v", err)
		return nil
	}
	c.Log.Infow("Tracing initialized", "endpoint", cfg.Tracing.Endpoint)
	return p
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
	}, log.With("component", "kafka_producer"))
	log.Infow("Kafka producer initialized", "brokers", cfg.Kafka.Brokers)
	return producer
}

func provideKafkaConsumer(cfg *config.Config, topic, groupID string, log *logger.Logger) *kafka.Consumer {
	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: groupID,
		Topic:   topic,
		MaxWait: cfg.Kafka.MaxWait,
	}, log)
	log.Infow("Kafka consumer initialized", "topic", topic, "group", groupID)
	return consumer
}

func provideHealthHandler(c *Container) *health.Handler {
	h := health.New(c.Log.With("component", "health"), c.Config.App.Name, c.Config.App.Version, c.Services.Forecast, c.Background.WorkerScheduler)
	if c.PG != nil {
		h.Register("postgres", c.PG)
	}
	if c.CH != nil {
		h.Register("clickhouse", c.CH)
	}
	if c.Redis != nil {
		h.Register("redis", c.Redis)
	}
	return h
}

func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		return nil
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

func backendName(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}
