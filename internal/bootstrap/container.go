package bootstrap

import (
	"context"
	"sync"

	chclient "optibooking/internal/adapters/clickhouse"
	"optibooking/internal/adapters/config"
	"optibooking/internal/adapters/kafka"
	pgclient "optibooking/internal/adapters/postgres"
	redisclient "optibooking/internal/adapters/redis"
	"optibooking/internal/api"
	"optibooking/internal/api/health"
	"optibooking/internal/api/stream"
	"optibooking/internal/consumers"
	"optibooking/internal/domain/stay"
	"optibooking/internal/events"
	"optibooking/internal/ml/pricing"
	chrepo "optibooking/internal/repository/clickhouse"
	"optibooking/internal/services/forecast"
	"optibooking/internal/services/ingestion"
	"optibooking/internal/workers"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
	"optibooking/pkg/tracing"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker
	Tracing      *tracing.Provider
	InstanceID   string

	// Infrastructure Layer (Data stores); each is nil when disabled
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos       *Repositories
	Services    *Services
	Adapters    *Adapters
	Application *Application
	Background  *Background

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups storage behind the services
type Repositories struct {
	Stays       stay.Repository
	Artifacts   pricing.ArtifactStore
	ForecastLog *chrepo.ForecastLogRepository // nil without ClickHouse
	Locker      ingestion.Locker              // nil without Redis
}

// Services groups domain and application services
type Services struct {
	Stays    *stay.Service
	Forecast *forecast.Service
	Pipeline *ingestion.Pipeline
}

// Adapters groups external adapters
type Adapters struct {
	KafkaProducer     *kafka.Producer
	ModelEventsReader *kafka.Consumer
	EventPublisher    *events.Publisher
}

// Application groups application layer components
type Application struct {
	HTTPServer    *api.Server
	HealthHandler *health.Handler
	Stream        *stream.Hub
}

// Background groups all background processing components
type Background struct {
	WorkerScheduler *workers.Scheduler
	ModelEvents     *consumers.ModelEventsConsumer
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Services:    &Services{},
		Adapters:    &Adapters{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes everything the serve command needs
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitCore()
	c.MustInitAdapters()
	c.MustInitBackground()
	c.MustInitApplication()
}

// MustInitCore initializes config, stores and services; enough for one-shot CLI commands
func (c *Container) MustInitCore() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitServices()
}

// Start starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if c.Repos.ForecastLog != nil {
		c.Repos.ForecastLog.Start(c.Context)
	}

	if err := c.Services.Forecast.Warmup(c.Context); err != nil {
		return errors.Wrap(err, "forecast warmup")
	}

	c.Services.Pipeline.Start(c.Context)

	if c.Background.ModelEvents != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			if err := c.Background.ModelEvents.Start(c.Context); err != nil && c.Context.Err() == nil {
				c.Log.Errorw("Model events consumer failed", "error", err)
			}
		}()
	}

	// Start HTTP server
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	c.Log.Infow("All systems operational", "instance", c.InstanceID)
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	// Cancel application context to signal all other components to stop
	c.Cancel()

	c.Lifecycle.Shutdown(c.WG, Components{
		HTTPServer:        c.Application.HTTPServer,
		Stream:            c.Application.Stream,
		WorkerScheduler:   c.Background.WorkerScheduler,
		Pipeline:          c.Services.Pipeline,
		ModelEventsReader: c.Adapters.ModelEventsReader,
		KafkaProducer:     c.Adapters.KafkaProducer,
		ForecastLog:       c.Repos.ForecastLog,
		Tracing:           c.Tracing,
		PG:                c.PG,
		CH:                c.CH,
		Redis:             c.Redis,
		ErrorTracker:      c.ErrorTracker,
	}, c.Log)
}

// Close releases what MustInitCore opened; used by one-shot commands
func (c *Container) Close() {
	c.Cancel()
	c.Lifecycle.Shutdown(c.WG, Components{
		ForecastLog:  c.Repos.ForecastLog,
		Tracing:      c.Tracing,
		PG:           c.PG,
		CH:           c.CH,
		Redis:        c.Redis,
		ErrorTracker: c.ErrorTracker,
	}, c.Log)
}
