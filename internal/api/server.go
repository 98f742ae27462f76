package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"optibooking/internal/api/health"
	"optibooking/internal/metrics"
	"optibooking/pkg/errors"
	"optibooking/pkg/logger"
)

// ServerConfig contains configuration for HTTP server
type ServerConfig struct {
	Port            int
	ServiceName     string
	Version         string
	Debug           bool
	AllowedOrigins  []string
	MaxUploadBytes  int64
	UploadRateLimit float64 // uploads per second; <=0 disables limiting
	UploadBurst     int
}

// Deps are the services behind the routes. Stream may be nil.
type Deps struct {
	Forecaster Forecaster
	Pipeline   Pipeline
	Health     *health.Handler
	Stream     http.Handler
}

// Server wraps HTTP server with lifecycle management
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	log        *logger.Logger
}

// NewServer creates and configures HTTP server with all routes
func NewServer(cfg ServerConfig, deps Deps, log *logger.Logger) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := newEngine(cfg, deps, log)

	port := 8080
	if cfg.Port > 0 {
		port = cfg.Port
	}
	log.Infof("HTTP server configured on port %d", port)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
			// uploads and long forecast ranges need more than the probes do
			ReadTimeout:  2 * time.Minute,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		engine: engine,
		log:    log,
	}
}

func newEngine(cfg ServerConfig, deps Deps, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	h := &handlers{
		forecaster:     deps.Forecaster,
		pipeline:       deps.Pipeline,
		maxUploadBytes: cfg.MaxUploadBytes,
	}

	uploadChain := []gin.HandlerFunc{}
	if cfg.UploadRateLimit > 0 {
		burst := cfg.UploadBurst
		if burst <= 0 {
			burst = 1
		}
		uploadChain = append(uploadChain, rateLimit(rate.NewLimiter(rate.Limit(cfg.UploadRateLimit), burst)))
	}
	uploadChain = append(uploadChain, h.upload)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/uploads", uploadChain...)
		v1.GET("/uploads/status", h.uploadStatus)
		v1.GET("/uploads/:id", h.job)

		v1.PUT("/rooms", h.putRooms)
		v1.GET("/rooms", h.getRooms)
		v1.GET("/room-types", h.roomTypes)

		v1.POST("/predictions", h.predict)

		v1.POST("/model/train", h.train)
		v1.GET("/model", h.model)

		if deps.Stream != nil {
			v1.GET("/stream", gin.WrapH(deps.Stream))
		}
	}

	// Health check endpoints (Kubernetes probes)
	if deps.Health != nil {
		r.GET("/health", gin.WrapF(deps.Health.HandleHealth))
		r.GET("/ready", gin.WrapF(deps.Health.HandleReadiness))
		r.GET("/live", gin.WrapF(deps.Health.HandleLiveness))
	}

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": cfg.ServiceName,
			"version": cfg.Version,
			"status":  "running",
		})
	})

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}
	c.AllowHeaders = append(c.AllowHeaders, "Authorization")
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}

// Handler exposes the routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins listening for HTTP requests
// Blocks until server is stopped or encounters an error
func (s *Server) Start() error {
	s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
// Waits for active connections to complete within timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}

	s.log.Info("HTTP server stopped")
	return nil
}
