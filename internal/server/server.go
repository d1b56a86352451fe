package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"reelpipe/internal/aiservice"
	"reelpipe/internal/config"
	"reelpipe/internal/cost"
	"reelpipe/internal/logging"
	"reelpipe/internal/observability"
)

// Deps are the services the admin API exposes.
type Deps struct {
	Resolver  *config.Resolver
	Selector  *aiservice.Selector
	Invoker   *aiservice.Invoker
	Monitor   *aiservice.HealthMonitor
	Estimator *cost.Estimator
	Metrics   http.Handler
	Tracer    *observability.TracerProvider
	Logger    logging.Logger
}

// Config controls the listener.
type Config struct {
	Addr        string
	EnableCORS  bool
	Debug       bool
	ReadTimeout time.Duration
}

// DefaultConfig returns the listener settings used by `reelpipe serve`.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8090",
		EnableCORS:  true,
		ReadTimeout: 30 * time.Second,
	}
}

// Server is the gin-backed admin API.
type Server struct {
	deps       Deps
	engine     *gin.Engine
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	logger     logging.Logger
	startTime  time.Time
}

// New builds the engine and registers every route.
func New(cfg Config, deps Deps) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NoopTracerProvider()
	}
	if deps.Metrics == nil {
		deps.Metrics = http.NotFoundHandler()
	}

	engine := gin.New()
	engine.Use(gin.Logger())
	engine.Use(gin.Recovery())

	if cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With", requestIDHeader}
		corsConfig.ExposeHeaders = []string{requestIDHeader}
		corsConfig.AllowWebSockets = true
		engine.Use(cors.New(corsConfig))
	}

	s := &Server{
		deps:   deps,
		engine: engine,
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:    deps.Logger,
		startTime: time.Now(),
	}
	if logging.IsNil(s.logger) {
		s.logger = logging.NewComponentLogger("admin-server")
	}

	// No WriteTimeout: websocket watches are long-lived.
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadTimeout,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.tracing())

	api.GET("/health", s.handleHealth)

	cfg := api.Group("/config")
	{
		cfg.GET("/values/*key", s.handleGetValue)
		cfg.GET("/overrides", s.handleListOverrides)
		cfg.PUT("/overrides/*key", s.handleSetOverride)
		cfg.DELETE("/overrides/*key", s.handleClearOverride)
		cfg.GET("/namespace/*prefix", s.handleNamespace)
		cfg.GET("/watch/*key", s.handleWatch)
	}

	api.POST("/models/:category/select", s.handleSelect)
	api.POST("/cost/estimate", s.handleEstimate)
	api.GET("/metrics/performance", s.handlePerformance)

	s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics))
}

// Handler exposes the engine for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("Starting reelpipe admin server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping reelpipe admin server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Error shutting down HTTP server: %v", err)
		return err
	}
	return nil
}

// requestIDHeader carries the pipeline run ID. Requests without one get a
// fresh ID, echoed back in the response.
const requestIDHeader = "X-Request-ID"

func (s *Server) tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if runID == "" {
			runID = uuid.NewString()
		}
		c.Header(requestIDHeader, runID)

		ctx := observability.ContextWithRunID(c.Request.Context(), runID)
		ctx, span := s.deps.Tracer.StartSpan(ctx, observability.SpanHTTPRequest,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()),
		)
		defer span.End()
		if sc := span.SpanContext(); sc.HasTraceID() {
			ctx = observability.ContextWithTraceID(ctx, sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
}
