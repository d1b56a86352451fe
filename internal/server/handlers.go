package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"reelpipe/internal/aiservice"
	"reelpipe/internal/config"
	"reelpipe/internal/cost"
	reelerrors "reelpipe/internal/errors"
	"reelpipe/internal/logging"
	"reelpipe/internal/observability"
	"reelpipe/internal/providers"

	"go.opentelemetry.io/otel/attribute"
)

// APIResponse is the envelope every /api endpoint returns.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ValueResponse is one resolved key.
type ValueResponse struct {
	Key    string       `json:"key"`
	Value  config.Value `json:"value"`
	Source string       `json:"source"`
}

// BreakerStatus is the JSON view of one circuit breaker.
type BreakerStatus struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	Threshold       int       `json:"threshold"`
	TimeoutSeconds  float64   `json:"timeout_seconds"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status    string                   `json:"status"`
	Uptime    string                   `json:"uptime"`
	Timestamp time.Time                `json:"timestamp"`
	Breakers  []BreakerStatus          `json:"breakers"`
	Probes    []aiservice.HealthStatus `json:"probes"`
}

type overrideRequest struct {
	Value *config.Value `json:"value"`
}

func (s *Server) ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	logger := logging.ForContext(c.Request.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Error("HTTP %d %s: %v", status, c.Request.URL.Path, err)
	} else {
		logger.Warn("HTTP %d %s: %v", status, c.Request.URL.Path, err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, APIResponse{Success: false, Error: err.Error()})
}

// paramKey turns a catch-all path parameter into a dotted key.
func paramKey(c *gin.Context, name string) string {
	return strings.Trim(strings.TrimSpace(c.Param(name)), "/")
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
		Breakers:  []BreakerStatus{},
		Probes:    []aiservice.HealthStatus{},
	}
	if s.deps.Invoker != nil {
		for _, m := range s.deps.Invoker.Breakers().Snapshot() {
			if m.State == reelerrors.StateOpen {
				resp.Status = "degraded"
			}
			resp.Breakers = append(resp.Breakers, BreakerStatus{
				Name:            m.Name,
				State:           m.State.String(),
				FailureCount:    m.FailureCount,
				Threshold:       m.Threshold,
				TimeoutSeconds:  m.Timeout.Seconds(),
				LastFailureTime: m.LastFailureTime,
			})
		}
	}
	if s.deps.Monitor != nil {
		resp.Probes = append(resp.Probes, s.deps.Monitor.Snapshot()...)
	}
	s.ok(c, resp)
}

func (s *Server) handleGetValue(c *gin.Context) {
	key := paramKey(c, "key")
	if key == "" {
		s.fail(c, http.StatusBadRequest, errors.New("key is required"))
		return
	}

	def := config.Null()
	if raw, ok := c.GetQuery("default"); ok {
		def = config.Parse(raw)
	}
	var opts []config.GetOption
	if c.Query("fresh") == "true" {
		opts = append(opts, config.SkipCache())
	}

	ctx, span := s.deps.Tracer.StartSpan(c.Request.Context(), observability.SpanConfigResolve,
		attribute.String("reelpipe.config.key", key))
	value, source := s.deps.Resolver.Get(ctx, key, def, opts...)
	span.SetAttributes(attribute.String("reelpipe.config.source", source.String()))
	span.End()

	if source == config.SourceNone && value.IsNull() {
		s.fail(c, http.StatusNotFound, fmt.Errorf("%s is not configured", key))
		return
	}
	s.ok(c, ValueResponse{Key: key, Value: value, Source: source.String()})
}

func (s *Server) handleListOverrides(c *gin.Context) {
	keys := s.deps.Resolver.RuntimeOverrides(c.Query("prefix"))
	if keys == nil {
		keys = []string{}
	}
	s.ok(c, gin.H{"keys": keys})
}

func (s *Server) handleSetOverride(c *gin.Context) {
	key := paramKey(c, "key")
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if req.Value == nil {
		s.fail(c, http.StatusBadRequest, errors.New("value is required"))
		return
	}
	if err := s.deps.Resolver.SetRuntimeOverride(key, *req.Value); err != nil {
		var invalid *reelerrors.ConfigValidationError
		if errors.As(err, &invalid) {
			s.fail(c, http.StatusUnprocessableEntity, err)
			return
		}
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	s.ok(c, ValueResponse{Key: key, Value: *req.Value, Source: config.SourceRuntimeOverride.String()})
}

func (s *Server) handleClearOverride(c *gin.Context) {
	key := paramKey(c, "key")
	if key == "" {
		s.fail(c, http.StatusBadRequest, errors.New("key is required"))
		return
	}
	s.deps.Resolver.ClearRuntimeOverride(key)
	s.ok(c, gin.H{"key": key, "cleared": true})
}

func (s *Server) handleNamespace(c *gin.Context) {
	prefix := paramKey(c, "prefix")
	if prefix == "" {
		s.fail(c, http.StatusBadRequest, errors.New("prefix is required"))
		return
	}
	values, err := s.deps.Resolver.GetNamespace(c.Request.Context(), prefix)
	if err != nil {
		s.fail(c, http.StatusBadGateway, err)
		return
	}
	s.ok(c, gin.H{"prefix": prefix, "values": values})
}

func (s *Server) handleWatch(c *gin.Context) {
	key := paramKey(c, "key")
	if key == "" {
		s.fail(c, http.StatusBadRequest, errors.New("key is required"))
		return
	}

	conn, err := s.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed for %s: %v", key, err)
		return
	}
	defer conn.Close()

	changes, stop := s.deps.Resolver.Watch(key, 16)
	defer stop()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	value, source := s.deps.Resolver.Get(c.Request.Context(), key, config.Null())
	if err := conn.WriteJSON(ValueResponse{Key: key, Value: value, Source: source.String()}); err != nil {
		return
	}
	s.logger.Debug("Watching %s", key)

	for {
		select {
		case <-closed:
			return
		case change := <-changes:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(change); err != nil {
				s.logger.Warn("WebSocket write failed for %s: %v", key, err)
				return
			}
		}
	}
}

func (s *Server) handleSelect(c *gin.Context) {
	category, err := providers.ParseCategory(c.Param("category"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	var req aiservice.Requirements
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
			return
		}
	}
	selection, err := s.deps.Selector.SelectModel(c.Request.Context(), category, req)
	if err != nil {
		if errors.Is(err, aiservice.ErrNoModelConfig) {
			s.fail(c, http.StatusNotFound, err)
			return
		}
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	s.ok(c, selection)
}

func (s *Server) handleEstimate(c *gin.Context) {
	var usage cost.GenerationUsage
	if err := c.ShouldBindJSON(&usage); err != nil {
		s.fail(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	estimate, err := s.deps.Estimator.EstimateGeneration(c.Request.Context(), usage)
	if err != nil {
		if errors.Is(err, cost.ErrRateNotFound) {
			s.fail(c, http.StatusUnprocessableEntity, err)
			return
		}
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	s.ok(c, estimate)
}

func (s *Server) handlePerformance(c *gin.Context) {
	metrics := []aiservice.PerformanceMetric{}
	if s.deps.Invoker != nil {
		metrics = append(metrics, s.deps.Invoker.GetPerformanceMetrics()...)
	}
	s.ok(c, gin.H{"metrics": metrics})
}
