// Package server implements the Proxy Front-End (C1): the gin-based HTTP
// edge owning per-request lifecycle, streaming, keepalive, the terminal
// watchdog, and backpressure-aware close, per SPEC_FULL §4.1. Routing and
// middleware composition are adapted from the teacher's
// internal/server/middleware.go and auth_middleware.go; the streaming
// dispatch loop generalizes the other-examples tingly-dev-tingly-box
// anthropic_to_openai.go c.Stream pattern to also drive a keepalive ticker
// and terminal watchdog.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nyxo-labs/anthrobridge/internal/backend"
	"github.com/nyxo-labs/anthrobridge/internal/cache"
	"github.com/nyxo-labs/anthrobridge/internal/config"
	"github.com/nyxo-labs/anthrobridge/internal/server/tracelog"
	"github.com/nyxo-labs/anthrobridge/internal/wire"
)

// Server wires the HTTP edge to the backend client, cache, and tracelog
// sink. One instance serves the whole process, the same top-level shape
// as the teacher's own Server struct in internal/server/server.go.
type Server struct {
	cfg    *config.Config
	log    *logrus.Logger
	openai *backend.OpenAIClient
	direct *backend.AnthropicClient
	cache  *cache.Cache
	elig   *cache.EligibilityPredicate
	trace  *tracelog.Sink

	startedAt time.Time
}

// New builds a Server from its dependencies. elig may be nil to disable
// caching regardless of cfg.CacheMaxBytes.
func New(cfg *config.Config, log *logrus.Logger, openaiClient *backend.OpenAIClient, directClient *backend.AnthropicClient, c *cache.Cache, elig *cache.EligibilityPredicate, trace *tracelog.Sink) *Server {
	return &Server{
		cfg:       cfg,
		log:       log,
		openai:    openaiClient,
		direct:    directClient,
		cache:     c,
		elig:      elig,
		trace:     trace,
		startedAt: time.Now(),
	}
}

// Engine builds the gin.Engine with all routes and middleware mounted.
func (s *Server) Engine() *gin.Engine {
	if s.cfg.LogLevel == "off" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)

	authed := r.Group("/")
	authed.Use(s.authMiddleware())
	authed.POST("/v1/messages", s.handleMessages)
	authed.GET("/v1/models", s.handleModels)

	return r
}

// requestLogger times the request and writes one tracelog.RequestEntry on
// completion, the counterpart of the teacher's own access-log middleware.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if s.trace == nil {
			return
		}
		s.trace.LogRequest(tracelog.RequestEntry{
			Timestamp:  start,
			RequestID:  requestIDFromContext(c),
			HTTPStatus: c.Writer.Status(),
			LatencyMS:  float64(time.Since(start).Microseconds()) / 1000.0,
		})
	}
}

func requestIDFromContext(c *gin.Context) string {
	if v, ok := c.Get("request_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// handleHealth implements GET /health (§6): {ok, uptime_s, backend_ok}.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	backendOK := s.probeBackend(ctx)
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"uptime_s":   int(time.Since(s.startedAt).Seconds()),
		"backend_ok": backendOK,
	})
}

// probeBackend is the "backend connectivity probe" supplemented feature:
// a lightweight non-streaming completion against the configured backend,
// grounded on the teacher's testProviderConnectivity (internal/server/probe.go).
func (s *Server) probeBackend(ctx context.Context) bool {
	if s.openai == nil {
		return s.direct != nil
	}
	_, err := s.openai.Complete(ctx, wire.OpenAIRequest{
		Model:               s.probeModel(),
		Messages:            []wire.OpenAIMsg{{Role: "user", Content: "ping"}},
		MaxCompletionTokens: 1,
	})
	return err == nil
}

func (s *Server) probeModel() string {
	if len(s.cfg.ModelAliases) > 0 {
		return s.cfg.ModelAliases[0].ID
	}
	return "gpt-4o-mini"
}

// handleMetrics implements GET /metrics: a JSON rendering of cache.Metrics.
func (s *Server) handleMetrics(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.cache.MetricsSnapshot())
}

// handleModels implements GET /v1/models: the "richer /v1/models"
// supplemented feature, echoing the configured model aliases.
func (s *Server) handleModels(c *gin.Context) {
	data := make([]gin.H, 0, len(s.cfg.ModelAliases))
	for _, m := range s.cfg.ModelAliases {
		data = append(data, gin.H{
			"id":           m.ID,
			"object":       "model",
			"display_name": m.DisplayName,
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}
