// Package server exposes the planning optimizer over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/terminal-bench/stochopt/internal/config"
	"github.com/terminal-bench/stochopt/internal/events"
	"github.com/terminal-bench/stochopt/pkg/circuit"
)

// Server is the HTTP API for the planning service.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	pub    events.Publisher
	router *gin.Engine

	// solves bounds concurrent optimizations; solves are CPU-bound and a
	// runaway fan-in would starve everything else.
	solves *semaphore.Weighted

	// breaker guards event publishing so a dead broker costs one error
	// per cooldown instead of one per request.
	breaker *circuit.Breaker
}

// New creates a server and registers its routes.
func New(cfg *config.Config, logger *zap.Logger, pub events.Publisher) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		pub:    pub,
		router: gin.New(),
		solves: semaphore.NewWeighted(cfg.MaxConcurrent),
	}
	s.breaker = circuit.New(circuit.Config{
		MaxFailures: 5,
		Cooldown:    30 * time.Second,
		HalfOpenMax: 3,
		OnStateChange: func(from, to circuit.State) {
			logger.Warn("event publishing state changed",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.corsMiddleware())

	s.router.GET("/", s.root)
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/agriculture/health", s.agricultureHealth)
		v1.POST("/agriculture/optimize", s.optimizePlan)
	}
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Middleware

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}

	// cors.New rejects a config carrying both AllowAllOrigins and an
	// origin list, so the wildcard replaces the list entirely.
	if len(s.cfg.AllowedOrigins) == 1 && s.cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.AllowedOrigins
	}

	return cors.New(corsCfg)
}
