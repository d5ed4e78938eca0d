package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/CarnegieLearningWeb/upgrade-agent/engine/orchestrator"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/session"
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/upgrade"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/config"
	"github.com/CarnegieLearningWeb/upgrade-agent/pkg/logger"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP front end: one chat endpoint per turn plus health.
type Server struct {
	cfg    *config.Config
	engine *orchestrator.Engine
	store  session.Store
	client *upgrade.Client
}

// New wires the HTTP shell around an engine.
func New(cfg *config.Config, engine *orchestrator.Engine, store session.Store, client *upgrade.Client) *Server {
	return &Server{cfg: cfg, engine: engine, store: store, client: client}
}

// Router builds the gin handler tree.
func (s *Server) Router(ctx context.Context) *gin.Engine {
	if s.cfg.Runtime.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(ctx))

	r.GET("/healthz", s.handleHealth)
	api := r.Group("/api/v0")
	{
		api.POST("/chat", s.handleChat)
	}
	return r
}

// Run serves until the context is cancelled or a termination signal
// arrives, then drains in-flight turns.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.FromContext(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:           s.Router(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// requestLogger attaches the process logger to each request context and
// logs one line per request.
func requestLogger(ctx context.Context) gin.HandlerFunc {
	log := logger.FromContext(ctx)
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(logger.ContextWithLogger(c.Request.Context(), log))
		c.Next()
		log.Debug("request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
