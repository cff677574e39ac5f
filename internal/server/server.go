package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"genrouter/internal/config"
	"genrouter/internal/core"
	"genrouter/internal/health"
	"genrouter/internal/metrics"
	"genrouter/internal/ratelimit"
	"genrouter/internal/registry"
	"genrouter/internal/router"

	"github.com/gin-gonic/gin"
)

// Options carries the components the HTTP boundary serves.
type Options struct {
	Config   config.ServerConfig
	Router   *router.Router
	Registry *registry.Registry
	Quotas   *ratelimit.ClassLimiter
	Health   *health.Aggregator
	Metrics  *metrics.MetricsService
	Verifier core.IdentityVerifier
	Logger   core.Logger
}

// Server application server
type Server struct {
	port    string
	ginMode string
	config  config.ServerConfig
	logger  core.Logger

	router   *gin.Engine
	gen      *router.Router
	registry *registry.Registry
	quotas   *ratelimit.ClassLimiter
	health   *health.Aggregator
	metrics  *metrics.MetricsService
	verifier core.IdentityVerifier

	ipLimiter *ratelimit.Limiter

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewServer creates a new server instance. The server takes ownership of
// the registry, quotas and metrics service and releases them in Close.
func NewServer(opts Options) (*Server, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts.Router == nil || opts.Registry == nil || opts.Quotas == nil {
		return nil, fmt.Errorf("router, registry and quotas are required")
	}
	if opts.Health == nil || opts.Metrics == nil {
		return nil, fmt.Errorf("health aggregator and metrics service are required")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("identity verifier is required")
	}

	cfg := opts.Config
	if cfg.IPRateLimit <= 0 {
		cfg.IPRateLimit = core.DefaultIPRateLimit
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = core.DefaultMaxBodySize
	}
	if cfg.CORSAllowOrigin == "" {
		cfg.CORSAllowOrigin = "*"
	}
	if cfg.GinMode == "" {
		cfg.GinMode = core.DefaultGinMode
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	server := &Server{
		port:           cfg.Port,
		ginMode:        cfg.GinMode,
		config:         cfg,
		logger:         opts.Logger,
		gen:            opts.Router,
		registry:       opts.Registry,
		quotas:         opts.Quotas,
		health:         opts.Health,
		metrics:        opts.Metrics,
		verifier:       opts.Verifier,
		ipLimiter:      ratelimit.New(),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	server.setupRoutes()

	return server, nil
}

// Handler exposes the gin engine.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run runs the server until SIGINT/SIGTERM or Close.
func (s *Server) Run() error {
	s.setupGracefulShutdown()

	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute, // video generation and SSE streams run long
	}

	go func() {
		<-s.shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("Server shutdown error: %v", err)
		}
	}()

	s.logger.Info("Server starting on port %s", s.port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) setupGracefulShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-quit:
			s.logger.Info("Shutdown signal received, shutting down gracefully...")
			s.shutdownCancel()
		case <-s.shutdownCtx.Done():
		}
		signal.Stop(quit)
	}()
}

// Close closes the server
func (s *Server) Close() error {
	if s.shutdownCancel != nil {
		s.shutdownCancel()
	}

	s.ipLimiter.Stop()
	s.quotas.Stop()
	s.registry.Stop()

	var closeErr error
	if err := s.metrics.Close(); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("close metrics service: %w", err))
	}
	return closeErr
}
