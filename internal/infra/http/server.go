package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/openctemio/reposcan/internal/config"
	"github.com/openctemio/reposcan/internal/infra/http/middleware"
	"github.com/openctemio/reposcan/pkg/logger"
)

// Server owns the HTTP listener and the global middleware stack.
type Server struct {
	httpServer     *http.Server
	router         Router
	config         *config.Config
	logger         *logger.Logger
	tracerProvider trace.TracerProvider
	cleanupFuncs   []func()
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRouter replaces the default chi router.
func WithRouter(r Router) ServerOption {
	return func(s *Server) { s.router = r }
}

// WithTracerProvider sets the provider used for request spans.
func WithTracerProvider(tp trace.TracerProvider) ServerOption {
	return func(s *Server) { s.tracerProvider = tp }
}

// NewServer builds the server and installs global middleware, outermost first.
// Body limits are per route group since uploads get a larger cap.
func NewServer(cfg *config.Config, log *logger.Logger, opts ...ServerOption) *Server {
	s := &Server{config: cfg, logger: log}
	for _, opt := range opts {
		opt(s)
	}
	if s.router == nil {
		s.router = NewChiRouter()
	}

	rateLimit, stopRateLimit := middleware.RateLimit(cfg.RateLimit, log)
	s.cleanupFuncs = append(s.cleanupFuncs, stopRateLimit)

	s.router.Use(
		middleware.RequestID(),
		middleware.Recovery(log, cfg.IsProduction()),
		middleware.Tracing(s.tracerProvider),
		middleware.Logger(log, middleware.LoggerConfig{
			SkipPaths:            middleware.DefaultLoggerConfig().SkipPaths,
			SlowRequestThreshold: time.Duration(cfg.Log.SlowRequestSeconds) * time.Second,
		}),
		middleware.Metrics(),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
			HSTSEnabled:           cfg.IsProduction(),
			HSTSIncludeSubdomains: true,
		}),
		middleware.CORS(cfg.CORS),
		rateLimit,
		middleware.Timeout(cfg.Server.RequestTimeout),
	)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           s.router.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       time.Minute,
	}
	return s
}

// Router returns the router for registering routes.
func (s *Server) Router() Router {
	return s.router
}

// Handler returns the root handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// LogRoutes logs the number of registered routes and, at debug, each one.
func (s *Server) LogRoutes() {
	count := 0
	_ = s.router.Walk(func(method, path string) error {
		count++
		s.logger.Debug("route", "method", method, "path", path)
		return nil
	})
	s.logger.Info("routes registered", "count", count)
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	for _, cleanup := range s.cleanupFuncs {
		cleanup()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
