// Package server exposes the capture API, artifact downloads and the static
// public directory over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xiaocaoooo/yemoshot/internal/capture"
	"github.com/xiaocaoooo/yemoshot/internal/config"
	"github.com/xiaocaoooo/yemoshot/internal/observability"
	"github.com/xiaocaoooo/yemoshot/internal/ratelimit"
)

// Capturer runs one capture request.
type Capturer interface {
	Capture(ctx context.Context, req capture.Request) (*capture.Result, error)
}

// BrowserChecker reports how sessions are started and whether that works right now.
type BrowserChecker interface {
	Mode() string
	Check(ctx context.Context) (string, error)
}

// Deps are the collaborators the HTTP layer needs. Limiter, Browser and Metrics may be nil.
type Deps struct {
	Config   *config.Config
	Capturer Capturer
	Store    *capture.FileStore
	Limiter  *ratelimit.Limiter
	Browser  BrowserChecker
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// Server represents the HTTP server
type Server struct {
	deps   Deps
	cfg    *config.Config
	engine *gin.Engine
	server *http.Server
	logger *zap.Logger
}

// New creates a new HTTP server instance
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := &Server{
		deps:   deps,
		cfg:    deps.Config,
		engine: gin.New(),
		logger: deps.Logger.Named("http"),
	}
	s.engine.RedirectTrailingSlash = false
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port)),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr),
		zap.String("output_dir", s.cfg.Storage.OutputDir),
	)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Addr() string {
	return s.server.Addr
}
