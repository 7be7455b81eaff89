package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/xiaocaoooo/yemoshot/internal/server/middleware"
)

func (s *Server) registerRoutes() {
	r := s.engine

	// RequestID -> AccessLog -> Recovery, so panics are still logged with their id.
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(s.logger, s.deps.Metrics))
	r.Use(middleware.Recovery(s.logger))
	r.Use(cors.Default())

	api := r.Group("/api")
	if s.apiLimited() {
		api.Use(middleware.RateLimit(s.deps.Limiter, s.cfg.RateLimit.TrustForwardedFor, s.deps.Metrics))
	}
	api.POST("/screenshot", s.handleScreenshot)
	api.GET("/devices", s.handleDevices)

	r.GET("/download/:filename", s.handleDownload)
	r.Static("/files", s.cfg.Storage.OutputDir)
	r.GET("/docs", s.handleDocs)
	r.GET("/health", s.handleHealth)

	if s.cfg.Metrics.Enabled && s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	r.NoRoute(s.handleAPINotFound, s.handlePublic)
}

func (s *Server) apiLimited() bool {
	return s.deps.Limiter != nil && s.cfg.RateLimit.Enabled
}
