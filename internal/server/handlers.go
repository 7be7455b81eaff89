package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xiaocaoooo/yemoshot/internal/capture"
	"github.com/xiaocaoooo/yemoshot/internal/device"
	"github.com/xiaocaoooo/yemoshot/internal/humanize"
	"github.com/xiaocaoooo/yemoshot/internal/server/middleware"
)

const healthCheckTimeout = 2 * time.Second

func (s *Server) handleScreenshot(c *gin.Context) {
	var req capture.Request
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"status": false, "message": "Invalid JSON body"})
		return
	}

	// A client disconnect does not abort the capture; request_timeout bounds it.
	ctx := context.WithoutCancel(c.Request.Context())
	if d := s.cfg.Capture.RequestTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	res, err := s.deps.Capturer.Capture(ctx, req)
	if err != nil {
		var verr *capture.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"status": false, "message": verr.Message})
		case errors.Is(err, capture.ErrCaptureFailed):
			_ = c.Error(err)
			c.JSON(http.StatusOK, gin.H{"status": false, "message": "Capture sequence failed", "customError": true})
		default:
			_ = c.Error(err)
			s.logger.Error("capture request failed",
				zap.String("request_id", middleware.GetRequestID(c)),
				zap.Error(err),
			)
			c.JSON(http.StatusOK, gin.H{"status": false, "message": err.Error(), "customError": true})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  true,
		"format":  res.Format,
		"message": res.Message(),
		"data": gin.H{
			"filename": res.Filename,
			"url":      s.fileURL(c, res.Filename),
			"expires":  humanize.Duration(s.cfg.Storage.MaxAge),
		},
	})
}

func (s *Server) handleDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": true, "data": device.All()})
}

func (s *Server) handleDownload(c *gin.Context) {
	name := c.Param("filename")
	p, err := s.deps.Store.Lookup(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": false, "message": "File not found"})
		return
	}
	c.FileAttachment(p, name)
}

func (s *Server) handleDocs(c *gin.Context) {
	custom := filepath.Join(s.cfg.Storage.PublicDir, "docs.html")
	if info, err := os.Stat(custom); err == nil && info.Mode().IsRegular() {
		c.File(custom)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", docsPage)
}

// handleHealth reports 503 when captures cannot currently succeed.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	payload := gin.H{
		"time":       time.Now().UTC().Format(time.RFC3339),
		"output_dir": s.cfg.Storage.OutputDir,
	}
	healthy := true

	if err := checkWritable(s.cfg.Storage.OutputDir); err != nil {
		healthy = false
		payload["output_dir_writable"] = false
		payload["output_dir_error"] = err.Error()
	} else {
		payload["output_dir_writable"] = true
	}

	if s.deps.Browser != nil {
		payload["browser_mode"] = s.deps.Browser.Mode()
		endpoint, err := s.deps.Browser.Check(ctx)
		payload["browser_available"] = err == nil
		if err != nil {
			healthy = false
			payload["details"] = err.Error()
		} else {
			payload["browser_endpoint"] = endpoint
		}
	}

	status := http.StatusOK
	payload["status"] = "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		payload["status"] = "degraded"
	}
	c.JSON(status, payload)
}

// handleAPINotFound answers unknown /api paths, counting them against the
// limiter like routed API calls. Other paths fall through to handlePublic.
func (s *Server) handleAPINotFound(c *gin.Context) {
	p := c.Request.URL.Path
	if p != "/api" && !strings.HasPrefix(p, "/api/") {
		return
	}
	if s.apiLimited() && !middleware.Admit(c, s.deps.Limiter, s.cfg.RateLimit.TrustForwardedFor, s.deps.Metrics) {
		return
	}
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"status": false, "message": "Not found"})
}

// handlePublic serves GET requests for unrouted paths out of the public directory.
func (s *Server) handlePublic(c *gin.Context) {
	if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
		clean := path.Clean("/" + c.Request.URL.Path)
		p := filepath.Join(s.cfg.Storage.PublicDir, filepath.FromSlash(clean))
		if info, err := os.Stat(p); err == nil {
			if info.IsDir() {
				p = filepath.Join(p, "index.html")
				info, err = os.Stat(p)
			}
			if err == nil && info.Mode().IsRegular() {
				c.File(p)
				return
			}
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"status": false, "message": "Not found"})
}

// fileURL builds the absolute /files link for name.
func (s *Server) fileURL(c *gin.Context, name string) string {
	if base := strings.TrimRight(s.cfg.Server.PublicBaseURL, "/"); base != "" {
		return base + "/files/" + name
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/files/%s", scheme, c.Request.Host, name)
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
