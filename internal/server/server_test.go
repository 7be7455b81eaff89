package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaocaoooo/yemoshot/internal/capture"
	"github.com/xiaocaoooo/yemoshot/internal/config"
	"github.com/xiaocaoooo/yemoshot/internal/observability"
	"github.com/xiaocaoooo/yemoshot/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCapturer struct {
	result *capture.Result
	err    error
	got    []capture.Request
}

func (f *fakeCapturer) Capture(ctx context.Context, req capture.Request) (*capture.Result, error) {
	f.got = append(f.got, req)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("capture context has no deadline")
	}
	return f.result, f.err
}

type fakeChecker struct {
	mode string
	err  error
}

func (p fakeChecker) Mode() string { return p.mode }

func (p fakeChecker) Check(ctx context.Context) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "ws://chrome:9222/devtools/browser/x", nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	public := t.TempDir()
	return &config.Config{
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 3000},
		Storage:   config.StorageConfig{PublicDir: public, OutputDir: filepath.Join(public, "files"), MaxAge: 24 * time.Hour, SweepInterval: time.Hour},
		RateLimit: config.RateLimitConfig{Enabled: true, Window: 5 * time.Minute, MaxRequests: 100, Ban: 5 * time.Minute, TrustForwardedFor: true},
		Capture:   config.CaptureConfig{NavigationTimeout: 15 * time.Second, DefaultDelay: 5 * time.Second, MaxDelay: 30 * time.Second, RequestTimeout: 2 * time.Minute, JPEGQuality: 80},
		Metrics:   config.MetricsConfig{Enabled: true},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, capt Capturer) *Server {
	t.Helper()
	limiter := ratelimit.New(ratelimit.Policy{
		Window:      cfg.RateLimit.Window,
		MaxRequests: cfg.RateLimit.MaxRequests,
		Ban:         cfg.RateLimit.Ban,
	})
	return New(Deps{
		Config:   cfg,
		Capturer: capt,
		Store:    capture.NewFileStore(cfg.Storage.OutputDir),
		Limiter:  limiter,
		Browser:  fakeChecker{mode: "remote"},
		Metrics:  observability.NewMetrics(),
	})
}

func postJSON(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/screenshot", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Host = "shots.example:3000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func TestScreenshot_Success(t *testing.T) {
	cfg := testConfig(t)
	capt := &fakeCapturer{result: &capture.Result{Filename: "capture-1.png", Format: capture.FormatPNG, Target: "http://example.com"}}
	s := newTestServer(t, cfg, capt)

	w, body := postJSON(t, s.Handler(), `{"url":"example.com","deviceType":"iphone-14","fullPage":"true"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, true, body["status"])
	assert.Equal(t, "png", body["format"])
	assert.Equal(t, "Capture Success", body["message"])
	assert.Equal(t, map[string]any{
		"filename": "capture-1.png",
		"url":      "http://shots.example:3000/files/capture-1.png",
		"expires":  "24 hours",
	}, body["data"])

	require.Len(t, capt.got, 1)
	assert.Equal(t, "iphone-14", capt.got[0].DeviceType)
	assert.True(t, bool(capt.got[0].FullPage))
}

func TestScreenshot_PublicBaseURLAndOffline(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.PublicBaseURL = "https://cdn.example/"
	capt := &fakeCapturer{result: &capture.Result{Filename: "capture-2.pdf", Format: capture.FormatPDF, NavigationFailed: true}}
	s := newTestServer(t, cfg, capt)

	_, body := postJSON(t, s.Handler(), `{"url":"down.example","format":"pdf"}`)
	assert.Equal(t, "Captured (Site Offline)", body["message"])
	assert.Equal(t, "https://cdn.example/files/capture-2.pdf", body["data"].(map[string]any)["url"])
}

func TestScreenshot_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		want       string
	}{
		{name: "missing url", body: `{}`, wantStatus: 400, want: `{"status":false,"message":"URL required"}`},
		{name: "empty body", body: ``, wantStatus: 400, want: `{"status":false,"message":"URL required"}`},
		{name: "bad format", body: `{"url":"a.com","format":"gif"}`, wantStatus: 400, want: `{"status":false,"message":"Invalid format. Use png, jpeg, or pdf."}`},
		{name: "malformed", body: `{"url":`, wantStatus: 400, want: `{"status":false,"message":"Invalid JSON body"}`},
		{
			name: "capture failed", body: `{"url":"a.com"}`, err: fmt.Errorf("%w: boom", capture.ErrCaptureFailed),
			wantStatus: 200, want: `{"status":false,"message":"Capture sequence failed","customError":true}`,
		},
		{
			name: "launch failed", body: `{"url":"a.com"}`, err: errors.New("launch browser: no chrome"),
			wantStatus: 200, want: `{"status":false,"message":"launch browser: no chrome","customError":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig(t), &fakeCapturer{err: tt.err})
			w, _ := postJSON(t, s.Handler(), tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}

func TestAPI_RateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.MaxRequests = 2
	s := newTestServer(t, cfg, &fakeCapturer{})

	get := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
		req.Header.Set("X-Forwarded-For", "198.51.100.4")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, get().Code)
	require.Equal(t, http.StatusOK, get().Code)
	w := get()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "300", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"customError":true`)

	// Routes outside /api are not limited.
	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.4")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_UnknownPathsCountAgainstLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.MaxRequests = 2
	s := newTestServer(t, cfg, &fakeCapturer{})

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Forwarded-For", "198.51.100.9")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		return w
	}

	w := get("/api/nope")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"status":false,"message":"Not found"}`, w.Body.String())
	require.Equal(t, http.StatusNotFound, get("/api").Code)

	w = get("/api/nope")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// The budget is shared with routed API calls.
	assert.Equal(t, http.StatusTooManyRequests, get("/api/devices").Code)
}

func TestDevices(t *testing.T) {
	s := newTestServer(t, testConfig(t), &fakeCapturer{})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/devices", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status bool `json:"status"`
		Data   []struct {
			Name   string `json:"name"`
			Width  int    `json:"width"`
			Mobile bool   `json:"isMobile"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Status)
	assert.Len(t, body.Data, 20)
}

func TestDownloadAndFiles(t *testing.T) {
	cfg := testConfig(t)
	s := newTestServer(t, cfg, &fakeCapturer{})
	name, err := s.deps.Store.Save("png", []byte("pngdata"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/"+name, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "pngdata", w.Body.String())

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/"+name, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pngdata", w.Body.String())

	for _, p := range []string{"/download/missing.png", "/download/.."} {
		w = httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, p)
		assert.JSONEq(t, `{"status":false,"message":"File not found"}`, w.Body.String())
	}
}

func TestDocs(t *testing.T) {
	cfg := testConfig(t)
	s := newTestServer(t, cfg, &fakeCapturer{})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "POST /api/screenshot")

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.PublicDir, "docs.html"), []byte("<h1>custom</h1>"), 0o644))
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs", nil))
	assert.Equal(t, "<h1>custom</h1>", w.Body.String())
}

func TestPublicFallback(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.PublicDir, "index.html"), []byte("home"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.PublicDir, "app.js"), []byte("js"), 0o644))
	s := newTestServer(t, cfg, &fakeCapturer{})

	for path, want := range map[string]string{"/": "home", "/app.js": "js"} {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, want, w.Body.String(), path)
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"status":false,"message":"Not found"}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	cfg := testConfig(t)
	s := newTestServer(t, cfg, &fakeCapturer{})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "remote", body["browser_mode"])
	assert.Equal(t, true, body["output_dir_writable"])

	s.deps.Browser = fakeChecker{mode: "remote", err: errors.New("endpoint unreachable")}
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "endpoint unreachable")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig(t), &fakeCapturer{})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `yemoshot_http_requests_total{method="GET",route="/health",status="200"} 1`)
}
