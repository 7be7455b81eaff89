// Package capture turns a screenshot request into a stored artifact: it resolves
// the viewport, drives one isolated browser session and persists the result.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xiaocaoooo/yemoshot/internal/browser"
	"github.com/xiaocaoooo/yemoshot/internal/device"
	"github.com/xiaocaoooo/yemoshot/internal/observability"
)

// ErrCaptureFailed is returned when the browser could not produce or the store
// could not persist the artifact.
var ErrCaptureFailed = errors.New("capture sequence failed")

const (
	DefaultNavigationTimeout = 15 * time.Second
	DefaultDelay             = 5 * time.Second
	DefaultMaxDelay          = 30 * time.Second
	DefaultJPEGQuality       = 80
)

// Options tunes an Orchestrator. Zero values fall back to the defaults above.
type Options struct {
	NavigationTimeout time.Duration
	DefaultDelay      time.Duration
	MaxDelay          time.Duration
	JPEGQuality       int
	Decorators        map[string]Decorator
	Sleep             func(ctx context.Context, d time.Duration) error
	Logger            *zap.Logger
	Metrics           *observability.Metrics
}

// Result describes a stored capture.
type Result struct {
	Filename         string
	Format           Format
	Target           string
	NavigationFailed bool
}

func (r *Result) Message() string {
	if r.NavigationFailed {
		return "Captured (Site Offline)"
	}
	return "Capture Success"
}

// Orchestrator runs the capture sequence. It holds no per-request state and is
// safe for concurrent use; each call gets its own browser session.
type Orchestrator struct {
	launcher   browser.Launcher
	store      *FileStore
	decorators map[string]Decorator
	opts       Options
	logger     *zap.Logger
	metrics    *observability.Metrics
}

func NewOrchestrator(launcher browser.Launcher, store *FileStore, opts Options) *Orchestrator {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}
	if opts.DefaultDelay <= 0 {
		opts.DefaultDelay = DefaultDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Decorators == nil {
		opts.Decorators = DefaultDecorators()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		launcher:   launcher,
		store:      store,
		decorators: opts.Decorators,
		opts:       opts,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// Capture validates req, captures the page and stores the artifact. Validation
// problems come back as *ValidationError before any browser is started.
func (o *Orchestrator) Capture(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	format := Format(req.Format)
	profile := device.Resolve(req.DeviceType, req.CustomWidth.Int(), req.CustomHeight.Int())
	delay := req.DelayDuration(o.opts.DefaultDelay, o.opts.MaxDelay)

	start := time.Now()
	outcome := "error"
	defer func() {
		o.metrics.ObserveCapture(string(format), outcome, time.Since(start))
	}()

	logger := o.logger.With(
		zap.String("url", req.URL),
		zap.String("device", profile.Name),
		zap.String("format", string(format)),
	)

	out, err := o.render(ctx, logger, req, format, profile, delay)
	if err != nil {
		if errors.Is(err, ErrCaptureFailed) {
			outcome = "failed"
		}
		return nil, err
	}

	name, err := o.store.Save(format.Extension(), out.data)
	if err != nil {
		outcome = "failed"
		logger.Error("persist capture", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	outcome = "success"
	if out.navFailed {
		outcome = "offline"
	}
	logger.Info("capture stored",
		zap.String("file", name),
		zap.Bool("navigation_failed", out.navFailed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &Result{
		Filename:         name,
		Format:           format,
		Target:           out.target,
		NavigationFailed: out.navFailed,
	}, nil
}

type rendering struct {
	data      []byte
	target    string
	navFailed bool
}

// render owns the browser session for one capture and releases it on every path.
func (o *Orchestrator) render(ctx context.Context, logger *zap.Logger, req Request, format Format, profile device.Profile, delay time.Duration) (*rendering, error) {
	session, err := o.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	o.metrics.SessionOpened()
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("close browser session", zap.Error(err))
		}
		o.metrics.SessionClosed()
	}()

	page, err := session.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	vp := browser.Viewport{Width: int64(profile.Width), Height: int64(profile.Height), Mobile: profile.Mobile}
	if err := page.SetViewport(ctx, vp); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	if profile.Mobile {
		if err := page.SetUserAgent(ctx, browser.MobileUserAgent); err != nil {
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}

	target := NormalizeURL(req.URL)
	target, navFailed := o.navigate(ctx, logger, page, target)

	if !navFailed && delay > 0 {
		if err := o.opts.Sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("wait after load: %w", err)
		}
	}

	decorated := false
	if dec, ok := o.decorators[req.DeviceType]; ok && format != FormatPDF {
		if err := dec.Decorate(ctx, page); err != nil {
			return nil, err
		}
		decorated = true
	}

	var data []byte
	if format == FormatPDF {
		data, err = page.PDF(ctx)
	} else {
		opts := browser.ScreenshotOptions{
			Format:   browser.FormatPNG,
			FullPage: bool(req.FullPage) && !navFailed && !decorated,
		}
		if format == FormatJPEG {
			opts.Format = browser.FormatJPEG
			opts.Quality = o.opts.JPEGQuality
		}
		data, err = page.Screenshot(ctx, opts)
	}
	if err != nil {
		logger.Error("capture page", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	return &rendering{data: data, target: target, navFailed: navFailed}, nil
}

// navigate loads target, retrying once over plain http when an https handshake
// fails. It reports the URL that was finally loaded and whether navigation failed.
func (o *Orchestrator) navigate(ctx context.Context, logger *zap.Logger, page browser.Page, target string) (string, bool) {
	err := page.Navigate(ctx, target, o.opts.NavigationTimeout)
	if err == nil {
		return target, false
	}

	if errors.Is(err, browser.ErrTLSProtocol) && strings.HasPrefix(target, "https://") {
		fallback := "http://" + strings.TrimPrefix(target, "https://")
		logger.Info("tls handshake failed, retrying over http", zap.String("fallback", fallback))
		err = page.Navigate(ctx, fallback, o.opts.NavigationTimeout)
		if err == nil {
			return fallback, false
		}
		logger.Warn("navigation failed", zap.String("target", fallback), zap.Error(err))
		return fallback, true
	}

	logger.Warn("navigation failed", zap.String("target", target), zap.Error(err))
	return target, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
