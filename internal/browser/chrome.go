package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	defaultDialTimeout = 30 * time.Second
	closeTimeout       = 5 * time.Second

	// A4 in inches.
	a4Width  = 8.27
	a4Height = 11.69
)

// ErrDialTimeout is returned when the browser did not come up within the dial timeout.
var ErrDialTimeout = errors.New("browser dial timeout")

// Options configures Chrome.
type Options struct {
	// ExecPath overrides Chrome discovery for local launches.
	ExecPath string
	Headless bool

	// RemoteURL or BrowserlessURL switch to attaching to an external browser.
	RemoteURL      string
	BrowserlessURL string

	DialTimeout time.Duration
	Logger      *zap.Logger
}

// Chrome launches sessions either as local processes or against a remote DevTools endpoint.
type Chrome struct {
	opts     Options
	resolver *Resolver
	logger   *zap.Logger
}

func NewChrome(opts Options) *Chrome {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Chrome{
		opts: opts,
		resolver: &Resolver{
			WSEndpoint:     opts.RemoteURL,
			BrowserlessURL: opts.BrowserlessURL,
			Client:         &http.Client{Timeout: 5 * time.Second},
			Logger:         opts.Logger,
		},
		logger: opts.Logger,
	}
}

// Mode is "remote" or "local".
func (c *Chrome) Mode() string {
	if c.resolver.Configured() {
		return "remote"
	}
	return "local"
}

// Check verifies that a session could be started: the remote endpoint resolves,
// or a Chrome binary is available locally. It opens no remote targets.
func (c *Chrome) Check(ctx context.Context) (string, error) {
	if c.resolver.Configured() {
		return c.resolver.Lookup(ctx)
	}
	if c.opts.ExecPath != "" {
		if _, err := os.Stat(c.opts.ExecPath); err != nil {
			return "", fmt.Errorf("chrome exec path: %w", err)
		}
		return c.opts.ExecPath, nil
	}
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", errors.New("no chrome executable found in PATH")
}

// execOptions launches Chrome without the OS sandbox and ignoring certificate
// errors. Capture targets are untrusted; the sandbox is disabled so the service
// runs inside unprivileged containers.
func (c *Chrome) execOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.IgnoreCertErrors,
		chromedp.Flag("allow-running-insecure-content", true),
		chromedp.Flag("allow-insecure-localhost", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WSURLReadTimeout(c.opts.DialTimeout),
	)
	if c.opts.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if c.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.ExecPath))
	}
	return opts
}

// Launch starts a browser and opens its first tab. The returned session is
// bound to ctx: cancelling ctx tears the browser down as well.
func (c *Chrome) Launch(ctx context.Context) (Session, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
		remote      bool
		release     func() error
	)
	if c.resolver.Configured() {
		target, err := c.resolver.Resolve(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve devtools endpoint: %w", err)
		}
		c.logger.Debug("attaching to remote browser",
			zap.String("ws", target.WebSocketURL), zap.String("target", target.ID))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, target.WebSocketURL)
		remote = true
		if target.ID != "" {
			release = func() error {
				rctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				return c.resolver.Release(rctx, target)
			}
		}
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, c.execOptions()...)
	}

	sugar := c.logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(sugar.Debugf),
	)

	s := &chromeSession{
		ctx:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		remote:      remote,
		release:     release,
	}

	// The first Run allocates the browser and must not carry a deadline, since
	// that deadline would outlive the dial and kill the process. A watchdog
	// cancels the tab instead.
	watchdog := time.AfterFunc(c.opts.DialTimeout, tabCancel)
	err := chromedp.Run(tabCtx, security.SetIgnoreCertificateErrors(true))
	if !watchdog.Stop() {
		err = fmt.Errorf("%w after %s", ErrDialTimeout, c.opts.DialTimeout)
	}
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

type chromeSession struct {
	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	remote      bool
	// release closes the remote target opened for this session, if any.
	release func() error

	closeOnce sync.Once
	closeErr  error
}

// NewPage returns the session's initial tab.
func (s *chromeSession) NewPage(ctx context.Context) (Page, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, fmt.Errorf("session closed: %w", err)
	}
	return &chromePage{ctx: s.ctx}, nil
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		if !s.remote {
			// Graceful Browser.close for local processes; bounded so a hung
			// browser still gets killed by the allocator cancel below.
			ctx, cancel := context.WithTimeout(s.ctx, closeTimeout)
			if err := chromedp.Cancel(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = err
			}
			cancel()
		}
		s.tabCancel()
		s.allocCancel()
		if s.release != nil {
			if err := s.release(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

type chromePage struct {
	ctx context.Context
}

// scope derives a chromedp context from the tab that also ends when ctx ends.
func (p *chromePage) scope(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(p.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(p.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromePage) SetViewport(ctx context.Context, vp Viewport) error {
	runCtx, cancel := p.scope(ctx, 0)
	defer cancel()

	return chromedp.Run(runCtx,
		emulation.SetDeviceMetricsOverride(vp.Width, vp.Height, 1, vp.Mobile),
		emulation.SetTouchEmulationEnabled(vp.Mobile),
	)
}

func (p *chromePage) SetUserAgent(ctx context.Context, userAgent string) error {
	runCtx, cancel := p.scope(ctx, 0)
	defer cancel()

	return chromedp.Run(runCtx, emulation.SetUserAgentOverride(userAgent))
}

// Navigate waits for DOMContentLoaded rather than the load event, so slow
// subresources do not hold up the capture.
func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	runCtx, cancel := p.scope(ctx, timeout)
	defer cancel()

	loaded := make(chan struct{})
	var once sync.Once
	chromedp.ListenTarget(runCtx, func(ev any) {
		if _, ok := ev.(*page.EventDomContentEventFired); ok {
			once.Do(func() { close(loaded) })
		}
	})

	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		return nil
	}))
	if err != nil {
		return classifyNavigationError(url, err)
	}

	select {
	case <-loaded:
		return nil
	case <-runCtx.Done():
		return fmt.Errorf("navigate %s: waiting for DOMContentLoaded: %w", url, runCtx.Err())
	}
}

func classifyNavigationError(url string, err error) error {
	if strings.Contains(err.Error(), "ERR_SSL_PROTOCOL_ERROR") {
		return fmt.Errorf("navigate %s: %w: %v", url, ErrTLSProtocol, err)
	}
	return fmt.Errorf("navigate %s: %w", url, err)
}

func (p *chromePage) Evaluate(ctx context.Context, script string) error {
	runCtx, cancel := p.scope(ctx, 0)
	defer cancel()

	return chromedp.Run(runCtx, chromedp.Evaluate(script, nil))
}

func (p *chromePage) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	runCtx, cancel := p.scope(ctx, 0)
	defer cancel()

	var img []byte
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().WithFromSurface(true).WithFormat(captureFormat(opts.Format))
		if opts.Format == FormatJPEG && opts.Quality > 0 {
			params = params.WithQuality(int64(opts.Quality))
		}

		if opts.FullPage {
			_, _, contentSize, _, _, _, err := page.GetLayoutMetrics().Do(ctx)
			if err != nil {
				return err
			}
			if contentSize == nil || contentSize.Width <= 0 || contentSize.Height <= 0 {
				return errors.New("failed to get layout metrics content size")
			}
			params = params.
				WithCaptureBeyondViewport(true).
				WithClip(&page.Viewport{X: 0, Y: 0, Width: contentSize.Width, Height: contentSize.Height, Scale: 1})
		}

		buf, err := params.Do(ctx)
		if err != nil {
			return err
		}
		img = buf
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return img, nil
}

func (p *chromePage) PDF(ctx context.Context) ([]byte, error) {
	runCtx, cancel := p.scope(ctx, 0)
	defer cancel()

	var buf []byte
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPaperWidth(a4Width).
			WithPaperHeight(a4Height).
			Do(ctx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return buf, nil
}

func captureFormat(format ImageFormat) page.CaptureScreenshotFormat {
	if format == FormatJPEG {
		return page.CaptureScreenshotFormatJpeg
	}
	return page.CaptureScreenshotFormatPng
}
