// Package browser drives the headless browser engine. The capture code depends on
// the Launcher, Session and Page interfaces; Chrome implements them with chromedp.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrTLSProtocol marks a navigation that failed during the TLS handshake
// (net::ERR_SSL_PROTOCOL_ERROR).
var ErrTLSProtocol = errors.New("tls protocol error")

// MobileUserAgent is sent for mobile-flagged viewports.
const MobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/604.1"

// Viewport is the emulated window.
type Viewport struct {
	Width  int64
	Height int64
	Mobile bool
}

type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
)

// ScreenshotOptions controls an image capture. Quality applies to JPEG only.
type ScreenshotOptions struct {
	Format   ImageFormat
	Quality  int
	FullPage bool
}

// Launcher starts isolated browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is one browser instance. Close must release it and is safe to call twice.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab.
type Page interface {
	SetViewport(ctx context.Context, vp Viewport) error
	SetUserAgent(ctx context.Context, userAgent string) error
	// Navigate loads url and returns once DOMContentLoaded fired or timeout elapsed.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Evaluate runs script in the page and discards its result.
	Evaluate(ctx context.Context, script string) error
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	// PDF prints the page as A4 with backgrounds.
	PDF(ctx context.Context) ([]byte, error)
}
