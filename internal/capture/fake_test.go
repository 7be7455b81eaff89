package capture_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xiaocaoooo/yemoshot/internal/browser"
)

// fakeLauncher hands out scripted sessions and tracks how many are still open.
type fakeLauncher struct {
	launchErr error
	page      *fakePage

	launched atomic.Int32
	open     atomic.Int32
}

func (l *fakeLauncher) Launch(ctx context.Context) (browser.Session, error) {
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	l.launched.Add(1)
	l.open.Add(1)
	return &fakeSession{launcher: l}, nil
}

type fakeSession struct {
	launcher *fakeLauncher
	once     sync.Once
}

func (s *fakeSession) NewPage(ctx context.Context) (browser.Page, error) {
	if s.launcher.page == nil {
		s.launcher.page = &fakePage{}
	}
	return s.launcher.page, nil
}

func (s *fakeSession) Close() error {
	s.once.Do(func() { s.launcher.open.Add(-1) })
	return nil
}

// fakePage records what the orchestrator asked of it. navErrs is consumed one
// entry per Navigate call; missing entries mean success.
type fakePage struct {
	mu sync.Mutex

	navErrs       []error
	screenshotErr error
	pdfErr        error
	panicOnShot   bool

	viewport    browser.Viewport
	userAgent   string
	navigations []string
	scripts     []string
	shots       []browser.ScreenshotOptions
	pdfs        int
}

func (p *fakePage) SetViewport(ctx context.Context, vp browser.Viewport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewport = vp
	return nil
}

func (p *fakePage) SetUserAgent(ctx context.Context, ua string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userAgent = ua
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.navigations)
	p.navigations = append(p.navigations, url)
	if i < len(p.navErrs) {
		return p.navErrs[i]
	}
	return nil
}

func (p *fakePage) Evaluate(ctx context.Context, script string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, script)
	return nil
}

func (p *fakePage) Screenshot(ctx context.Context, opts browser.ScreenshotOptions) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicOnShot {
		panic("renderer crashed")
	}
	p.shots = append(p.shots, opts)
	if p.screenshotErr != nil {
		return nil, p.screenshotErr
	}
	return []byte("image-" + string(opts.Format)), nil
}

func (p *fakePage) PDF(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pdfs++
	if p.pdfErr != nil {
		return nil, p.pdfErr
	}
	return []byte("%PDF-1.4"), nil
}

var errTimeout = errors.New("navigation timeout")
