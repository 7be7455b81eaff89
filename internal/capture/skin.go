package capture

import (
	"context"
	"fmt"

	"github.com/xiaocaoooo/yemoshot/internal/browser"
)

// Decorator restyles a loaded page before it is captured.
type Decorator interface {
	Decorate(ctx context.Context, page browser.Page) error
}

// DecoratorFunc adapts a plain function to Decorator.
type DecoratorFunc func(ctx context.Context, page browser.Page) error

func (f DecoratorFunc) Decorate(ctx context.Context, page browser.Page) error {
	return f(ctx, page)
}

// DefaultDecorators maps device types to the window chrome drawn around the page.
func DefaultDecorators() map[string]Decorator {
	return map[string]Decorator{
		"macos-light": MacOSWindow(false),
		"macos-dark":  MacOSWindow(true),
	}
}

type windowPalette struct {
	background string
	titleBar   string
	border     string
	title      string
}

var (
	lightPalette = windowPalette{background: "#f0f0f0", titleBar: "#e8e8e8", border: "#d1d1d1", title: "#4d4d4d"}
	darkPalette  = windowPalette{background: "#1a1a1a", titleBar: "#2d2d2d", border: "#3d3d3d", title: "#e0e0e0"}
)

// MacOSWindow wraps the page body in a rounded window with a title bar and the
// three traffic-light buttons.
func MacOSWindow(dark bool) Decorator {
	p := lightPalette
	if dark {
		p = darkPalette
	}
	script := macOSWindowScript(p)
	return DecoratorFunc(func(ctx context.Context, page browser.Page) error {
		if err := page.Evaluate(ctx, script); err != nil {
			return fmt.Errorf("apply window chrome: %w", err)
		}
		return nil
	})
}

func macOSWindowScript(p windowPalette) string {
	return fmt.Sprintf(`(() => {
  if (document.getElementById('__yemoshot_window')) return;
  const body = document.body;
  if (!body) return;

  const style = document.createElement('style');
  style.textContent = [
    'html, body { margin: 0 !important; padding: 0 !important; }',
    'body { background: %[1]s !important; min-height: 100vh; box-sizing: border-box; padding: 40px !important; }',
    '#__yemoshot_window { border-radius: 10px; overflow: hidden; border: 1px solid %[3]s; box-shadow: 0 20px 50px rgba(0,0,0,0.35); background: #fff; }',
    '#__yemoshot_bar { height: 28px; display: flex; align-items: center; padding: 0 12px; background: %[2]s; border-bottom: 1px solid %[3]s; position: relative; }',
    '#__yemoshot_bar span.dot { width: 12px; height: 12px; border-radius: 50%%; margin-right: 8px; display: inline-block; }',
    '#__yemoshot_bar .title { position: absolute; left: 0; right: 0; text-align: center; font: 13px -apple-system, BlinkMacSystemFont, sans-serif; color: %[4]s; pointer-events: none; }',
    '#__yemoshot_content { overflow: hidden; }'
  ].join('\n');
  document.head.appendChild(style);

  const frame = document.createElement('div');
  frame.id = '__yemoshot_window';
  const bar = document.createElement('div');
  bar.id = '__yemoshot_bar';
  for (const color of ['#ff5f56', '#ffbd2e', '#27c93f']) {
    const dot = document.createElement('span');
    dot.className = 'dot';
    dot.style.background = color;
    bar.appendChild(dot);
  }
  const title = document.createElement('div');
  title.className = 'title';
  title.textContent = document.title || location.host;
  bar.appendChild(title);

  const content = document.createElement('div');
  content.id = '__yemoshot_content';
  while (body.firstChild) content.appendChild(body.firstChild);

  frame.appendChild(bar);
  frame.appendChild(content);
  body.appendChild(frame);
})();`, p.background, p.titleBar, p.border, p.title)
}
