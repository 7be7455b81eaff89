package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotConfigured is returned when neither a DevTools websocket nor a
// browserless HTTP endpoint is configured.
var ErrNotConfigured = errors.New("remote browser endpoint is not configured")

// Resolver turns the configured remote browser address into a DevTools websocket URL.
//
// WSEndpoint may be a full ws://host/devtools/browser/<id> URL, used as is, or a bare
// ws://host:port, in which case the HTTP discovery endpoints are consulted.
// BrowserlessURL is an http(s) base exposing /json/version, /json/new, /json/list and /json/close.
type Resolver struct {
	WSEndpoint     string
	BrowserlessURL string
	Client         *http.Client
	Logger         *zap.Logger
}

type versionPayload struct {
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

type targetPayload struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Configured reports whether any remote endpoint is set.
func (r *Resolver) Configured() bool {
	return strings.TrimSpace(r.WSEndpoint) != "" || strings.TrimSpace(r.BrowserlessURL) != ""
}

// Target is a resolved DevTools websocket. ID is set only when resolution opened
// a new target through /json/new; such targets must be handed back to Release.
type Target struct {
	WebSocketURL string
	ID           string

	base *url.URL
}

// Resolve returns a websocket URL chromedp can attach to, opening a target
// through /json/new when the browser does not advertise one.
func (r *Resolver) Resolve(ctx context.Context) (Target, error) {
	return r.resolve(ctx, true)
}

// Lookup resolves like Resolve but only reads /json/version and /json/list,
// so it never leaves a target behind on the remote browser.
func (r *Resolver) Lookup(ctx context.Context) (string, error) {
	t, err := r.resolve(ctx, false)
	if err != nil {
		return "", err
	}
	return t.WebSocketURL, nil
}

// Release closes a target opened by Resolve. Targets Resolve did not open are left alone.
func (r *Resolver) Release(ctx context.Context, t Target) error {
	if t.ID == "" || t.base == nil {
		return nil
	}
	target := discoveryURL(t.base, "/json/close/"+url.PathEscape(t.ID))
	resp, err := r.do(ctx, http.MethodGet, target)
	if err != nil {
		return fmt.Errorf("close target %s: %w", t.ID, err)
	}
	resp.Body.Close()
	return nil
}

func (r *Resolver) resolve(ctx context.Context, allowCreate bool) (Target, error) {
	if ws := strings.TrimSpace(r.WSEndpoint); ws != "" {
		if u, err := url.Parse(ws); err == nil && strings.HasPrefix(u.Path, "/devtools/browser/") {
			return Target{WebSocketURL: ws}, nil
		}

		httpBase, err := httpBaseFromWS(ws)
		if err != nil {
			return Target{}, fmt.Errorf("invalid websocket endpoint %q: %w", ws, err)
		}
		return r.viaVersion(ctx, httpBase, allowCreate)
	}

	raw := strings.TrimSpace(r.BrowserlessURL)
	if raw == "" {
		return Target{}, ErrNotConfigured
	}
	httpBase, err := parseHTTPBase(raw)
	if err != nil {
		return Target{}, err
	}
	return r.viaVersion(ctx, httpBase, allowCreate)
}

func (r *Resolver) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Resolver) client() *http.Client {
	if r.Client == nil {
		return &http.Client{Timeout: 5 * time.Second}
	}
	return r.Client
}

// viaVersion asks /json/version first. Some deployments answer with a bare
// ws://0.0.0.0:3000 that cannot be upgraded, so /json/new (when allowed) and
// /json/list are tried next.
func (r *Resolver) viaVersion(ctx context.Context, httpBase *url.URL, allowCreate bool) (Target, error) {
	var vr versionPayload
	if err := r.getJSON(ctx, http.MethodGet, discoveryURL(httpBase, "/json/version"), &vr); err != nil {
		return Target{}, err
	}

	raw := strings.TrimSpace(vr.WebSocketDebuggerURL)
	if hasDevToolsPath(raw) {
		ws, err := rewriteDebuggerURL(raw, httpBase)
		return Target{WebSocketURL: ws}, err
	}

	r.logger().Debug("json/version returned websocket without devtools path, trying fallbacks",
		zap.String("ws", raw), zap.Bool("open_target", allowCreate))

	if allowCreate {
		t, err := r.viaNew(ctx, httpBase)
		if err == nil {
			return t, nil
		}
		r.logger().Debug("json/new fallback failed", zap.Error(err))
	}

	ws, err := r.viaList(ctx, httpBase)
	if err == nil {
		return Target{WebSocketURL: ws}, nil
	}
	r.logger().Debug("json/list fallback failed", zap.Error(err))

	return Target{}, fmt.Errorf("/json/version returned non-devtools ws (%q) and discovery fallbacks failed", raw)
}

func (r *Resolver) viaNew(ctx context.Context, httpBase *url.URL) (Target, error) {
	var p targetPayload
	if err := r.getJSON(ctx, http.MethodPut, discoveryURL(httpBase, "/json/new"), &p); err != nil {
		return Target{}, err
	}
	t := Target{ID: p.ID, base: httpBase}
	if !hasDevToolsPath(p.WebSocketDebuggerURL) {
		_ = r.Release(ctx, t)
		return Target{}, fmt.Errorf("/json/new returned non-devtools ws: %q", strings.TrimSpace(p.WebSocketDebuggerURL))
	}
	ws, err := rewriteDebuggerURL(p.WebSocketDebuggerURL, httpBase)
	if err != nil {
		_ = r.Release(ctx, t)
		return Target{}, err
	}
	t.WebSocketURL = ws
	return t, nil
}

func (r *Resolver) viaList(ctx context.Context, httpBase *url.URL) (string, error) {
	var targets []targetPayload
	if err := r.getJSON(ctx, http.MethodGet, discoveryURL(httpBase, "/json/list"), &targets); err != nil {
		return "", err
	}
	for _, p := range targets {
		if !hasDevToolsPath(p.WebSocketDebuggerURL) {
			continue
		}
		if rewritten, err := rewriteDebuggerURL(p.WebSocketDebuggerURL, httpBase); err == nil {
			return rewritten, nil
		}
	}
	return "", fmt.Errorf("/json/list returned %d targets, none with a usable devtools ws", len(targets))
}

// do sends a discovery request and fails on non-2xx answers.
func (r *Resolver) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s %s returned %d: %s", method, target, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

func (r *Resolver) getJSON(ctx context.Context, method, target string, out any) error {
	resp, err := r.do(ctx, method, target)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// discoveryURL keeps any base path (reverse proxies) and drops query and fragment.
func discoveryURL(base *url.URL, path string) string {
	u := *base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func hasDevToolsPath(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, "/devtools/")
}

func parseHTTPBase(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid browserless url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid browserless url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid browserless url %q: missing host", raw)
	}
	return u, nil
}

func httpBaseFromWS(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return &url.URL{Scheme: scheme, Host: u.Host, Path: u.Path}, nil
}

// rewriteDebuggerURL forces the externally reachable host:port of httpBase onto a
// debugger URL, since containers often report their internal address.
func rewriteDebuggerURL(raw string, httpBase *url.URL) (string, error) {
	wsU, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid webSocketDebuggerUrl %q: %w", raw, err)
	}
	if wsU.Scheme == "" || wsU.Host == "" {
		return "", fmt.Errorf("invalid webSocketDebuggerUrl %q: missing scheme or host", raw)
	}

	port := httpBase.Port()
	switch httpBase.Scheme {
	case "http":
		wsU.Scheme = "ws"
		if port == "" {
			port = "80"
		}
	case "https":
		wsU.Scheme = "wss"
		if port == "" {
			port = "443"
		}
	default:
		return "", fmt.Errorf("unsupported scheme %q", httpBase.Scheme)
	}
	wsU.Host = net.JoinHostPort(httpBase.Hostname(), port)
	return wsU.String(), nil
}
