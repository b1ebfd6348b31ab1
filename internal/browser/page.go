// internal/browser/page.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/api/schemas"
	"github.com/xkilldash9x/puppetd/internal/session"
)

var _ session.Page = (*Page)(nil)

// defaultUserAgent is applied when neither a device profile nor a User-Agent
// header is configured.
const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_14_1) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/73.0.3683.75 Safari/537.36"

const (
	// keystrokeDelay is the per-character delay when filling inputs.
	keystrokeDelay = 100 * time.Millisecond
	// interactionNavTimeout bounds the navigation wait after a click.
	interactionNavTimeout = 10 * time.Second
	// networkQuietWindow is how long the network must stay below the idle
	// threshold before a networkidle condition is met.
	networkQuietWindow = 500 * time.Millisecond
)

// Page drives a single browser tab.
type Page struct {
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	// PDF rendering is not reentrant per page; serialize it.
	pdfMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

func newPage(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger) *Page {
	return &Page{logger: logger, ctx: ctx, cancel: cancel}
}

// opCtx derives an operation context from the tab context, bounded by the
// optional timeout and cancelled early when the caller's ctx is done.
func (p *Page) opCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var opctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		opctx, cancel = context.WithTimeout(p.ctx, timeout)
	} else {
		opctx, cancel = context.WithCancel(p.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return opctx, func() {
		stop()
		cancel()
	}
}

// Configure applies viewport, cache toggle, device emulation or user agent,
// and extra request headers. Must run before the first navigation.
func (p *Page) Configure(ctx context.Context, opts *schemas.GlobalOptions) error {
	opctx, cancel := p.opCtx(ctx, schemas.DefaultNavigationTimeout)
	defer cancel()

	headers := opts.HeaderMap()

	tasks := chromedp.Tasks{
		network.Enable(),
		network.SetCacheDisabled(!opts.IsPageCaching()),
	}

	if opts.Viewport != nil {
		tasks = append(tasks, chromedp.EmulateViewport(opts.Viewport.Width, opts.Viewport.Height))
	}

	if opts.Device != "" {
		if d, ok := LookupDevice(opts.Device); ok {
			tasks = append(tasks, chromedp.Emulate(d))
		} else {
			p.logger.Warn("Unknown device profile, falling back to default user agent",
				zap.String("device", opts.Device))
			tasks = append(tasks, emulation.SetUserAgentOverride(defaultUserAgent))
		}
	} else {
		ua := headers["User-Agent"]
		if ua == "" {
			ua = headers["user-agent"]
		}
		if ua == "" {
			ua = defaultUserAgent
		}
		tasks = append(tasks, emulation.SetUserAgentOverride(ua))
	}

	if len(headers) > 0 {
		h := make(network.Headers, len(headers))
		for k, v := range headers {
			h[k] = v
		}
		tasks = append(tasks, network.SetExtraHTTPHeaders(h))
	}

	if err := chromedp.Run(opctx, tasks); err != nil {
		return fmt.Errorf("failed to configure page: %w", err)
	}
	return nil
}

// Navigate opens the URL, waits for the wait-until condition, and returns
// the document response observed for the navigation's own frame. Iframe
// document responses never overwrite the main document's.
func (p *Page) Navigate(ctx context.Context, rawURL string, timeout time.Duration, waitUntil schemas.WaitUntil) (*schemas.PageResponse, error) {
	opctx, cancel := p.opCtx(ctx, timeout)
	defer cancel()

	tracker := newNavResponseTracker(rawURL)

	chromedp.ListenTarget(opctx, func(ev interface{}) {
		if ev, ok := ev.(*network.EventResponseReceived); ok && ev.Type == network.ResourceTypeDocument {
			tracker.Observe(ev.FrameID, schemas.PageResponse{
				URL:        ev.Response.URL,
				StatusCode: int(ev.Response.Status),
				Headers:    flattenHeaders(ev.Response.Headers),
			})
		}
	})

	wait := p.newNavWaiter(opctx, waitUntil)

	err := chromedp.Run(opctx, chromedp.ActionFunc(func(c context.Context) error {
		frameID, _, errorText, _, err := page.Navigate(rawURL).Do(c)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error: %s", errorText)
		}
		tracker.Commit(frameID)
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("navigation to %s failed: %w", rawURL, err)
	}
	if err := wait(); err != nil {
		return nil, fmt.Errorf("navigation to %s did not reach %q: %w", rawURL, waitUntil, err)
	}

	out := tracker.Response()
	return &out, nil
}

// navResponseTracker resolves which document response belongs to a
// navigation. Responses arrive keyed by frame before page.Navigate has told
// us the navigated frame id, so they are held per frame until Commit names
// the main frame; after that only matching-frame responses (the redirect
// chain) replace the result.
type navResponseTracker struct {
	mu      sync.Mutex
	main    cdp.FrameID
	pending map[cdp.FrameID]schemas.PageResponse
	resp    schemas.PageResponse
}

func newNavResponseTracker(rawURL string) *navResponseTracker {
	return &navResponseTracker{
		pending: make(map[cdp.FrameID]schemas.PageResponse),
		resp:    schemas.PageResponse{URL: rawURL},
	}
}

func (t *navResponseTracker) Observe(frameID cdp.FrameID, r schemas.PageResponse) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.main == "" {
		t.pending[frameID] = r
		return
	}
	if frameID == t.main {
		t.resp = r
	}
}

func (t *navResponseTracker) Commit(frameID cdp.FrameID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.main = frameID
	if r, ok := t.pending[frameID]; ok {
		t.resp = r
	}
	t.pending = nil
}

func (t *navResponseTracker) Response() schemas.PageResponse {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resp
}

// WaitNavigation awaits a navigation event on the current page, used by
// URL-less steps that still specify a wait-until condition.
func (p *Page) WaitNavigation(ctx context.Context, waitUntil schemas.WaitUntil, timeout time.Duration) error {
	opctx, cancel := p.opCtx(ctx, timeout)
	defer cancel()
	return p.newNavWaiter(opctx, waitUntil)()
}

// newNavWaiter registers listeners for the wait-until condition and returns
// a function that blocks until the condition is met. Listeners must be
// registered before the navigation is issued so no event is missed.
func (p *Page) newNavWaiter(opctx context.Context, waitUntil schemas.WaitUntil) func() error {
	switch waitUntil {
	case schemas.WaitUntilDOMContentLoaded:
		return waitForEvent(opctx, func(ev interface{}) bool {
			_, ok := ev.(*page.EventDomContentEventFired)
			return ok
		})
	case schemas.WaitUntilNetworkIdle0:
		return waitForNetworkIdle(opctx, 0)
	case schemas.WaitUntilNetworkIdle2:
		return waitForNetworkIdle(opctx, 2)
	default: // load
		return waitForEvent(opctx, func(ev interface{}) bool {
			_, ok := ev.(*page.EventLoadEventFired)
			return ok
		})
	}
}

func waitForEvent(opctx context.Context, match func(interface{}) bool) func() error {
	done := make(chan struct{})
	var once sync.Once
	chromedp.ListenTarget(opctx, func(ev interface{}) {
		if match(ev) {
			once.Do(func() { close(done) })
		}
	})
	return func() error {
		select {
		case <-done:
			return nil
		case <-opctx.Done():
			return opctx.Err()
		}
	}
}

// waitForNetworkIdle resolves once no more than maxInflight requests have
// been active for networkQuietWindow.
func waitForNetworkIdle(opctx context.Context, maxInflight int) func() error {
	var mu sync.Mutex
	inflight := 0
	last := time.Now()

	chromedp.ListenTarget(opctx, func(ev interface{}) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			inflight++
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if inflight > 0 {
				inflight--
			}
		default:
			return
		}
		last = time.Now()
	})

	return func() error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-opctx.Done():
				return opctx.Err()
			case <-ticker.C:
				mu.Lock()
				idle := inflight <= maxInflight && time.Since(last) >= networkQuietWindow
				mu.Unlock()
				if idle {
					return nil
				}
			}
		}
	}
}

// Sleep pauses for the given duration, respecting cancellation.
func (p *Page) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// WaitForSelector waits until an element matching the selector is present.
func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	opctx, cancel := p.opCtx(ctx, timeout)
	defer cancel()
	if err := chromedp.Run(opctx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("selector %q did not appear: %w", selector, err)
	}
	return nil
}

const (
	injectHTMLTemplate = `(async () => {
	const div = document.createElement("div");
	div.innerHTML = %s;
	document.body.appendChild(div);
	await Promise.resolve();
})()`
	injectCSSTemplate = `(async () => {
	const style = document.createElement("style");
	style.appendChild(document.createTextNode(%s));
	document.head.appendChild(style);
	await Promise.resolve();
})()`
	injectScriptTemplate = `(async () => {
	const script = document.createElement("script");
	script.appendChild(document.createTextNode(%s));
	document.head.appendChild(script);
	await Promise.resolve();
})()`
)

// InjectHTML appends literal HTML to the document body. The awaited promise
// guarantees the mutation is committed before control returns.
func (p *Page) InjectHTML(ctx context.Context, content string) error {
	return p.inject(ctx, injectHTMLTemplate, content)
}

// InjectCSS appends a style element with the literal CSS.
func (p *Page) InjectCSS(ctx context.Context, content string) error {
	return p.inject(ctx, injectCSSTemplate, content)
}

// InjectScript appends a script element with the literal source.
func (p *Page) InjectScript(ctx context.Context, content string) error {
	return p.inject(ctx, injectScriptTemplate, content)
}

func (p *Page) inject(ctx context.Context, template, content string) error {
	opctx, cancel := p.opCtx(ctx, schemas.DefaultNavigationTimeout)
	defer cancel()
	expr := fmt.Sprintf(template, jsString(content))
	if err := chromedp.Run(opctx, chromedp.Evaluate(expr, nil, awaitPromise)); err != nil {
		return fmt.Errorf("injection failed: %w", err)
	}
	return nil
}

// Fill waits for the selector, focuses the element, and types the value one
// keystroke at a time.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if err := p.WaitForSelector(ctx, selector, interactionNavTimeout); err != nil {
		return err
	}
	opctx, cancel := p.opCtx(ctx, 0)
	defer cancel()
	return chromedp.Run(opctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.ActionFunc(func(c context.Context) error {
			for _, r := range value {
				if err := chromedp.KeyEvent(string(r)).Do(c); err != nil {
					return fmt.Errorf("failed to type into %q: %w", selector, err)
				}
				select {
				case <-time.After(keystrokeDelay):
				case <-c.Done():
					return c.Err()
				}
			}
			return nil
		}),
	)
}

// Click waits for the selector and clicks the element in-page. When
// waitForNavigation is set, a concurrent navigation wait (load or
// networkidle2, whichever first) runs alongside the click.
func (p *Page) Click(ctx context.Context, selector string, waitForNavigation bool) error {
	if err := p.WaitForSelector(ctx, selector, interactionNavTimeout); err != nil {
		return err
	}

	opctx, cancel := p.opCtx(ctx, interactionNavTimeout)
	defer cancel()

	var wait func() error
	if waitForNavigation {
		loadWait := waitForEvent(opctx, func(ev interface{}) bool {
			_, ok := ev.(*page.EventLoadEventFired)
			return ok
		})
		idleWait := waitForNetworkIdle(opctx, 2)
		wait = func() error {
			done := make(chan error, 2)
			go func() { done <- loadWait() }()
			go func() { done <- idleWait() }()
			return <-done
		}
	}

	expr := fmt.Sprintf("document.querySelector(%s).click()", jsString(selector))
	if err := chromedp.Run(opctx, chromedp.Evaluate(expr, nil)); err != nil {
		return fmt.Errorf("failed to click %q: %w", selector, err)
	}
	if wait != nil {
		if err := wait(); err != nil {
			return fmt.Errorf("navigation after clicking %q: %w", selector, err)
		}
	}
	return nil
}

// Content returns the fully serialized document.
func (p *Page) Content(ctx context.Context) (string, error) {
	opctx, cancel := p.opCtx(ctx, schemas.DefaultNavigationTimeout)
	defer cancel()
	var html string
	if err := chromedp.Run(opctx,
		chromedp.Evaluate("new XMLSerializer().serializeToString(document)", &html),
	); err != nil {
		return "", fmt.Errorf("failed to serialize document: %w", err)
	}
	return html, nil
}

// HTML returns the inner or outer HTML of elements matching the selector.
// Without all, at most the first match is returned; a missing element yields
// an empty slice.
func (p *Page) HTML(ctx context.Context, selector string, inner, all bool) ([]string, error) {
	opctx, cancel := p.opCtx(ctx, schemas.DefaultNavigationTimeout)
	defer cancel()

	prop := "outerHTML"
	if inner {
		prop = "innerHTML"
	}
	var expr string
	if all {
		expr = fmt.Sprintf(
			"Array.from(document.querySelectorAll(%s)).map((e) => e.%s)",
			jsString(selector), prop)
	} else {
		expr = fmt.Sprintf(
			"(() => { const e = document.querySelector(%s); return e === null ? [] : [e.%s]; })()",
			jsString(selector), prop)
	}

	var out []string
	if err := chromedp.Run(opctx, chromedp.Evaluate(expr, &out)); err != nil {
		return nil, fmt.Errorf("failed to extract %q: %w", selector, err)
	}
	return out, nil
}

// Close closes the tab. Safe to call more than once.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := chromedp.Cancel(p.ctx)
	p.cancel()
	if err != nil {
		return fmt.Errorf("failed to close page: %w", err)
	}
	return nil
}

func awaitPromise(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// jsString renders a Go string as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func flattenHeaders(h network.Headers) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = fmt.Sprint(v)
	}
	return out
}
