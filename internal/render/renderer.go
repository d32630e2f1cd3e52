// Package render converts HTML to PNG bytes through a shared headless
// Chrome instance with isolated per-request browsing contexts.
package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/htmlshot/htmlshot/internal/config"
)

// Request describes one conversion. Height nil means auto-size unless
// FullPage is set. DPR must be validated upstream; the pipeline assumes
// it is 1, 2, or 3.
type Request struct {
	HTML     string
	Width    int
	Height   *int
	DPR      int
	FullPage bool
}

// Renderer owns the process-wide browser. The browser is expensive to
// start and cheap to reuse, so it is launched lazily exactly once and
// lives until Close; every request gets its own disposable incognito
// browser context so concurrent renders never share cookies, storage, or
// viewport state.
type Renderer struct {
	settleDelay time.Duration
	timeout     time.Duration

	startOnce sync.Once
	startErr  error

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewRenderer(cfg config.RenderConfig) *Renderer {
	return &Renderer{
		settleDelay: cfg.SettleDelay,
		timeout:     cfg.RenderTimeout,
	}
}

// start launches the shared browser. Guarded by sync.Once so concurrent
// first use cannot start duplicate engines.
func (r *Renderer) start() error {
	r.startOnce.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.NoSandbox,
			chromedp.Flag("disable-setuid-sandbox", true),
			chromedp.Flag("hide-scrollbars", true),
		)
		r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		r.browserCtx, r.browserCancel = chromedp.NewContext(r.allocCtx)

		// Force the browser process up so later failures surface here.
		if err := chromedp.Run(r.browserCtx); err != nil {
			r.startErr = fmt.Errorf("launch browser: %w", err)
		}
	})
	return r.startErr
}

// Render loads the request's HTML into a fresh isolated context, applies
// the sizing policy, and captures PNG bytes. Any failure aborts the whole
// request; partial output is never returned. The shared browser stays
// healthy across failed requests.
func (r *Renderer) Render(ctx context.Context, req Request) ([]byte, error) {
	if err := r.start(); err != nil {
		return nil, err
	}

	// The tab context deliberately does not descend from the caller's:
	// a disconnected client must not leak a browser context mid-render.
	// The render runs to completion and the result is discarded upstream.
	_ = ctx

	tabCtx, releaseTab, err := r.newIsolatedTab()
	if err != nil {
		return nil, fmt.Errorf("acquire browsing context: %w", err)
	}
	defer releaseTab()

	viewportHeight := 800
	if req.Height != nil {
		viewportHeight = *req.Height
	}

	// The tracker must listen before content is set so requests fired
	// during load are counted.
	tracker := newNetworkTracker()
	tracker.listen(tabCtx)

	var buf []byte
	err = chromedp.Run(tabCtx,
		network.Enable(),
		emulation.SetDeviceMetricsOverride(int64(req.Width), int64(viewportHeight), float64(req.DPR), false),
		setDocumentContent(req.HTML),
		waitForQuiescence(tracker, r.settleDelay),
		capture(req, &buf),
	)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf, nil
}

// Close tears down the shared browser. Called at process shutdown only;
// per-request contexts are released individually.
func (r *Renderer) Close() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
}

// newIsolatedTab opens a tab inside a disposable incognito browser
// context. The context is disposed when the tab detaches, releasing
// engine-side resources on success and failure alike.
func (r *Renderer) newIsolatedTab() (context.Context, func(), error) {
	var targetID target.ID
	err := chromedp.Run(r.browserCtx, chromedp.ActionFunc(func(cctx context.Context) error {
		bctxID, err := target.CreateBrowserContext().
			WithDisposeOnDetach(true).
			Do(cctx)
		if err != nil {
			return err
		}
		targetID, err = target.CreateTarget("about:blank").
			WithBrowserContextID(bctxID).
			Do(cctx)
		return err
	}))
	if err != nil {
		return nil, nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(r.browserCtx, chromedp.WithTargetID(targetID))
	timedCtx, timedCancel := context.WithTimeout(tabCtx, r.timeout)

	release := func() {
		timedCancel()
		tabCancel()
	}
	return timedCtx, release, nil
}

// setDocumentContent loads the supplied HTML directly into the page
// instead of fetching it over the network.
func setDocumentContent(html string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		frameTree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
	})
}

// networkIdleWindow is how long the network must stay quiet before the
// page counts as loaded, the same threshold browser automation engines
// use for their network-idle states.
const networkIdleWindow = 500 * time.Millisecond

// networkIdleMax bounds the idle wait so pages that poll forever still
// render; the tab timeout is the hard stop.
const networkIdleMax = 5 * time.Second

// networkTracker counts in-flight requests on a tab so the capture can
// wait out late subresource fetches, e.g. images inserted from script
// after the load event.
type networkTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
}

func newNetworkTracker() *networkTracker {
	return &networkTracker{inflight: make(map[network.RequestID]struct{})}
}

func (t *networkTracker) listen(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			t.add(e.RequestID)
		case *network.EventLoadingFinished:
			t.done(e.RequestID)
		case *network.EventLoadingFailed:
			t.done(e.RequestID)
		}
	})
}

func (t *networkTracker) add(id network.RequestID) {
	t.mu.Lock()
	t.inflight[id] = struct{}{}
	t.mu.Unlock()
}

func (t *networkTracker) done(id network.RequestID) {
	t.mu.Lock()
	delete(t.inflight, id)
	t.mu.Unlock()
}

func (t *networkTracker) idle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0
}

// waitIdle blocks until the network has been quiet for a full idle
// window, the bounded deadline passes, or the context ends.
func (t *networkTracker) waitIdle(ctx context.Context) error {
	deadline := time.NewTimer(networkIdleMax)
	defer deadline.Stop()
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()

	var quietSince time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-tick.C:
			if !t.idle() {
				quietSince = time.Time{}
				continue
			}
			if quietSince.IsZero() {
				quietSince = time.Now()
			}
			if time.Since(quietSince) >= networkIdleWindow {
				return nil
			}
		}
	}
}

// waitForQuiescence waits for the document to finish loading and the
// network to go idle, then a short settle delay so async layout (fonts,
// images) can complete.
func waitForQuiescence(tracker *networkTracker, settle time.Duration) chromedp.Action {
	return chromedp.Tasks{
		chromedp.Poll(`document.readyState === "complete"`, nil,
			chromedp.WithPollingInterval(20*time.Millisecond)),
		chromedp.ActionFunc(tracker.waitIdle),
		chromedp.Sleep(settle),
	}
}

// capture applies the sizing policy and emits PNG bytes.
//
//   - Explicit height: capture exactly that viewport, no auto-expansion.
//   - FullPage: the engine's native full-page capture.
//   - Neither: measure the document's maximum scroll/offset extent, resize
//     the viewport to it, then capture full-page for a tight fit.
func capture(req Request, buf *[]byte) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		fullPage := req.FullPage

		if req.Height == nil && !req.FullPage {
			var contentHeight int
			if err := chromedp.Evaluate(contentExtentJS, &contentHeight).Do(ctx); err != nil {
				return fmt.Errorf("measure content: %w", err)
			}
			if err := emulation.SetDeviceMetricsOverride(
				int64(req.Width), int64(contentHeight), float64(req.DPR), false,
			).Do(ctx); err != nil {
				return fmt.Errorf("resize viewport: %w", err)
			}
			fullPage = true
		}

		if fullPage {
			return chromedp.FullScreenshot(buf, 100).Do(ctx)
		}
		return chromedp.CaptureScreenshot(buf).Do(ctx)
	})
}

const contentExtentJS = `Math.max(
	document.body.scrollHeight,
	document.body.offsetHeight,
	document.documentElement.clientHeight,
	document.documentElement.scrollHeight,
	document.documentElement.offsetHeight
)`
