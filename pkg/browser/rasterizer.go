package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/dtnitsch/post-capture/pkg/render"
)

const imagePollInterval = 100 * time.Millisecond

// Rect is a CSS pixel rectangle in page coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PaddedClip grows r by padding on every side without leaving the page.
func PaddedClip(r Rect, padding int) Rect {
	p := float64(max(padding, 0))
	x := max(r.X-p, 0)
	y := max(r.Y-p, 0)
	return Rect{
		X:      x,
		Y:      y,
		Width:  r.X + r.Width + p - x,
		Height: r.Y + r.Height + p - y,
	}
}

const measureScript = `(() => {
  const el = document.getElementById('` + render.RootID + `');
  if (!el) { return {x: 0, y: 0, width: 0, height: 0}; }
  const r = el.getBoundingClientRect();
  return {x: r.left + window.scrollX, y: r.top + window.scrollY, width: r.width, height: r.height};
})()`

const imagesCompleteScript = `Array.from(document.images).every(img => img.complete)`

// Capture renders doc in an isolated tab with a transparent background and
// returns a PNG of the card root plus padding.
func (e *Engine) Capture(ctx context.Context, doc render.Document) ([]byte, error) {
	tabCtx, release, err := e.NewTab(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	runCtx, cancel := context.WithTimeout(tabCtx, e.opts.RenderTimeout+e.opts.ImageSettleTimeout)
	defer cancel()

	var root Rect
	var png []byte
	err = chromedp.Run(runCtx,
		emulation.SetDeviceMetricsOverride(int64(e.opts.WindowWidth), int64(e.opts.WindowHeight), e.opts.DeviceScale, false),
		emulation.SetDefaultBackgroundColorOverride().WithColor(&cdp.RGBA{R: 0, G: 0, B: 0, A: 0}),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("frame tree: %w", err)
			}
			return page.SetDocumentContent(tree.Frame.ID, doc.HTML).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return e.waitForImages(ctx)
		}),
		chromedp.Evaluate(measureScript, &root),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if root.Width <= 0 || root.Height <= 0 {
				return fmt.Errorf("card root #%s not found or empty", render.RootID)
			}
			clip := PaddedClip(root, e.opts.Padding)
			var err error
			png, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithCaptureBeyondViewport(true).
				WithClip(&page.Viewport{X: clip.X, Y: clip.Y, Width: clip.Width, Height: clip.Height, Scale: 1}).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		if errors.Is(err, ErrRenderTimeout) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrRenderTimeout, err)
		}
		return nil, fmt.Errorf("capture card: %w", err)
	}
	return png, nil
}

// waitForImages polls until every image has loaded or failed.
func (e *Engine) waitForImages(ctx context.Context) error {
	deadline := time.NewTimer(e.opts.ImageSettleTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(imagePollInterval)
	defer ticker.Stop()

	for {
		var complete bool
		if err := chromedp.Evaluate(imagesCompleteScript, &complete).Do(ctx); err != nil {
			return fmt.Errorf("check images: %w", err)
		}
		if complete {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: images still loading after %s", ErrRenderTimeout, e.opts.ImageSettleTimeout)
		case <-ticker.C:
		}
	}
}
