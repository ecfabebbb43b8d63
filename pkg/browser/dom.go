package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// LoadAndEvaluate navigates a fresh tab to rawURL, waits up to waitTimeout
// for waitSelector, sleeps for settle and evaluates script into out.
// A selector that never appears is logged and tolerated; the script decides
// whether the page held usable content.
func (e *Engine) LoadAndEvaluate(ctx context.Context, rawURL, waitSelector string, waitTimeout, settle time.Duration, script string, out any) error {
	tabCtx, release, err := e.NewTab(ctx)
	if err != nil {
		return err
	}
	defer release()

	navCtx, cancel := context.WithTimeout(tabCtx, e.opts.NavigateTimeout)
	defer cancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(rawURL)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: navigating to %s", ErrRenderTimeout, rawURL)
		}
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}

	if waitSelector != "" && waitTimeout > 0 {
		waitCtx, waitCancel := context.WithTimeout(navCtx, waitTimeout)
		err := chromedp.Run(waitCtx, chromedp.WaitVisible(waitSelector, chromedp.ByQuery))
		waitCancel()
		if err != nil {
			e.opts.Logger.Debug("wait selector not visible, continuing", "url", rawURL, "selector", waitSelector, "error", err)
		}
	}

	actions := []chromedp.Action{}
	if settle > 0 {
		actions = append(actions, chromedp.Sleep(settle))
	}
	actions = append(actions, chromedp.Evaluate(script, out))
	if err := chromedp.Run(navCtx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: evaluating %s", ErrRenderTimeout, rawURL)
		}
		return fmt.Errorf("evaluate %s: %w", rawURL, err)
	}
	return nil
}
