// Package browser owns the shared headless Chrome instance. One Engine is
// started lazily per run and hands out isolated tabs for DOM extraction and
// card rasterization.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

var (
	// ErrEngineStart is fatal for a run: no capture can succeed without a browser.
	ErrEngineStart = errors.New("browser engine failed to start")
	// ErrRenderTimeout is returned when a page or its images do not settle in time.
	ErrRenderTimeout = errors.New("render timed out")
	// ErrEngineClosed is returned for tabs requested after Close.
	ErrEngineClosed = errors.New("browser engine closed")
)

const (
	DefaultPadding            = 20
	DefaultImageSettleTimeout = 15 * time.Second
	DefaultRenderTimeout      = 15 * time.Second
	DefaultNavigateTimeout    = 30 * time.Second
	defaultWindowWidth        = 1200
	defaultWindowHeight       = 1600
	defaultDeviceScale        = 2
)

// Options configures an Engine.
type Options struct {
	ExecPath           string
	Headless           bool
	UserAgent          string
	WindowWidth        int
	WindowHeight       int
	DeviceScale        float64
	Padding            int
	ImageSettleTimeout time.Duration
	RenderTimeout      time.Duration
	NavigateTimeout    time.Duration
	Logger             *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.WindowWidth <= 0 {
		o.WindowWidth = defaultWindowWidth
	}
	if o.WindowHeight <= 0 {
		o.WindowHeight = defaultWindowHeight
	}
	if o.DeviceScale <= 0 {
		o.DeviceScale = defaultDeviceScale
	}
	if o.Padding < 0 {
		o.Padding = 0
	}
	if o.ImageSettleTimeout <= 0 {
		o.ImageSettleTimeout = DefaultImageSettleTimeout
	}
	if o.RenderTimeout <= 0 {
		o.RenderTimeout = DefaultRenderTimeout
	}
	if o.NavigateTimeout <= 0 {
		o.NavigateTimeout = DefaultNavigateTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Engine is a lazily started browser shared by all captures of a run.
type Engine struct {
	opts Options

	mu            sync.Mutex
	started       bool
	closed        bool
	startErr      error
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once
}

// NewEngine returns an engine that has not started a browser yet.
func NewEngine(opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{opts: opts}
}

// Acquire starts the browser on first use. A failed start is remembered and
// returned to every later caller.
func (e *Engine) Acquire(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if e.started {
		return nil
	}
	if e.startErr != nil {
		return e.startErr
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", e.opts.Headless),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(e.opts.WindowWidth, e.opts.WindowHeight),
	)
	if e.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(e.opts.UserAgent))
	}
	if e.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(e.opts.ExecPath))
	}

	// The browser outlives any single request, so it hangs off Background.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			e.opts.Logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
	)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	var err error
	select {
	case err = <-started:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		browserCancel()
		allocCancel()
		e.startErr = fmt.Errorf("%w: %v", ErrEngineStart, err)
		e.opts.Logger.Error("failed to start browser", "error", err)
		return e.startErr
	}

	e.started = true
	e.allocCancel = allocCancel
	e.browserCtx = browserCtx
	e.browserCancel = browserCancel
	e.opts.Logger.Info("browser started", "headless", e.opts.Headless)
	return nil
}

// NewTab opens an isolated tab (its own browser context, so no cookies or
// storage leak between captures). The release func must always be called.
func (e *Engine) NewTab(ctx context.Context) (context.Context, func(), error) {
	if err := e.Acquire(ctx); err != nil {
		return nil, func() {}, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, func() {}, ErrEngineClosed
	}
	tabCtx, tabCancel := chromedp.NewContext(e.browserCtx, chromedp.WithNewBrowserContext())
	e.mu.Unlock()

	// Tie the tab to the caller so an interrupt closes it.
	stop := context.AfterFunc(ctx, tabCancel)
	release := func() {
		stop()
		tabCancel()
	}

	// The first Run creates the target; it must not carry a deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		release()
		return nil, func() {}, fmt.Errorf("open tab: %w", err)
	}
	return tabCtx, release, nil
}

// Close shuts the browser down. Safe to call more than once and before start.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.closed = true
		if !e.started {
			return
		}
		err = chromedp.Cancel(e.browserCtx)
		e.browserCancel()
		e.allocCancel()
		e.opts.Logger.Debug("browser closed")
	})
	return err
}
