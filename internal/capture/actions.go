package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/post-capture/internal/common"
	"github.com/dtnitsch/post-capture/models"
	"github.com/dtnitsch/post-capture/pkg/artifact_manager"
	"github.com/dtnitsch/post-capture/pkg/browser"
	"github.com/dtnitsch/post-capture/pkg/caching"
	"github.com/dtnitsch/post-capture/pkg/db"
	"github.com/dtnitsch/post-capture/pkg/extractors"
	"github.com/dtnitsch/post-capture/pkg/fetcher"
	"github.com/dtnitsch/post-capture/pkg/media"
)

func CaptureAction(c *cli.Context) error {
	logger := NewLogger(c.Bool("quiet"), c.Bool("verbose"))

	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return cli.Exit("", 2)
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return cli.Exit("", 2)
	}

	var history *db.DB
	if cfg.HistoryEnabled() {
		history, err = db.Open(cfg.History.Path)
		if err != nil {
			logger.Warn("History disabled, failed to open database", "error", err)
			history = nil
		} else {
			defer history.Close()
		}
	}

	retryOf := c.String("retry-run")
	urls, err := collectURLs(c, cfg, history, retryOf)
	if err != nil {
		logger.Error("failed to collect URLs", "error", err)
		return cli.Exit("", 2)
	}
	if len(urls) == 0 {
		if retryOf != "" {
			fmt.Printf("Run %s has no failed URLs to retry\n", retryOf)
			return nil
		}
		fmt.Fprintln(os.Stderr, "Error: No URLs provided")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, `  post-capture capture --urls "https://x.com/user/status/1,https://bsky.app/profile/a/post/b"`)
		fmt.Fprintln(os.Stderr, `  post-capture capture https://mastodon.social/@user/1234 --variant bento`)
		fmt.Fprintln(os.Stderr, `  post-capture capture --retry-run <run-id>          # Retry failed URLs of a run`)
		return cli.Exit("", 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, fatal := Run(ctx, logger, cfg, urls, history, retryOf)

	outputData, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		logger.Error("failed to marshal final output", "error", err)
		return cli.Exit("", 2)
	}
	fmt.Println(string(outputData))

	if code := ExitCode(out.Totals, fatal); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// NewLogger builds the JSON stderr logger used by every command.
func NewLogger(quiet, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	switch {
	case quiet:
		logLevel = slog.LevelError
	case verbose:
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// applyFlags overrides file configuration with flags the user set.
func applyFlags(c *cli.Context, cfg *models.CaptureConfig) {
	if c.IsSet("output-dir") {
		cfg.OutputDir = c.String("output-dir")
	}
	if c.IsSet("concurrency") {
		cfg.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("thread") {
		cfg.RenderThread = c.Bool("thread")
	}
	if c.IsSet("variant") {
		cfg.Variant = models.Variant(c.String("variant"))
	}
	if c.IsSet("user-agent") {
		cfg.UserAgent = c.String("user-agent")
	}
	if c.IsSet("padding") {
		cfg.Padding = c.Int("padding")
	}
	if c.IsSet("chrome-path") {
		cfg.Browser.ExecPath = c.String("chrome-path")
	}
	if c.Bool("headful") {
		headless := false
		cfg.Browser.Headless = &headless
	}
	if c.IsSet("history-db") {
		cfg.History.Path = c.String("history-db")
	}
	if c.Bool("no-history") {
		enabled := false
		cfg.History.Enabled = &enabled
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
}

// collectURLs gathers URLs from a previous run, flags, args or the config file.
func collectURLs(c *cli.Context, cfg *models.CaptureConfig, history *db.DB, retryOf string) ([]string, error) {
	if retryOf != "" {
		if history == nil {
			return nil, errors.New("--retry-run needs the history database")
		}
		run, err := history.GetRun(retryOf)
		if err != nil {
			return nil, err
		}
		return history.FailedURLs(run.RunID)
	}

	var urls []string
	if c.IsSet("urls") {
		urls = append(urls, strings.Split(c.String("urls"), ",")...)
	}
	urls = append(urls, c.Args().Slice()...)
	if len(urls) == 0 {
		urls = cfg.URLs
	}

	cleaned := urls[:0:0]
	for _, u := range urls {
		if strings.TrimSpace(u) != "" {
			cleaned = append(cleaned, u)
		}
	}
	return cleaned, nil
}

// BuildRequests sanitizes input URLs. Malformed ones are still dispatched so
// they show up as failures in the results.
func BuildRequests(logger *slog.Logger, urls []string, cfg *models.CaptureConfig) []models.CaptureRequest {
	sanitized, invalid := common.SanitizeAndValidateURLs(urls)
	for _, bad := range invalid {
		logger.Warn("URL is malformed even after cleanup", "url", bad)
	}
	reqs := make([]models.CaptureRequest, len(urls))
	for i := range urls {
		reqs[i] = models.CaptureRequest{
			URL:          sanitized[i],
			InputURL:     urls[i],
			RenderThread: cfg.RenderThread,
			Variant:      cfg.Variant,
		}
	}
	return reqs
}

// Run executes one capture run and always returns a complete BatchOutput.
// The error is non-nil when the run stopped early.
func Run(ctx context.Context, logger *slog.Logger, cfg *models.CaptureConfig, urls []string, history *db.DB, retryOf string) (models.BatchOutput, error) {
	startTime := time.Now()
	reqs := BuildRequests(logger, urls, cfg)

	f := fetcher.New(fetcher.Options{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeouts.Fetch.Duration,
		PerSecond: cfg.RateLimit.PerSecond,
		Burst:     cfg.RateLimit.Burst,
	})
	mediaCache, err := caching.NewTempCache(0)
	if err != nil {
		logger.Warn("Image cache disabled", "error", err)
		mediaCache = nil
	} else {
		defer func() {
			if err := mediaCache.Purge(); err != nil {
				logger.Warn("Failed to remove image cache", "dir", mediaCache.Dir(), "error", err)
			}
		}()
	}
	materializer := media.NewHTTPMaterializer(media.Options{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeouts.Image.Duration,
		Logger:    logger,
		Cache:     mediaCache,
	})

	engine := browser.NewEngine(browser.Options{
		ExecPath:           cfg.Browser.ExecPath,
		Headless:           cfg.Browser.Headless == nil || *cfg.Browser.Headless,
		UserAgent:          cfg.UserAgent,
		WindowWidth:        cfg.Browser.WindowWidth,
		WindowHeight:       cfg.Browser.WindowHeight,
		DeviceScale:        cfg.Browser.DeviceScale,
		Padding:            cfg.Padding,
		ImageSettleTimeout: cfg.Timeouts.Image.Duration,
		RenderTimeout:      cfg.Timeouts.Render.Duration,
		NavigateTimeout:    cfg.Timeouts.Fetch.Duration,
		Logger:             logger,
	})
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("Failed to close browser", "error", err)
		}
	}()

	dispatcher := extractors.NewDispatcher(extractors.Deps{
		Fetcher:      f,
		Materializer: materializer,
		DOM:          engine,
		DOMWait:      cfg.Timeouts.DOMWait.Duration,
		Settle:       cfg.Timeouts.Settle.Duration,
		Logger:       logger,
	})

	out := models.BatchOutput{OutputDirectory: cfg.OutputDir, Results: []models.CaptureResult{}}

	manager, err := artifact_manager.NewManager(cfg.OutputDir, materializer, logger)
	if err != nil {
		logger.Error("failed to initialize artifact manager", "error", err)
		out.Results = failAll(reqs, ErrorTypeIO, err)
		out.Totals = ComputeTotals(out.Results)
		out.ElapsedSeconds = time.Since(startTime).Seconds()
		return out, err
	}

	pipeline := &Pipeline{
		Extractor:  dispatcher,
		Rasterizer: engine,
		Writer:     manager,
		Logger:     logger,
	}
	if history != nil {
		runID, err := history.CreateRun(db.RunOptions{
			URLCount:     len(reqs),
			OutputDir:    cfg.OutputDir,
			Variant:      cfg.Variant,
			RenderThread: cfg.RenderThread,
			RetryOf:      retryOf,
		})
		if err != nil {
			logger.Warn("Failed to create run in history", "error", err)
		} else {
			pipeline.RunID = runID
			pipeline.Recorder = history
		}
	}
	if pipeline.RunID == "" {
		pipeline.RunID = uuid.NewString()
	}
	out.RunID = pipeline.RunID

	logger.Info("Starting capture run", "run_id", out.RunID, "url_count", len(reqs), "concurrency", cfg.Concurrency, "variant", cfg.Variant)
	results, fatal := RunBatch(ctx, logger, reqs, cfg.Concurrency, pipeline.Execute)

	if pipeline.Recorder != nil {
		for i, r := range results {
			if r.ErrorType == ErrorTypeSkipped {
				if err := pipeline.Recorder.RecordCapture(out.RunID, i, reqs[i].InputURL, r); err != nil {
					logger.Warn("Failed to record skipped capture", "url", r.SourceURL, "error", err)
				}
			}
		}
	}

	out.Results = results
	out.Totals = ComputeTotals(results)
	out.ElapsedSeconds = time.Since(startTime).Seconds()

	if path, err := WriteFailedURLs(cfg.OutputDir, out.RunID, results); err != nil {
		logger.Warn("Failed to write failed URLs file", "error", err)
	} else if path != "" {
		logger.Info("Wrote failed URLs", "path", path, "count", out.Totals.Failed)
	}

	if pipeline.Recorder != nil {
		if err := history.FinishRun(out.RunID, out.Totals.Successful, out.Totals.Failed, out.ElapsedSeconds); err != nil {
			logger.Warn("Failed to finish run in history", "error", err)
		}
	}

	logger.Info("Capture run finished", "run_id", out.RunID, "successful", out.Totals.Successful, "failed", out.Totals.Failed, "elapsed_seconds", out.ElapsedSeconds)
	return out, fatal
}

func failAll(reqs []models.CaptureRequest, errorType string, err error) []models.CaptureResult {
	results := make([]models.CaptureResult, len(reqs))
	for i, req := range reqs {
		results[i] = models.CaptureResult{SourceURL: req.URL, ErrorType: errorType, ErrorMessage: err.Error()}
	}
	return results
}
