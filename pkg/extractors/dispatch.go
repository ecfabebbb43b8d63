// Package extractors turns a classified URL into a normalized models.Post.
// Each platform has one Strategy; the Dispatcher picks it by platform tag.
package extractors

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dtnitsch/post-capture/models"
	"github.com/dtnitsch/post-capture/pkg/fetcher"
	"github.com/dtnitsch/post-capture/pkg/media"
)

// Strategy extracts one platform's content.
type Strategy interface {
	Extract(ctx context.Context, rawURL string) (*models.Post, error)
}

// DOMLoader renders a page in a real browser, waits for a selector, lets the
// page settle and evaluates script, decoding its JSON result into out. A wait
// selector that never appears is not an error.
type DOMLoader interface {
	LoadAndEvaluate(ctx context.Context, rawURL, waitSelector string, waitTimeout, settle time.Duration, script string, out any) error
}

// Endpoints are the remote services used by API based strategies.
type Endpoints struct {
	TwitterEmbed      string // fmt pattern taking the tweet id
	TwitterStatus     string // fmt pattern taking user and tweet id
	BlueskyAPI        string
	YouTubeOEmbed     string
	YouTubeThumbnails string
	TikTokOEmbed      string
}

// DefaultEndpoints returns the public production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		TwitterEmbed:      "https://platform.twitter.com/embed/Tweet.html?id=%s&dnt=true",
		TwitterStatus:     "https://x.com/%s/status/%s",
		BlueskyAPI:        "https://public.api.bsky.app/xrpc",
		YouTubeOEmbed:     "https://www.youtube.com/oembed",
		YouTubeThumbnails: "https://i.ytimg.com/vi",
		TikTokOEmbed:      "https://www.tiktok.com/oembed",
	}
}

// Deps are shared by all strategies.
type Deps struct {
	Fetcher      *fetcher.Fetcher
	Materializer media.Materializer
	DOM          DOMLoader
	Endpoints    Endpoints
	DOMWait      time.Duration
	Settle       time.Duration
	Logger       *slog.Logger
}

func (d *Deps) applyDefaults() {
	if d.Fetcher == nil {
		d.Fetcher = fetcher.NewFetcher()
	}
	if d.Materializer == nil {
		d.Materializer = media.NewHTTPMaterializer(media.Options{})
	}
	if d.Endpoints == (Endpoints{}) {
		d.Endpoints = DefaultEndpoints()
	}
	if d.DOMWait <= 0 {
		d.DOMWait = 10 * time.Second
	}
	if d.Settle < 0 {
		d.Settle = 0
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Dispatcher routes a platform to its strategy.
type Dispatcher struct {
	mu         sync.RWMutex
	strategies map[models.Platform]Strategy
	logger     *slog.Logger
}

// NewDispatcher registers a strategy for every supported platform.
// Strategies needing a browser are only registered when deps.DOM is set.
func NewDispatcher(deps Deps) *Dispatcher {
	deps.applyDefaults()
	d := &Dispatcher{
		strategies: make(map[models.Platform]Strategy),
		logger:     deps.Logger,
	}
	if deps.DOM != nil {
		d.Register(models.PlatformTwitter, NewTwitterStrategy(deps))
		d.Register(models.PlatformTwitterThread, NewThreadStrategy(deps))
	}
	d.Register(models.PlatformBluesky, NewBlueskyStrategy(deps))
	d.Register(models.PlatformMastodon, NewMastodonStrategy(deps))
	d.Register(models.PlatformThreads, NewThreadsStrategy(deps))
	d.Register(models.PlatformMacRumors, NewForumStrategy(deps))
	d.Register(models.PlatformArticle, NewArticleStrategy(deps))
	d.Register(models.PlatformYouTube, NewYouTubeStrategy(deps))
	d.Register(models.PlatformTikTok, NewTikTokStrategy(deps))
	return d
}

// Register sets or replaces the strategy for a platform.
func (d *Dispatcher) Register(platform models.Platform, s Strategy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strategies[platform] = s
}

// Extract runs the platform's strategy. The returned Post is never nil on success.
func (d *Dispatcher) Extract(ctx context.Context, rawURL string, platform models.Platform) (*models.Post, error) {
	d.mu.RLock()
	s, ok := d.strategies[platform]
	d.mu.RUnlock()
	if !ok {
		return nil, &ExtractionError{Platform: platform, Kind: ErrNoStrategy}
	}

	start := time.Now()
	post, err := s.Extract(ctx, rawURL)
	if err != nil {
		d.logger.Debug("extraction failed", "url", rawURL, "platform", platform, "error", err)
		return nil, err
	}
	if post == nil {
		return nil, notFound(platform, "strategy returned no content")
	}
	if post.SourceURL == "" {
		return nil, notFound(platform, "strategy returned a post without a source url")
	}
	d.logger.Debug("extracted post", "url", rawURL, "platform", post.Platform, "duration_ms", time.Since(start).Milliseconds())
	return post, nil
}
