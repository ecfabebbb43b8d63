package extractors

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dtnitsch/post-capture/models"
)

var (
	tweetPathPattern = regexp.MustCompile(`^/([A-Za-z0-9_]{1,15})/status(?:es)?/(\d+)`)
	tweetWebPattern  = regexp.MustCompile(`^/i/web/status/(\d+)`)
)

// tweetScript runs inside the embed page and collects the rendered tweet.
const tweetScript = `(() => {
  const root = document.querySelector('article') || document.body;
  const text = (el) => el ? el.innerText.trim() : '';
  const avatar = root.querySelector('img[src*="profile_images"]');
  const textEl = root.querySelector('[data-testid="tweetText"]') || root.querySelector('[lang]');
  const nameLink = Array.from(root.querySelectorAll('a[href]')).find(a => /twitter\.com\/[^/]+$|x\.com\/[^/]+$/.test(a.href.split('?')[0]));
  let name = '', handle = '';
  const userName = root.querySelector('[data-testid="User-Name"]');
  if (userName) {
    const spans = Array.from(userName.querySelectorAll('span')).map(s => s.innerText.trim()).filter(Boolean);
    name = spans.find(s => !s.startsWith('@')) || '';
    handle = spans.find(s => s.startsWith('@')) || '';
  } else if (nameLink) {
    const parts = nameLink.innerText.split('\n').map(s => s.trim()).filter(Boolean);
    name = parts.find(s => !s.startsWith('@')) || '';
    handle = parts.find(s => s.startsWith('@')) || '';
  }
  const media = Array.from(root.querySelectorAll('img[src*="pbs.twimg.com/media"], img[src*="pbs.twimg.com/ext_tw_video_thumb"], img[src*="pbs.twimg.com/tweet_video_thumb"]')).map(i => i.src);
  const time = root.querySelector('time');
  const group = root.querySelector('[role="group"][aria-label]');
  return {
    name: name,
    handle: handle.replace(/^@/, ''),
    avatar: avatar ? avatar.src : '',
    text: text(textEl),
    media: Array.from(new Set(media)),
    time: time ? (time.getAttribute('datetime') || text(time)) : '',
    verified: !!root.querySelector('[data-testid="icon-verified"], svg[aria-label*="Verified"]'),
    metrics: group ? group.getAttribute('aria-label') : '',
    fullText: text(root)
  };
})()`

type tweetDOM struct {
	Name     string   `json:"name"`
	Handle   string   `json:"handle"`
	Avatar   string   `json:"avatar"`
	Text     string   `json:"text"`
	Media    []string `json:"media"`
	Time     string   `json:"time"`
	Verified bool     `json:"verified"`
	Metrics  string   `json:"metrics"`
	FullText string   `json:"fullText"`
}

func (t tweetDOM) empty() bool {
	return strings.TrimSpace(t.Text) == "" && len(t.Media) == 0
}

// TwitterStrategy captures a single tweet from its rendered embed page.
type TwitterStrategy struct {
	deps Deps
}

func NewTwitterStrategy(deps Deps) *TwitterStrategy {
	deps.applyDefaults()
	return &TwitterStrategy{deps: deps}
}

func (s *TwitterStrategy) Extract(ctx context.Context, rawURL string) (*models.Post, error) {
	user, id, err := parseTweetURL(rawURL)
	if err != nil {
		return nil, invalidShape(models.PlatformTwitter, "%v", err)
	}

	embedURL := fmt.Sprintf(s.deps.Endpoints.TwitterEmbed, id)
	var tweet tweetDOM
	if err := s.deps.DOM.LoadAndEvaluate(ctx, embedURL, "article", s.deps.DOMWait, s.deps.Settle, tweetScript, &tweet); err != nil {
		return nil, &ExtractionError{Platform: models.PlatformTwitter, Kind: ErrUpstreamUnavailable, Cause: err}
	}
	if tweet.empty() {
		return nil, notFound(models.PlatformTwitter, "tweet %s rendered no content", id)
	}

	if tweet.Handle == "" {
		tweet.Handle = user
	}
	mediaURLs := upgradeTwitterMedia(tweet.Media)
	if len(mediaURLs) > models.MaxInlineMedia {
		mediaURLs = mediaURLs[:models.MaxInlineMedia]
	}

	metricsText := tweet.FullText + "\n" + tweet.Metrics
	images := materialize(ctx, s.deps.Materializer, tweet.Avatar, mediaURLs, "")

	return &models.Post{
		Platform:  models.PlatformTwitter,
		SourceURL: rawURL,
		Author: models.Author{
			Name:            tweet.Name,
			Handle:          tweet.Handle,
			AvatarInline:    images.avatar,
			AvatarSourceURL: tweet.Avatar,
			Verified:        tweet.Verified,
		},
		Content:         normalizeText(tweet.Text),
		MediaInline:     images.media,
		MediaSourceURLs: mediaURLs,
		Metrics:         parseMetrics(metricsText),
		Timestamp:       formatTimestamp(tweet.Time),
	}, nil
}

// parseTweetURL returns the user (may be empty for /i/web links) and tweet id.
func parseTweetURL(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse url: %w", err)
	}
	if m := tweetPathPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1], m[2], nil
	}
	if m := tweetWebPattern.FindStringSubmatch(u.Path); m != nil {
		return "", m[1], nil
	}
	return "", "", fmt.Errorf("no status id in %q", u.Path)
}

// upgradeTwitterMedia requests original resolution from pbs.twimg.com.
func upgradeTwitterMedia(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range dedupe(urls) {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if strings.EqualFold(u.Hostname(), "pbs.twimg.com") && strings.HasPrefix(u.Path, "/media/") {
			q := u.Query()
			q.Set("name", "orig")
			u.RawQuery = q.Encode()
		}
		out = append(out, u.String())
	}
	return dedupe(out)
}

// formatTimestamp normalizes ISO timestamps to RFC3339 UTC, passing other
// strings through.
func formatTimestamp(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return raw
}
