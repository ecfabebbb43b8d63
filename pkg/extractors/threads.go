package extractors

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/dtnitsch/post-capture/models"
)

var (
	threadsPathPattern  = regexp.MustCompile(`^/@([A-Za-z0-9_.]+)/post/([A-Za-z0-9_\-]+)`)
	threadsTitlePattern = regexp.MustCompile(`^(.*?)\s*\(@([A-Za-z0-9_.]+)\)`)
)

// Instagram CDN paths for profile pictures; anything else in og:image is post media.
const threadsAvatarMarker = "t51.2885-19"

// ThreadsStrategy reads the server-rendered og:* tags of a Threads post.
type ThreadsStrategy struct {
	deps Deps
}

func NewThreadsStrategy(deps Deps) *ThreadsStrategy {
	deps.applyDefaults()
	return &ThreadsStrategy{deps: deps}
}

func (s *ThreadsStrategy) Extract(ctx context.Context, rawURL string) (*models.Post, error) {
	handle, _, err := parseThreadsURL(rawURL)
	if err != nil {
		return nil, invalidShape(models.PlatformThreads, "%v", err)
	}

	body, err := s.deps.Fetcher.GetHtmlBytes(ctx, rawURL)
	if err != nil {
		return nil, upstream(models.PlatformThreads, err)
	}
	og := openGraph(body)

	content := strings.TrimSpace(og.Description)
	if content == "" {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
			content = metaContent(doc, "description")
		}
	}

	name := ""
	if m := threadsTitlePattern.FindStringSubmatch(og.Title); m != nil {
		name = strings.TrimSpace(m[1])
		if !strings.EqualFold(m[2], handle) {
			s.deps.Logger.Debug("threads title handle differs from URL", "url", rawURL, "title_handle", m[2])
		}
	}

	var avatarURL string
	var mediaURLs []string
	for _, img := range og.Images {
		if img == nil || img.URL == "" {
			continue
		}
		if strings.Contains(img.URL, threadsAvatarMarker) {
			if avatarURL == "" {
				avatarURL = img.URL
			}
			continue
		}
		mediaURLs = append(mediaURLs, img.URL)
	}
	mediaURLs = dedupe(mediaURLs)
	if content == "" && len(mediaURLs) == 0 {
		return nil, notFound(models.PlatformThreads, "no post content in page metadata")
	}
	if len(mediaURLs) > models.MaxInlineMedia {
		mediaURLs = mediaURLs[:models.MaxInlineMedia]
	}

	images := materialize(ctx, s.deps.Materializer, avatarURL, mediaURLs, "")
	return &models.Post{
		Platform:  models.PlatformThreads,
		SourceURL: rawURL,
		Author: models.Author{
			Name:            name,
			Handle:          handle,
			AvatarInline:    images.avatar,
			AvatarSourceURL: avatarURL,
		},
		Content:         content,
		MediaInline:     images.media,
		MediaSourceURLs: mediaURLs,
	}, nil
}

func parseThreadsURL(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse url: %w", err)
	}
	m := threadsPathPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", "", fmt.Errorf("expected /@<handle>/post/<code>, got %q", u.Path)
	}
	return m[1], m[2], nil
}
