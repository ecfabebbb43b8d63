package extractors

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/dtnitsch/post-capture/models"
)

var (
	youtubeIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_\-]{6,20}$`)
	youtubePathPattern = regexp.MustCompile(`^/(?:shorts|embed|live|v)/([A-Za-z0-9_\-]+)`)
	tiktokVideoPattern = regexp.MustCompile(`/video/(\d+)`)
)

type oEmbed struct {
	Title          string `json:"title"`
	AuthorName     string `json:"author_name"`
	AuthorURL      string `json:"author_url"`
	AuthorUniqueID string `json:"author_unique_id"`
	ThumbnailURL   string `json:"thumbnail_url"`
	ProviderName   string `json:"provider_name"`
}

// YouTubeStrategy uses oEmbed with an og:* fallback.
type YouTubeStrategy struct {
	deps Deps
}

func NewYouTubeStrategy(deps Deps) *YouTubeStrategy {
	deps.applyDefaults()
	return &YouTubeStrategy{deps: deps}
}

func (s *YouTubeStrategy) Extract(ctx context.Context, rawURL string) (*models.Post, error) {
	videoID, err := youtubeVideoID(rawURL)
	if err != nil {
		return nil, invalidShape(models.PlatformYouTube, "%v", err)
	}

	var embed oEmbed
	endpoint := s.deps.Endpoints.YouTubeOEmbed + "?format=json&url=" + url.QueryEscape(rawURL)
	if err := s.deps.Fetcher.GetJSON(ctx, endpoint, &embed); err != nil {
		s.deps.Logger.Debug("youtube oembed failed, falling back to page metadata", "url", rawURL, "error", err)
		embed, err = s.pageMetadata(ctx, rawURL)
		if err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(embed.Title) == "" {
		return nil, notFound(models.PlatformYouTube, "video %s has no title", videoID)
	}

	original := s.deps.Endpoints.YouTubeThumbnails + "/" + videoID + "/maxresdefault.jpg"
	preview := firstNonEmpty(embed.ThumbnailURL, s.deps.Endpoints.YouTubeThumbnails+"/"+videoID+"/hqdefault.jpg")
	images := materialize(ctx, s.deps.Materializer, "", nil, preview)

	return &models.Post{
		Platform:        models.PlatformYouTube,
		SourceURL:       rawURL,
		Author:          models.Author{Name: embed.AuthorName, Handle: youtubeHandle(embed.AuthorURL)},
		MediaSourceURLs: []string{original},
		Video: &models.VideoDetail{
			VideoID:         videoID,
			Title:           strings.TrimSpace(embed.Title),
			Channel:         embed.AuthorName,
			ThumbnailInline: images.extra,
		},
	}, nil
}

func (s *YouTubeStrategy) pageMetadata(ctx context.Context, rawURL string) (oEmbed, error) {
	body, err := s.deps.Fetcher.GetHtmlBytes(ctx, rawURL)
	if err != nil {
		return oEmbed{}, upstream(models.PlatformYouTube, err)
	}
	og := openGraph(body)
	return oEmbed{
		Title:        og.Title,
		AuthorName:   og.SiteName,
		ThumbnailURL: firstOGImage(og),
	}, nil
}

// youtubeVideoID accepts watch?v=, youtu.be/, /shorts/, /embed/ and /live/ links.
func youtubeVideoID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	var id string
	switch {
	case host == "youtu.be":
		id = strings.Trim(u.Path, "/")
	case u.Path == "/watch":
		id = u.Query().Get("v")
	default:
		if m := youtubePathPattern.FindStringSubmatch(u.Path); m != nil {
			id = m[1]
		}
	}
	if !youtubeIDPattern.MatchString(id) {
		return "", errors.New("no video id in url")
	}
	return id, nil
}

func youtubeHandle(authorURL string) string {
	u, err := url.Parse(authorURL)
	if err != nil {
		return ""
	}
	segment := strings.Trim(u.Path, "/")
	if strings.HasPrefix(segment, "@") {
		return strings.TrimPrefix(segment, "@")
	}
	return ""
}

// TikTokStrategy uses the public oEmbed endpoint.
type TikTokStrategy struct {
	deps Deps
}

func NewTikTokStrategy(deps Deps) *TikTokStrategy {
	deps.applyDefaults()
	return &TikTokStrategy{deps: deps}
}

func (s *TikTokStrategy) Extract(ctx context.Context, rawURL string) (*models.Post, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, invalidShape(models.PlatformTikTok, "parse url: %v", err)
	}
	m := tiktokVideoPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return nil, invalidShape(models.PlatformTikTok, "expected /video/<id>, got %q", u.Path)
	}
	videoID := m[1]

	var embed oEmbed
	endpoint := s.deps.Endpoints.TikTokOEmbed + "?url=" + url.QueryEscape(rawURL)
	if err := s.deps.Fetcher.GetJSON(ctx, endpoint, &embed); err != nil {
		return nil, upstream(models.PlatformTikTok, err)
	}
	if embed.Title == "" && embed.AuthorName == "" && embed.ThumbnailURL == "" {
		return nil, notFound(models.PlatformTikTok, "video %s has no oembed data", videoID)
	}

	var mediaURLs []string
	if embed.ThumbnailURL != "" {
		mediaURLs = []string{embed.ThumbnailURL}
	}
	images := materialize(ctx, s.deps.Materializer, "", nil, embed.ThumbnailURL)

	return &models.Post{
		Platform:        models.PlatformTikTok,
		SourceURL:       rawURL,
		Author:          models.Author{Name: embed.AuthorName, Handle: embed.AuthorUniqueID},
		Content:         strings.TrimSpace(embed.Title),
		MediaSourceURLs: mediaURLs,
		Video: &models.VideoDetail{
			VideoID:         videoID,
			Title:           strings.TrimSpace(embed.Title),
			Channel:         embed.AuthorName,
			ThumbnailInline: images.extra,
		},
	}, nil
}
