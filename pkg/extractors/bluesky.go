package extractors

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/dtnitsch/post-capture/models"
)

var blueskyPostPattern = regexp.MustCompile(`^/profile/([^/]+)/post/([A-Za-z0-9]+)/?$`)

type bskyImage struct {
	Thumb    string `json:"thumb"`
	Fullsize string `json:"fullsize"`
	Alt      string `json:"alt"`
}

type bskyEmbed struct {
	Type   string      `json:"$type"`
	Images []bskyImage `json:"images"`
	Media  *bskyEmbed  `json:"media"`
	// external link cards carry a thumbnail
	External *struct {
		Thumb string `json:"thumb"`
	} `json:"external"`
}

type bskyPostView struct {
	URI    string `json:"uri"`
	Author struct {
		DID         string `json:"did"`
		Handle      string `json:"handle"`
		DisplayName string `json:"displayName"`
		Avatar      string `json:"avatar"`
	} `json:"author"`
	Record struct {
		Text      string `json:"text"`
		CreatedAt string `json:"createdAt"`
	} `json:"record"`
	Embed       *bskyEmbed `json:"embed"`
	ReplyCount  int        `json:"replyCount"`
	RepostCount int        `json:"repostCount"`
	LikeCount   int        `json:"likeCount"`
	QuoteCount  int        `json:"quoteCount"`
	IndexedAt   string     `json:"indexedAt"`
}

// images returns thumb and fullsize URLs from image embeds, including the
// media half of a record-with-media embed.
func (e *bskyEmbed) images() (thumbs, fullsize []string) {
	if e == nil {
		return nil, nil
	}
	switch {
	case strings.HasPrefix(e.Type, "app.bsky.embed.images"):
		for _, img := range e.Images {
			thumb := img.Thumb
			if thumb == "" {
				thumb = img.Fullsize
			}
			full := img.Fullsize
			if full == "" {
				full = img.Thumb
			}
			thumbs = append(thumbs, thumb)
			fullsize = append(fullsize, full)
		}
	case strings.HasPrefix(e.Type, "app.bsky.embed.recordWithMedia"):
		return e.Media.images()
	case strings.HasPrefix(e.Type, "app.bsky.embed.external") && e.External != nil && e.External.Thumb != "":
		return []string{e.External.Thumb}, []string{e.External.Thumb}
	}
	return thumbs, fullsize
}

// BlueskyStrategy reads posts through the public AppView API.
type BlueskyStrategy struct {
	deps Deps
}

func NewBlueskyStrategy(deps Deps) *BlueskyStrategy {
	deps.applyDefaults()
	return &BlueskyStrategy{deps: deps}
}

func (s *BlueskyStrategy) Extract(ctx context.Context, rawURL string) (*models.Post, error) {
	actor, rkey, err := parseBlueskyURL(rawURL)
	if err != nil {
		return nil, invalidShape(models.PlatformBluesky, "%v", err)
	}

	view, err := s.fetchPost(ctx, actor, rkey)
	if err != nil {
		return nil, err
	}

	thumbs, fullsize := view.Embed.images()
	if len(fullsize) > models.MaxInlineMedia {
		thumbs, fullsize = thumbs[:models.MaxInlineMedia], fullsize[:models.MaxInlineMedia]
	}
	images := materialize(ctx, s.deps.Materializer, view.Author.Avatar, thumbs, "")

	timestamp := view.Record.CreatedAt
	if timestamp == "" {
		timestamp = view.IndexedAt
	}

	return &models.Post{
		Platform:  models.PlatformBluesky,
		SourceURL: rawURL,
		Author: models.Author{
			Name:            view.Author.DisplayName,
			Handle:          view.Author.Handle,
			AvatarInline:    images.avatar,
			AvatarSourceURL: view.Author.Avatar,
		},
		Content:         strings.TrimSpace(view.Record.Text),
		MediaInline:     images.media,
		MediaSourceURLs: fullsize,
		Metrics: models.Metrics{
			Replies: view.ReplyCount,
			Reposts: view.RepostCount,
			Likes:   view.LikeCount,
			Quotes:  view.QuoteCount,
		},
		Timestamp: formatTimestamp(timestamp),
	}, nil
}

// fetchPost resolves the actor and loads the post view. Bridged accounts
// (*.brid.gy) are often unresolvable, so the handle based AT URI is tried
// first for them.
func (s *BlueskyStrategy) fetchPost(ctx context.Context, actor, rkey string) (*bskyPostView, error) {
	if strings.HasSuffix(strings.ToLower(actor), ".brid.gy") {
		view, err := s.getPosts(ctx, atURI(actor, rkey))
		if err == nil {
			return view, nil
		}
		s.deps.Logger.Debug("bridged handle lookup failed, resolving handle", "handle", actor, "error", err)
	}

	did := actor
	if !strings.HasPrefix(actor, "did:") {
		resolved, err := s.resolveHandle(ctx, actor)
		if err != nil {
			return nil, err
		}
		did = resolved
	}
	return s.getPostThread(ctx, atURI(did, rkey))
}

func (s *BlueskyStrategy) resolveHandle(ctx context.Context, handle string) (string, error) {
	endpoint := s.deps.Endpoints.BlueskyAPI + "/com.atproto.identity.resolveHandle?handle=" + url.QueryEscape(handle)
	var resp struct {
		DID string `json:"did"`
	}
	if err := s.deps.Fetcher.GetJSON(ctx, endpoint, &resp); err != nil {
		// an unknown handle is reported as 400 by the AppView
		if isStatus(err, 400) {
			return "", notFound(models.PlatformBluesky, "handle %q not found", handle)
		}
		return "", upstream(models.PlatformBluesky, err)
	}
	if resp.DID == "" {
		return "", notFound(models.PlatformBluesky, "handle %q resolved to no DID", handle)
	}
	return resp.DID, nil
}

func (s *BlueskyStrategy) getPostThread(ctx context.Context, uri string) (*bskyPostView, error) {
	endpoint := s.deps.Endpoints.BlueskyAPI + "/app.bsky.feed.getPostThread?depth=0&parentHeight=0&uri=" + url.QueryEscape(uri)
	var resp struct {
		Thread struct {
			Type     string        `json:"$type"`
			NotFound bool          `json:"notFound"`
			Post     *bskyPostView `json:"post"`
		} `json:"thread"`
	}
	if err := s.deps.Fetcher.GetJSON(ctx, endpoint, &resp); err != nil {
		if isStatus(err, 400) {
			return nil, notFound(models.PlatformBluesky, "post %s not found", uri)
		}
		return nil, upstream(models.PlatformBluesky, err)
	}
	if resp.Thread.NotFound || resp.Thread.Post == nil || strings.Contains(resp.Thread.Type, "notFound") || strings.Contains(resp.Thread.Type, "blocked") {
		return nil, notFound(models.PlatformBluesky, "post %s not found", uri)
	}
	return resp.Thread.Post, nil
}

func (s *BlueskyStrategy) getPosts(ctx context.Context, uri string) (*bskyPostView, error) {
	endpoint := s.deps.Endpoints.BlueskyAPI + "/app.bsky.feed.getPosts?uris=" + url.QueryEscape(uri)
	var resp struct {
		Posts []bskyPostView `json:"posts"`
	}
	if err := s.deps.Fetcher.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, upstream(models.PlatformBluesky, err)
	}
	if len(resp.Posts) == 0 {
		return nil, notFound(models.PlatformBluesky, "post %s not found", uri)
	}
	return &resp.Posts[0], nil
}

func parseBlueskyURL(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse url: %w", err)
	}
	m := blueskyPostPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", "", fmt.Errorf("expected /profile/<handle>/post/<id>, got %q", u.Path)
	}
	return m[1], m[2], nil
}

func atURI(actor, rkey string) string {
	return "at://" + actor + "/app.bsky.feed.post/" + rkey
}
