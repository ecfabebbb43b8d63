package extractors

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/dtnitsch/post-capture/models"
)

var mastodonPathPattern = regexp.MustCompile(`^/@([A-Za-z0-9_.]+(?:@[A-Za-z0-9.\-]+)?)/(\d+)/?$`)

type mastodonAccount struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
	Bot         bool   `json:"bot"`
}

type mastodonAttachment struct {
	Type       string `json:"type"`
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url"`
	RemoteURL  string `json:"remote_url"`
}

type mastodonStatus struct {
	ID               string               `json:"id"`
	CreatedAt        string               `json:"created_at"`
	Content          string               `json:"content"`
	SpoilerText      string               `json:"spoiler_text"`
	Account          mastodonAccount      `json:"account"`
	MediaAttachments []mastodonAttachment `json:"media_attachments"`
	RepliesCount     int                  `json:"replies_count"`
	ReblogsCount     int                  `json:"reblogs_count"`
	FavouritesCount  int                  `json:"favourites_count"`
	Reblog           *mastodonStatus      `json:"reblog"`
}

// MastodonStrategy reads statuses from the instance named in the URL.
type MastodonStrategy struct {
	deps Deps
}

func NewMastodonStrategy(deps Deps) *MastodonStrategy {
	deps.applyDefaults()
	return &MastodonStrategy{deps: deps}
}

func (s *MastodonStrategy) Extract(ctx context.Context, rawURL string) (*models.Post, error) {
	base, acct, id, err := parseMastodonURL(rawURL)
	if err != nil {
		return nil, invalidShape(models.PlatformMastodon, "%v", err)
	}

	var account mastodonAccount
	lookup := base + "/api/v1/accounts/lookup?acct=" + url.QueryEscape(acct)
	if err := s.deps.Fetcher.GetJSON(ctx, lookup, &account); err != nil {
		return nil, upstream(models.PlatformMastodon, err)
	}

	var status mastodonStatus
	if err := s.deps.Fetcher.GetJSON(ctx, base+"/api/v1/statuses/"+id, &status); err != nil {
		return nil, upstream(models.PlatformMastodon, err)
	}
	if status.Reblog != nil {
		status = *status.Reblog
	}
	if status.Account.ID == "" {
		status.Account = account
	} else if account.ID != "" && status.Account.ID != account.ID {
		s.deps.Logger.Debug("status author differs from looked up account", "url", rawURL, "acct", acct, "author", status.Account.Acct)
	}

	content := htmlToText(status.Content)
	if status.SpoilerText != "" {
		content = strings.TrimSpace(status.SpoilerText + "\n\n" + content)
	}

	var previews, originals []string
	for _, att := range status.MediaAttachments {
		switch att.Type {
		case "image":
			previews = append(previews, firstNonEmpty(att.PreviewURL, att.URL))
			originals = append(originals, firstNonEmpty(att.URL, att.RemoteURL, att.PreviewURL))
		case "video", "gifv":
			if att.PreviewURL != "" {
				previews = append(previews, att.PreviewURL)
				originals = append(originals, att.PreviewURL)
			}
		}
	}
	if content == "" && len(originals) == 0 {
		return nil, notFound(models.PlatformMastodon, "status %s has no content", id)
	}
	if len(originals) > models.MaxInlineMedia {
		previews, originals = previews[:models.MaxInlineMedia], originals[:models.MaxInlineMedia]
	}

	images := materialize(ctx, s.deps.Materializer, status.Account.Avatar, previews, "")
	handle := status.Account.Acct
	if !strings.Contains(handle, "@") {
		if u, err := url.Parse(base); err == nil {
			handle = handle + "@" + u.Hostname()
		}
	}

	return &models.Post{
		Platform:  models.PlatformMastodon,
		SourceURL: rawURL,
		Author: models.Author{
			Name:            firstNonEmpty(status.Account.DisplayName, status.Account.Username),
			Handle:          handle,
			AvatarInline:    images.avatar,
			AvatarSourceURL: status.Account.Avatar,
		},
		Content:         content,
		MediaInline:     images.media,
		MediaSourceURLs: originals,
		Metrics: models.Metrics{
			Replies: status.RepliesCount,
			Reposts: status.ReblogsCount,
			Likes:   status.FavouritesCount,
		},
		Timestamp: formatTimestamp(status.CreatedAt),
	}, nil
}

// parseMastodonURL returns the instance base URL, account and status id.
func parseMastodonURL(rawURL string) (string, string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parse url: %w", err)
	}
	m := mastodonPathPattern.FindStringSubmatch(u.Path)
	if m == nil || u.Host == "" {
		return "", "", "", fmt.Errorf("expected /@<handle>/<id>, got %q", u.Path)
	}
	return u.Scheme + "://" + u.Host, m[1], m[2], nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
