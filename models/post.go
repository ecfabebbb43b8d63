package models

import "strings"

// Platform tags the source a URL was classified as. It also selects the
// variant payload carried by a Post.
type Platform string

const (
	PlatformTwitter       Platform = "twitter"
	PlatformTwitterThread Platform = "twitter-thread"
	PlatformMacRumors     Platform = "macrumors"
	PlatformBluesky       Platform = "bluesky"
	PlatformMastodon      Platform = "mastodon"
	PlatformThreads       Platform = "threads"
	PlatformYouTube       Platform = "youtube"
	PlatformTikTok        Platform = "tiktok"
	PlatformArticle       Platform = "article"
	PlatformUnsupported   Platform = "unsupported"
)

// Supported reports whether a capture strategy exists for the platform.
func (p Platform) Supported() bool {
	switch p {
	case PlatformTwitter, PlatformTwitterThread, PlatformMacRumors, PlatformBluesky,
		PlatformMastodon, PlatformThreads, PlatformYouTube, PlatformTikTok, PlatformArticle:
		return true
	}
	return false
}

// MaxInlineMedia caps the number of images embedded into a social card.
const MaxInlineMedia = 4

// Author identifies who published a post.
type Author struct {
	Name            string `json:"name,omitempty"`
	Handle          string `json:"handle,omitempty"`
	Title           string `json:"title,omitempty"` // forum rank, channel description, etc
	AvatarInline    string `json:"-"`               // data URI, rendering only
	AvatarSourceURL string `json:"avatar_url,omitempty"`
	Verified        bool   `json:"verified,omitempty"`
}

// Label is a short human readable name for summaries.
func (a Author) Label() string {
	switch {
	case a.Name != "" && a.Handle != "":
		return a.Name + " (@" + a.Handle + ")"
	case a.Name != "":
		return a.Name
	case a.Handle != "":
		return "@" + a.Handle
	}
	return ""
}

// Metrics holds engagement counters. Unknown counters stay 0.
type Metrics struct {
	Replies   int `json:"replies"`
	Reposts   int `json:"reposts"`
	Likes     int `json:"likes"`
	Quotes    int `json:"quotes"`
	Views     int `json:"views"`
	Bookmarks int `json:"bookmarks"`
}

// ThreadEntry is one post of a reconstructed conversation.
type ThreadEntry struct {
	Author          Author
	Content         string
	MediaInline     []string
	MediaSourceURLs []string
	Timestamp       string
	IsMainTweet     bool
}

// ForumDetail carries forum specific fields.
type ForumDetail struct {
	ThreadTitle string
	PostID      string
	PostNumber  string
}

// VideoDetail carries video platform fields.
type VideoDetail struct {
	VideoID         string
	Title           string
	Channel         string
	ThumbnailInline string
}

// ArticleDetail carries generic article fields.
type ArticleDetail struct {
	Title       string
	Description string
	SiteName    string
	ImageInline string
}

// Post is the normalized result of one extraction. Platform selects which
// variant payload is set: Thread for twitter-thread, Forum for macrumors,
// Video for youtube and tiktok, Article for article. Plain social posts use
// only the common fields.
//
// A Post is built once by an extractor and treated as read-only afterwards.
type Post struct {
	Platform        Platform
	SourceURL       string
	Author          Author
	Content         string
	MediaInline     []string
	MediaSourceURLs []string
	Metrics         Metrics
	Timestamp       string

	Thread  []ThreadEntry
	Forum   *ForumDetail
	Video   *VideoDetail
	Article *ArticleDetail
}

// AllMediaSourceURLs returns the media to persist, including thread replies.
func (p *Post) AllMediaSourceURLs() []string {
	if p.Platform != PlatformTwitterThread {
		return p.MediaSourceURLs
	}
	var urls []string
	seen := make(map[string]bool)
	for _, u := range p.MediaSourceURLs {
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	for _, entry := range p.Thread {
		for _, u := range entry.MediaSourceURLs {
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// Text returns the text used for language detection.
func (p *Post) Text() string {
	switch p.Platform {
	case PlatformTwitterThread:
		parts := make([]string, 0, len(p.Thread))
		for _, entry := range p.Thread {
			parts = append(parts, entry.Content)
		}
		return strings.Join(parts, "\n")
	case PlatformYouTube, PlatformTikTok:
		if p.Video != nil && p.Content == "" {
			return p.Video.Title
		}
	case PlatformArticle:
		if p.Article != nil {
			return p.Article.Title + "\n" + p.Article.Description
		}
	}
	return p.Content
}
