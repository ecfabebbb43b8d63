// Package render turns a normalized post into a self-contained HTML card.
// Rendering is pure: every image is already an inline data URI, so the
// document never touches the network.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dtnitsch/post-capture/models"
)

// RootID is the id of the single element the rasterizer measures.
const RootID = "capture-root"

// ErrUnsupportedPlatform is returned for posts no template can present.
var ErrUnsupportedPlatform = errors.New("no template for platform")

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Family groups platforms sharing a layout.
type Family string

const (
	FamilySocial  Family = "social"
	FamilyThread  Family = "thread"
	FamilyForum   Family = "forum"
	FamilyVideo   Family = "video"
	FamilyArticle Family = "article"
)

// FamilyFor maps a platform to its layout family.
func FamilyFor(p models.Platform) (Family, error) {
	switch p {
	case models.PlatformTwitter, models.PlatformBluesky, models.PlatformMastodon, models.PlatformThreads:
		return FamilySocial, nil
	case models.PlatformTwitterThread:
		return FamilyThread, nil
	case models.PlatformMacRumors:
		return FamilyForum, nil
	case models.PlatformYouTube, models.PlatformTikTok:
		return FamilyVideo, nil
	case models.PlatformArticle:
		return FamilyArticle, nil
	case models.PlatformUnsupported:
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, p)
}

// Document is a complete HTML page ready for rasterization.
type Document struct {
	HTML    string
	Family  Family
	Variant models.Variant
}

// Render builds the card document for post in the given variant.
func Render(post *models.Post, variant models.Variant) (Document, error) {
	if post == nil {
		return Document{}, errors.New("render: nil post")
	}
	family, err := FamilyFor(post.Platform)
	if err != nil {
		return Document{}, err
	}
	if variant != models.VariantBento {
		variant = models.VariantStandard
	}

	name := string(family) + "-" + string(variant)
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, newView(post, variant)); err != nil {
		return Document{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Document{HTML: buf.String(), Family: family, Variant: variant}, nil
}

type authorView struct {
	Name     string
	Handle   string
	Title    string
	Avatar   template.URL
	Initial  string
	Verified bool
}

type metricView struct {
	Label string
	Value string
}

type entryView struct {
	Author     authorView
	Paragraphs []string
	Media      []template.URL
	Timestamp  string
	IsMain     bool
	Last       bool
}

type view struct {
	Variant       string
	Platform      string
	PlatformLabel string
	RootID        string
	Author        authorView
	Paragraphs    []string
	Media         []template.URL
	Metrics       []metricView
	Timestamp     string
	Source        string

	Thread  []entryView
	Forum   models.ForumDetail
	Video   videoView
	Article articleView
}

type videoView struct {
	VideoID   string
	Title     string
	Channel   string
	Thumbnail template.URL
}

type articleView struct {
	Title       string
	Description string
	SiteName    string
	Image       template.URL
}

func newView(post *models.Post, variant models.Variant) view {
	v := view{
		Variant:       string(variant),
		Platform:      string(post.Platform),
		PlatformLabel: platformLabel(post),
		RootID:        RootID,
		Author:        newAuthorView(post.Author),
		Paragraphs:    paragraphs(post.Content),
		Media:         safeImages(post.MediaInline, models.MaxInlineMedia),
		Metrics:       metricViews(post.Metrics),
		Timestamp:     displayTime(post.Timestamp),
		Source:        sourceHost(post.SourceURL),
	}

	switch post.Platform {
	case models.PlatformTwitterThread:
		entries := post.Thread
		if len(entries) == 0 {
			entries = []models.ThreadEntry{{
				Author:      post.Author,
				Content:     post.Content,
				MediaInline: post.MediaInline,
				Timestamp:   post.Timestamp,
				IsMainTweet: true,
			}}
		}
		v.Thread = make([]entryView, len(entries))
		for i, e := range entries {
			v.Thread[i] = entryView{
				Author:     newAuthorView(e.Author),
				Paragraphs: paragraphs(e.Content),
				Media:      safeImages(e.MediaInline, models.MaxInlineMedia),
				Timestamp:  displayTime(e.Timestamp),
				IsMain:     e.IsMainTweet,
				Last:       i == len(entries)-1,
			}
		}
	case models.PlatformMacRumors:
		if post.Forum != nil {
			v.Forum = *post.Forum
		}
	case models.PlatformYouTube, models.PlatformTikTok:
		if post.Video != nil {
			v.Video = videoView{
				VideoID:   post.Video.VideoID,
				Title:     post.Video.Title,
				Channel:   post.Video.Channel,
				Thumbnail: safeImage(post.Video.ThumbnailInline),
			}
		}
	case models.PlatformArticle:
		if post.Article != nil {
			v.Article = articleView{
				Title:       post.Article.Title,
				Description: post.Article.Description,
				SiteName:    post.Article.SiteName,
				Image:       safeImage(post.Article.ImageInline),
			}
		}
	}
	return v
}

func newAuthorView(a models.Author) authorView {
	initial := "?"
	for _, r := range a.Name + a.Handle {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			initial = strings.ToUpper(string(r))
			break
		}
	}
	return authorView{
		Name:     a.Name,
		Handle:   a.Handle,
		Title:    a.Title,
		Avatar:   safeImage(a.AvatarInline),
		Initial:  initial,
		Verified: a.Verified,
	}
}

// safeImage trusts only inline image data. Anything else is dropped so the
// document can never reference a remote resource.
func safeImage(uri string) template.URL {
	if strings.HasPrefix(uri, "data:image/") {
		return template.URL(uri)
	}
	return ""
}

func safeImages(uris []string, limit int) []template.URL {
	var out []template.URL
	for _, u := range uris {
		if len(out) == limit {
			break
		}
		if safe := safeImage(u); safe != "" {
			out = append(out, safe)
		}
	}
	return out
}

func paragraphs(content string) []string {
	var out []string
	for _, p := range strings.Split(strings.TrimSpace(content), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func metricViews(m models.Metrics) []metricView {
	all := []struct {
		label string
		value int
	}{
		{"Replies", m.Replies},
		{"Reposts", m.Reposts},
		{"Quotes", m.Quotes},
		{"Likes", m.Likes},
		{"Bookmarks", m.Bookmarks},
		{"Views", m.Views},
	}
	var out []metricView
	for _, entry := range all {
		if entry.value > 0 {
			out = append(out, metricView{Label: entry.label, Value: FormatCount(entry.value)})
		}
	}
	return out
}

// FormatCount abbreviates large counters: 1234 -> 1.2K, 3400000 -> 3.4M.
func FormatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return trimZero(float64(n)/1_000_000) + "M"
	case n >= 10_000:
		return strconv.Itoa(n/1_000) + "K"
	case n >= 1_000:
		return trimZero(float64(n)/1_000) + "K"
	}
	return strconv.Itoa(n)
}

func trimZero(f float64) string {
	s := strconv.FormatFloat(f, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0")
}

func displayTime(raw string) string {
	if raw == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Format("3:04 PM · Jan 2, 2006")
	}
	return raw
}

func platformLabel(post *models.Post) string {
	switch post.Platform {
	case models.PlatformTwitter, models.PlatformTwitterThread:
		return "X"
	case models.PlatformBluesky:
		return "Bluesky"
	case models.PlatformMastodon:
		return "Mastodon"
	case models.PlatformThreads:
		return "Threads"
	case models.PlatformMacRumors:
		return "MacRumors Forums"
	case models.PlatformYouTube:
		return "YouTube"
	case models.PlatformTikTok:
		return "TikTok"
	case models.PlatformArticle:
		if post.Article != nil && post.Article.SiteName != "" {
			return post.Article.SiteName
		}
		return "Article"
	}
	return ""
}

func sourceHost(rawURL string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(s, "www.")
}
