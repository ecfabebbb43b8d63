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

// MaxForumExcerpt bounds forum post text.
const MaxForumExcerpt = 500

var (
	forumFragmentPattern = regexp.MustCompile(`^post-(\d+)$`)
	forumPathPattern     = regexp.MustCompile(`/(?:post-|posts/)(\d+)`)
	forumThreadPattern   = regexp.MustCompile(`^/threads/[^/]+`)
)

// ForumStrategy captures a single post of a XenForo thread page.
type ForumStrategy struct {
	deps Deps
}

func NewForumStrategy(deps Deps) *ForumStrategy {
	deps.applyDefaults()
	return &ForumStrategy{deps: deps}
}

func (s *ForumStrategy) Extract(ctx context.Context, rawURL string) (*models.Post, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, invalidShape(models.PlatformMacRumors, "parse url: %v", err)
	}
	postID := forumPostID(u)
	if postID == "" && !forumThreadPattern.MatchString(u.Path) {
		return nil, invalidShape(models.PlatformMacRumors, "expected a thread or post link, got %q", u.Path)
	}

	body, err := s.deps.Fetcher.GetHtmlBytes(ctx, rawURL)
	if err != nil {
		return nil, upstream(models.PlatformMacRumors, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ExtractionError{Platform: models.PlatformMacRumors, Kind: ErrUpstreamUnavailable, Cause: fmt.Errorf("parse html: %w", err)}
	}
	og := openGraph(body)

	post, matched := findForumPost(doc, postID)
	if post.Length() == 0 && og.Description == "" {
		return nil, notFound(models.PlatformMacRumors, "post %q not found on page", postID)
	}
	if !matched {
		if postID != "" {
			s.deps.Logger.Debug("post not on page, using first post", "url", rawURL, "post_id", postID)
		}
		postID = containerPostID(post)
	}

	var author models.Author
	var content, postNumber, timestamp, avatarURL string
	var mediaURLs []string
	if post.Length() > 0 {
		author.Name = strings.TrimSpace(firstNonEmpty(post.AttrOr("data-author", ""), post.Find(".message-name").First().Text()))
		author.Title = strings.TrimSpace(post.Find(".userTitle").First().Text())
		if src, ok := post.Find(".message-avatar img").First().Attr("src"); ok {
			avatarURL = resolveURL(u, src)
		}

		wrapper := post.Find(".message-body .bbWrapper").First()
		if wrapper.Length() == 0 {
			wrapper = post.Find(".message-content").First()
		}
		wrapper.Find("blockquote, .bbCodeBlock--quote, script, style").Remove()
		wrapper.Find("img.bbImage, img[data-url]").Each(func(_ int, img *goquery.Selection) {
			src := firstNonEmpty(img.AttrOr("data-url", ""), img.AttrOr("src", ""))
			if abs := resolveURL(u, src); abs != "" {
				mediaURLs = append(mediaURLs, abs)
			}
		})
		if html, err := wrapper.Html(); err == nil {
			content = htmlToText(html)
		}

		postNumber = strings.TrimSpace(post.Find(".message-attribution-opposite li:last-child a, .message-attribution-opposite a").Last().Text())
		timestamp = firstNonEmpty(post.Find("time[datetime]").First().AttrOr("datetime", ""), post.Find("time").First().Text())
	}

	if content == "" {
		content = og.Description
	}
	if content == "" && len(mediaURLs) == 0 {
		return nil, notFound(models.PlatformMacRumors, "post %q has no text", postID)
	}

	threadTitle := strings.TrimSpace(doc.Find("h1.p-title-value").First().Text())
	if threadTitle == "" {
		threadTitle = strings.TrimSpace(og.Title)
	}
	if avatarURL == "" && author.Name == "" {
		if img := firstOGImage(og); img != "" {
			avatarURL = resolveURL(u, img)
		}
	}

	mediaURLs = dedupe(mediaURLs)
	if len(mediaURLs) > models.MaxInlineMedia {
		mediaURLs = mediaURLs[:models.MaxInlineMedia]
	}
	images := materialize(ctx, s.deps.Materializer, avatarURL, mediaURLs, "")
	author.AvatarInline = images.avatar
	author.AvatarSourceURL = avatarURL

	return &models.Post{
		Platform:        models.PlatformMacRumors,
		SourceURL:       rawURL,
		Author:          author,
		Content:         truncate(content, MaxForumExcerpt),
		MediaInline:     images.media,
		MediaSourceURLs: mediaURLs,
		Timestamp:       formatTimestamp(timestamp),
		Forum: &models.ForumDetail{
			ThreadTitle: threadTitle,
			PostID:      postID,
			PostNumber:  postNumber,
		},
	}, nil
}

// forumPostID reads the post id from a #post-<id> fragment or a
// /post-<id> or /posts/<id> path segment.
func forumPostID(u *url.URL) string {
	if m := forumFragmentPattern.FindStringSubmatch(u.Fragment); m != nil {
		return m[1]
	}
	if m := forumPathPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return ""
}

// findForumPost locates the post container. matched is false when it fell
// back to the first post on the page.
func findForumPost(doc *goquery.Document, postID string) (post *goquery.Selection, matched bool) {
	if postID != "" {
		for _, sel := range []string{
			"#js-post-" + postID,
			"#post-" + postID,
			`[data-content="post-` + postID + `"]`,
		} {
			if found := doc.Find(sel).First(); found.Length() > 0 {
				if !found.Is("article") {
					if inner := found.Find("article.message").First(); inner.Length() > 0 {
						return inner, true
					}
				}
				return found, true
			}
		}
	}
	return doc.Find("article.message").First(), false
}

// containerPostID reads the id of a post container from its id or
// data-content attribute.
func containerPostID(post *goquery.Selection) string {
	for _, attr := range []string{"id", "data-content"} {
		v := strings.TrimPrefix(post.AttrOr(attr, ""), "js-")
		if id, ok := strings.CutPrefix(v, "post-"); ok && id != "" {
			return id
		}
	}
	return ""
}
