package extractors

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"

	"github.com/dtnitsch/post-capture/models"
	"github.com/dtnitsch/post-capture/pkg/media"
)

// materialized holds inlined images for one post.
type materialized struct {
	avatar string
	media  []string
	extra  string
}

// materialize inlines the avatar, up to MaxInlineMedia media images and one
// optional extra image (thumbnail) concurrently.
func materialize(ctx context.Context, m media.Materializer, avatarURL string, mediaURLs []string, extraURL string) materialized {
	var out materialized
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		out.avatar = media.InlineOne(ctx, m, avatarURL)
	}()
	go func() {
		defer wg.Done()
		out.media = media.InlineAll(ctx, m, mediaURLs, models.MaxInlineMedia)
	}()
	go func() {
		defer wg.Done()
		out.extra = media.InlineOne(ctx, m, extraURL)
	}()
	wg.Wait()
	return out
}

// truncate cuts s to at most max runes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

var whitespaceRun = regexp.MustCompile(`[ \t\r\f\v]+`)
var blankLines = regexp.MustCompile(`\n{3,}`)

// normalizeText collapses runs of spaces and blank lines.
func normalizeText(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLines.ReplaceAllString(s, "\n\n"))
}

// htmlToText converts a post body fragment to plain text, keeping paragraph
// and line breaks.
func htmlToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return normalizeText(fragment)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		p.AppendHtml("\n\n")
	})
	return normalizeText(doc.Text())
}

// parseCount reads engagement counts such as "1,234", "1.2K" or "3M".
// Unparseable input yields 0.
func parseCount(raw string) int {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}
	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1_000
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1_000_000
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "B"):
		multiplier = 1_000_000_000
		s = strings.TrimSuffix(s, "B")
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return 0
	}
	return int(value*multiplier + 0.5)
}

var metricPattern = regexp.MustCompile(`(?i)([\d][\d.,]*\s*[KMB]?)\s+(repl(?:y|ies)|reposts?|retweets?|likes?|quotes?|views?|bookmarks?)\b`)

// parseMetrics scrapes counters from free text like "12 replies, 1.2K likes".
// Counters that are not mentioned stay 0.
func parseMetrics(text string) models.Metrics {
	var m models.Metrics
	for _, match := range metricPattern.FindAllStringSubmatch(text, -1) {
		n := parseCount(strings.ReplaceAll(match[1], " ", ""))
		switch label := strings.ToLower(match[2]); {
		case strings.HasPrefix(label, "repl"):
			m.Replies = n
		case strings.HasPrefix(label, "repost"), strings.HasPrefix(label, "retweet"):
			m.Reposts = n
		case strings.HasPrefix(label, "like"):
			m.Likes = n
		case strings.HasPrefix(label, "quote"):
			m.Quotes = n
		case strings.HasPrefix(label, "view"):
			m.Views = n
		case strings.HasPrefix(label, "bookmark"):
			m.Bookmarks = n
		}
	}
	return m
}

// resolveURL makes ref absolute against base. Unparseable refs are dropped.
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}

// openGraph parses og:* meta tags. Parse failures yield an empty result.
func openGraph(body []byte) *opengraph.OpenGraph {
	og := opengraph.NewOpenGraph()
	_ = og.ProcessHTML(bytes.NewReader(body))
	return og
}

func firstOGImage(og *opengraph.OpenGraph) string {
	for _, img := range og.Images {
		if img == nil {
			continue
		}
		if img.SecureURL != "" {
			return img.SecureURL
		}
		if img.URL != "" {
			return img.URL
		}
	}
	return ""
}

// metaContent reads a <meta name|property=key> value from a document.
func metaContent(doc *goquery.Document, key string) string {
	sel := doc.Find(`meta[property="` + key + `"], meta[name="` + key + `"]`).First()
	content, _ := sel.Attr("content")
	return strings.TrimSpace(content)
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
