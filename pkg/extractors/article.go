package extractors

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/dtnitsch/post-capture/models"
)

// MaxArticleDescription bounds the article summary shown on the card.
const MaxArticleDescription = 300

// ArticleStrategy summarizes a news article with readability and og tags.
type ArticleStrategy struct {
	deps Deps
}

func NewArticleStrategy(deps Deps) *ArticleStrategy {
	deps.applyDefaults()
	return &ArticleStrategy{deps: deps}
}

func (s *ArticleStrategy) Extract(ctx context.Context, rawURL string) (*models.Post, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, invalidShape(models.PlatformArticle, "unparseable article url %q", rawURL)
	}

	resp, err := s.deps.Fetcher.Get(ctx, rawURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, upstream(models.PlatformArticle, err)
	}
	if final, err := url.Parse(resp.FinalURL); err == nil && final.Host != "" {
		u = final
	}

	og := openGraph(resp.Body)
	parser := readability.NewParser()
	article, err := parser.Parse(bytes.NewReader(resp.Body), u)
	if err != nil {
		s.deps.Logger.Debug("readability failed, using og tags only", "url", rawURL, "error", err)
	}

	title := firstNonEmpty(og.Title, article.Title)
	description := firstNonEmpty(og.Description, article.Excerpt)
	if strings.TrimSpace(title) == "" && strings.TrimSpace(description) == "" {
		return nil, notFound(models.PlatformArticle, "no title or description found")
	}

	siteName := firstNonEmpty(og.SiteName, article.SiteName, strings.TrimPrefix(u.Hostname(), "www."))
	imageURL := resolveURL(u, firstNonEmpty(firstOGImage(og), article.Image))

	var timestamp string
	if article.PublishedTime != nil {
		timestamp = article.PublishedTime.UTC().Format(time.RFC3339)
	}

	var mediaURLs []string
	if imageURL != "" {
		mediaURLs = []string{imageURL}
	}
	images := materialize(ctx, s.deps.Materializer, "", nil, imageURL)

	return &models.Post{
		Platform:        models.PlatformArticle,
		SourceURL:       rawURL,
		Author:          models.Author{Name: strings.TrimSpace(article.Byline)},
		Content:         truncate(normalizeText(description), MaxArticleDescription),
		MediaSourceURLs: mediaURLs,
		Timestamp:       timestamp,
		Article: &models.ArticleDetail{
			Title:       strings.TrimSpace(title),
			Description: truncate(normalizeText(description), MaxArticleDescription),
			SiteName:    siteName,
			ImageInline: images.extra,
		},
	}, nil
}
