package extractors

import (
	"context"
	"fmt"
	"sync"

	"github.com/dtnitsch/post-capture/models"
)

// threadScript enumerates every rendered tweet of a conversation in
// document order.
const threadScript = `(() => {
  const text = (el) => el ? el.innerText.trim() : '';
  return Array.from(document.querySelectorAll('article[data-testid="tweet"]')).map(article => {
    const userName = article.querySelector('[data-testid="User-Name"]');
    const spans = userName ? Array.from(userName.querySelectorAll('span')).map(s => s.innerText.trim()).filter(Boolean) : [];
    const avatar = article.querySelector('img[src*="profile_images"]');
    const media = Array.from(article.querySelectorAll('[data-testid="tweetPhoto"] img, img[src*="pbs.twimg.com/media"]')).map(i => i.src);
    const time = article.querySelector('time');
    const group = article.querySelector('[role="group"][aria-label]');
    return {
      name: spans.find(s => !s.startsWith('@')) || '',
      handle: (spans.find(s => s.startsWith('@')) || '').replace(/^@/, ''),
      avatar: avatar ? avatar.src : '',
      text: text(article.querySelector('[data-testid="tweetText"]')),
      media: Array.from(new Set(media)),
      time: time ? (time.getAttribute('datetime') || '') : '',
      verified: !!article.querySelector('[data-testid="icon-verified"]'),
      metrics: group ? group.getAttribute('aria-label') : '',
      fullText: ''
    };
  });
})()`

// ThreadStrategy captures a whole conversation from the status page.
type ThreadStrategy struct {
	deps Deps
}

func NewThreadStrategy(deps Deps) *ThreadStrategy {
	deps.applyDefaults()
	return &ThreadStrategy{deps: deps}
}

func (s *ThreadStrategy) Extract(ctx context.Context, rawURL string) (*models.Post, error) {
	user, id, err := parseTweetURL(rawURL)
	if err != nil {
		return nil, invalidShape(models.PlatformTwitterThread, "%v", err)
	}
	if user == "" {
		user = "i/web"
	}

	statusURL := fmt.Sprintf(s.deps.Endpoints.TwitterStatus, user, id)
	var rendered []tweetDOM
	if err := s.deps.DOM.LoadAndEvaluate(ctx, statusURL, `article[data-testid="tweet"]`, s.deps.DOMWait, s.deps.Settle, threadScript, &rendered); err != nil {
		return nil, &ExtractionError{Platform: models.PlatformTwitterThread, Kind: ErrUpstreamUnavailable, Cause: err}
	}

	var tweets []tweetDOM
	for _, t := range rendered {
		if !t.empty() {
			tweets = append(tweets, t)
		}
	}
	if len(tweets) == 0 {
		return nil, notFound(models.PlatformTwitterThread, "conversation %s rendered no tweets", id)
	}

	entries := make([]models.ThreadEntry, len(tweets))
	var wg sync.WaitGroup
	for i, t := range tweets {
		wg.Add(1)
		go func(i int, t tweetDOM) {
			defer wg.Done()
			mediaURLs := upgradeTwitterMedia(t.Media)
			if len(mediaURLs) > models.MaxInlineMedia {
				mediaURLs = mediaURLs[:models.MaxInlineMedia]
			}
			images := materialize(ctx, s.deps.Materializer, t.Avatar, mediaURLs, "")
			entries[i] = models.ThreadEntry{
				Author: models.Author{
					Name:            t.Name,
					Handle:          t.Handle,
					AvatarInline:    images.avatar,
					AvatarSourceURL: t.Avatar,
					Verified:        t.Verified,
				},
				Content:         normalizeText(t.Text),
				MediaInline:     images.media,
				MediaSourceURLs: mediaURLs,
				Timestamp:       formatTimestamp(t.Time),
				IsMainTweet:     i == 0,
			}
		}(i, t)
	}
	wg.Wait()

	first := entries[0]
	return &models.Post{
		Platform:        models.PlatformTwitterThread,
		SourceURL:       rawURL,
		Author:          first.Author,
		Content:         first.Content,
		MediaInline:     first.MediaInline,
		MediaSourceURLs: first.MediaSourceURLs,
		Metrics:         parseMetrics(tweets[0].Metrics),
		Timestamp:       first.Timestamp,
		Thread:          entries,
	}, nil
}
