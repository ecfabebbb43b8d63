package artifact_manager

import (
	"time"

	"github.com/dtnitsch/post-capture/models"
	"github.com/dtnitsch/post-capture/pkg/detector"
)

// Metadata is the JSON document written next to each card. It carries
// source URLs only; inline image data never leaves the renderer.
type Metadata struct {
	URL        string          `json:"url"`
	Platform   models.Platform `json:"platform"`
	CapturedAt string          `json:"captured_at"`
	RunID      string          `json:"run_id,omitempty"`
	Variant    models.Variant  `json:"variant,omitempty"`
	Card       string          `json:"card"`

	Author    models.Author  `json:"author"`
	Content   string         `json:"content,omitempty"`
	Metrics   models.Metrics `json:"metrics"`
	Timestamp string         `json:"timestamp,omitempty"`

	*detector.LanguageResult

	Thread  []ThreadEntryMetadata `json:"thread,omitempty"`
	Forum   *ForumMetadata        `json:"forum,omitempty"`
	Video   *VideoMetadata        `json:"video,omitempty"`
	Article *ArticleMetadata      `json:"article,omitempty"`

	Media MediaMetadata `json:"media"`
}

// MediaMetadata lists every source URL and the files saved from them.
// Files pairs each download with its URL since Downloaded has gaps.
type MediaMetadata struct {
	OriginalURLs []string     `json:"original_urls"`
	Downloaded   []string     `json:"downloaded"`
	Files        []SavedMedia `json:"files"`
}

type ThreadEntryMetadata struct {
	Author      models.Author `json:"author"`
	Content     string        `json:"content,omitempty"`
	Timestamp   string        `json:"timestamp,omitempty"`
	MediaURLs   []string      `json:"media_urls,omitempty"`
	IsMainTweet bool          `json:"is_main_tweet,omitempty"`
}

type ForumMetadata struct {
	ThreadTitle string `json:"thread_title,omitempty"`
	PostID      string `json:"post_id,omitempty"`
	PostNumber  string `json:"post_number,omitempty"`
}

type VideoMetadata struct {
	VideoID string `json:"video_id,omitempty"`
	Title   string `json:"title,omitempty"`
	Channel string `json:"channel,omitempty"`
}

type ArticleMetadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
}

func buildMetadata(post *models.Post, a Artifacts, sources []string, extras Extras, now time.Time) Metadata {
	meta := Metadata{
		URL:            post.SourceURL,
		Platform:       post.Platform,
		CapturedAt:     now.UTC().Format(time.RFC3339Nano),
		RunID:          extras.RunID,
		Variant:        extras.Variant,
		Card:           a.CardFile,
		Author:         post.Author,
		Content:        post.Content,
		Metrics:        post.Metrics,
		Timestamp:      post.Timestamp,
		LanguageResult: extras.Language,
		Media: MediaMetadata{
			OriginalURLs: nonNil(sources),
			Downloaded:   nonNil(a.MediaFiles),
			Files:        a.Media,
		},
	}

	for _, entry := range post.Thread {
		meta.Thread = append(meta.Thread, ThreadEntryMetadata{
			Author:      entry.Author,
			Content:     entry.Content,
			Timestamp:   entry.Timestamp,
			MediaURLs:   entry.MediaSourceURLs,
			IsMainTweet: entry.IsMainTweet,
		})
	}
	if f := post.Forum; f != nil {
		meta.Forum = &ForumMetadata{ThreadTitle: f.ThreadTitle, PostID: f.PostID, PostNumber: f.PostNumber}
	}
	if v := post.Video; v != nil {
		meta.Video = &VideoMetadata{VideoID: v.VideoID, Title: v.Title, Channel: v.Channel}
	}
	if art := post.Article; art != nil {
		meta.Article = &ArticleMetadata{Title: art.Title, Description: art.Description, SiteName: art.SiteName}
	}
	if meta.Media.Files == nil {
		meta.Media.Files = []SavedMedia{}
	}
	return meta
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
