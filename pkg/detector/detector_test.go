package detector

import (
	"testing"

	"github.com/dtnitsch/post-capture/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want models.Platform
	}{
		{"https://twitter.com/jack/status/20", models.PlatformTwitter},
		{"https://x.com/jack/status/20", models.PlatformTwitter},
		{"https://mobile.twitter.com/jack/status/20", models.PlatformTwitter},
		{"https://WWW.X.COM/jack/status/20", models.PlatformTwitter},
		{"https://forums.macrumors.com/threads/foo.123/post-456", models.PlatformMacRumors},
		{"https://www.macrumors.com/2024/01/01/story/", models.PlatformArticle},
		{"https://bsky.app/profile/alice.bsky.social/post/3kabc", models.PlatformBluesky},
		{"https://www.threads.net/@zuck/post/C1abc", models.PlatformThreads},
		{"https://threads.com/@zuck/post/C1abc", models.PlatformThreads},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", models.PlatformYouTube},
		{"https://m.youtube.com/shorts/abc", models.PlatformYouTube},
		{"https://youtu.be/dQw4w9WgXcQ", models.PlatformYouTube},
		{"https://www.tiktok.com/@user/video/123", models.PlatformTikTok},
		{"https://appleinsider.com/articles/24/01/01/x", models.PlatformArticle},
		{"https://www.theverge.com/2024/1/1/123/story", models.PlatformArticle},
		{"https://arstechnica.com/gadgets/2024/01/x/", models.PlatformArticle},
		{"https://mastodon.social/@Gargron/109412234213412", models.PlatformMastodon},
		{"https://fosstodon.org/@someone/1234567", models.PlatformMastodon},
		{"https://mastodon.social/@Gargron", models.PlatformUnsupported},
		{"https://example.com/some/page", models.PlatformUnsupported},
		{"ftp://twitter.com/jack/status/20", models.PlatformUnsupported},
		{"not a url", models.PlatformUnsupported},
		{"", models.PlatformUnsupported},
		{"https://nottwitter.com/jack/status/20", models.PlatformUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := Classify(tt.url); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	url := "https://bsky.app/profile/alice.bsky.social/post/3kabc"
	first := Classify(url)
	for i := 0; i < 5; i++ {
		if got := Classify(url); got != first {
			t.Fatalf("Classify() changed from %q to %q", first, got)
		}
	}
}

func TestResolvePlatform(t *testing.T) {
	tests := []struct {
		url    string
		thread bool
		want   models.Platform
	}{
		{"https://x.com/jack/status/20", false, models.PlatformTwitter},
		{"https://x.com/jack/status/20", true, models.PlatformTwitterThread},
		{"https://bsky.app/profile/a/post/b", true, models.PlatformBluesky},
		{"https://example.com", true, models.PlatformUnsupported},
	}
	for _, tt := range tests {
		if got := ResolvePlatform(tt.url, tt.thread); got != tt.want {
			t.Errorf("ResolvePlatform(%q, %v) = %q, want %q", tt.url, tt.thread, got, tt.want)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	if _, ok := DetectLanguage("hi"); ok {
		t.Error("DetectLanguage() ok = true for very short text")
	}

	got, ok := DetectLanguage("The quick brown fox jumps over the lazy dog while everyone watches the game.")
	if !ok {
		t.Fatal("DetectLanguage() ok = false for English sentence")
	}
	if got.Code != "en" {
		t.Errorf("Code = %q, want en", got.Code)
	}
	if got.Confidence <= 0 || got.Confidence > 1 {
		t.Errorf("Confidence = %v, want (0,1]", got.Confidence)
	}
}
