package extractors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dtnitsch/post-capture/models"
	"github.com/dtnitsch/post-capture/pkg/fetcher"
)

// fakeMaterializer inlines every URL except ones containing "broken".
type fakeMaterializer struct{}

func (fakeMaterializer) ToInline(_ context.Context, u string) (string, bool) {
	if u == "" || strings.Contains(u, "broken") {
		return "", false
	}
	return "data:image/png;base64," + u, true
}

func (fakeMaterializer) PersistOriginal(_ context.Context, _, dest string) (string, bool) {
	return dest, true
}

// fakeDOM returns a canned JSON result for any page.
type fakeDOM struct {
	result  string
	err     error
	lastURL string
}

func (f *fakeDOM) LoadAndEvaluate(_ context.Context, rawURL, _ string, _, _ time.Duration, _ string, out any) error {
	f.lastURL = rawURL
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.result), out)
}

func testDeps(dom DOMLoader) Deps {
	return Deps{
		Fetcher:      fetcher.New(fetcher.Options{Timeout: 5 * time.Second}),
		Materializer: fakeMaterializer{},
		DOM:          dom,
		Endpoints:    DefaultEndpoints(),
		Settle:       0,
	}
}

func wantKind(t *testing.T, err error, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want kind %v", err, kind)
	}
	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("error %T is not an *ExtractionError", err)
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"0", 0},
		{"12", 12},
		{"1,234", 1234},
		{"1.2K", 1200},
		{"3M", 3000000},
		{"2.5m", 2500000},
		{"", 0},
		{"lots", 0},
	}
	for _, tt := range tests {
		if got := parseCount(tt.in); got != tt.want {
			t.Errorf("parseCount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseMetrics(t *testing.T) {
	got := parseMetrics("12 replies, 30 reposts, 1.2K likes, 5 bookmarks, 10,000 views")
	want := models.Metrics{Replies: 12, Reposts: 30, Likes: 1200, Bookmarks: 5, Views: 10000}
	if got != want {
		t.Errorf("parseMetrics() = %+v, want %+v", got, want)
	}
	if got := parseMetrics("no counters here"); got != (models.Metrics{}) {
		t.Errorf("parseMetrics() = %+v, want zero", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	got := truncate(strings.Repeat("é", 20), 10)
	if n := len([]rune(got)); n != 10 {
		t.Errorf("truncate() rune length = %d, want 10", n)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncate() = %q, want ellipsis", got)
	}
}

func TestHTMLToText(t *testing.T) {
	got := htmlToText(`<p>Hello <a href="#">world</a></p><p>line one<br>line two</p>`)
	want := "Hello world\n\nline one\nline two"
	if got != want {
		t.Errorf("htmlToText() = %q, want %q", got, want)
	}
}

func TestUpgradeTwitterMedia(t *testing.T) {
	got := upgradeTwitterMedia([]string{
		"https://pbs.twimg.com/media/ABC?format=jpg&name=small",
		"https://pbs.twimg.com/media/ABC?format=jpg&name=small",
		"https://pbs.twimg.com/ext_tw_video_thumb/1/pu/img/x.jpg",
	})
	if len(got) != 2 {
		t.Fatalf("upgradeTwitterMedia() = %v, want 2 entries", got)
	}
	if got[0] != "https://pbs.twimg.com/media/ABC?format=jpg&name=orig" {
		t.Errorf("upgradeTwitterMedia()[0] = %q", got[0])
	}
	if got[1] != "https://pbs.twimg.com/ext_tw_video_thumb/1/pu/img/x.jpg" {
		t.Errorf("upgradeTwitterMedia()[1] = %q", got[1])
	}
}

func TestExtractionErrorKinds(t *testing.T) {
	err := invalidShape(models.PlatformTikTok, "bad path %q", "/x")
	wantKind(t, err, ErrInvalidURLShape)
	var extractionErr *ExtractionError
	errors.As(err, &extractionErr)
	if extractionErr.KindName() != "invalid_url_shape" {
		t.Errorf("KindName() = %q", extractionErr.KindName())
	}

	notFoundErr := upstream(models.PlatformBluesky, fmt.Errorf("%w: %w", fetcher.ErrUpstream, &fetcher.StatusError{StatusCode: 404}))
	wantKind(t, notFoundErr, ErrContentNotFound)
	if !errors.Is(notFoundErr, fetcher.ErrUpstream) {
		t.Error("cause should stay reachable through errors.Is")
	}

	wantKind(t, upstream(models.PlatformBluesky, fetcher.ErrUpstream), ErrUpstreamUnavailable)
}

type stubStrategy struct {
	post *models.Post
	err  error
}

func (s stubStrategy) Extract(context.Context, string) (*models.Post, error) {
	return s.post, s.err
}

func TestDispatcher(t *testing.T) {
	d := NewDispatcher(testDeps(nil))

	_, err := d.Extract(context.Background(), "https://x.com/a/status/1", models.PlatformTwitter)
	wantKind(t, err, ErrNoStrategy)

	d.Register(models.PlatformTwitter, stubStrategy{post: &models.Post{Platform: models.PlatformTwitter, SourceURL: "https://x.com/a/status/1", Content: "hi"}})
	post, err := d.Extract(context.Background(), "https://x.com/a/status/1", models.PlatformTwitter)
	if err != nil || post.Content != "hi" {
		t.Fatalf("Extract() = %+v, %v", post, err)
	}

	d.Register(models.PlatformTikTok, stubStrategy{})
	_, err = d.Extract(context.Background(), "https://tiktok.com/@a/video/1", models.PlatformTikTok)
	wantKind(t, err, ErrContentNotFound)

	d.Register(models.PlatformYouTube, stubStrategy{post: &models.Post{Platform: models.PlatformYouTube, Content: "no url"}})
	_, err = d.Extract(context.Background(), "https://youtu.be/abc", models.PlatformYouTube)
	wantKind(t, err, ErrContentNotFound)
}

func TestDispatcher_RegistersBrowserStrategiesWithDOM(t *testing.T) {
	d := NewDispatcher(testDeps(&fakeDOM{}))
	for _, p := range []models.Platform{
		models.PlatformTwitter, models.PlatformTwitterThread, models.PlatformBluesky,
		models.PlatformMastodon, models.PlatformThreads, models.PlatformMacRumors,
		models.PlatformArticle, models.PlatformYouTube, models.PlatformTikTok,
	} {
		if _, ok := d.strategies[p]; !ok {
			t.Errorf("no strategy registered for %s", p)
		}
	}
}
