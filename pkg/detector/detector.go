package detector

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/dtnitsch/post-capture/models"
)

// articleHosts are news sites captured with the generic article strategy.
var articleHosts = []string{
	"appleinsider.com",
	"9to5mac.com",
	"theverge.com",
	"arstechnica.com",
	"techcrunch.com",
	"wired.com",
	"engadget.com",
}

// Mastodon has no fixed host, so instances are recognised by their status
// path shape: /@handle/<numeric id>.
var mastodonStatusPattern = regexp.MustCompile(`^/@[A-Za-z0-9_.]+(@[A-Za-z0-9.\-]+)?/\d+/?$`)

// Classify maps a URL to the platform whose strategy should capture it.
// It is pure and never fails: anything unrecognised is unsupported.
func Classify(rawURL string) models.Platform {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return models.PlatformUnsupported
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return models.PlatformUnsupported
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return models.PlatformUnsupported
	}

	switch {
	case hostIs(host, "twitter.com", "x.com"):
		return models.PlatformTwitter
	case hostIs(host, "forums.macrumors.com"):
		return models.PlatformMacRumors
	case hostIs(host, "macrumors.com"):
		return models.PlatformArticle
	case hostIs(host, "bsky.app"):
		return models.PlatformBluesky
	case hostIs(host, "threads.net", "threads.com"):
		return models.PlatformThreads
	case hostIs(host, "youtube.com", "youtu.be"):
		return models.PlatformYouTube
	case hostIs(host, "tiktok.com"):
		return models.PlatformTikTok
	case hostIs(host, articleHosts...):
		return models.PlatformArticle
	case mastodonStatusPattern.MatchString(u.EscapedPath()):
		return models.PlatformMastodon
	}
	return models.PlatformUnsupported
}

// ResolvePlatform classifies the URL and upgrades twitter to twitter-thread
// when the whole conversation should be rendered.
func ResolvePlatform(rawURL string, renderThread bool) models.Platform {
	platform := Classify(rawURL)
	if platform == models.PlatformTwitter && renderThread {
		return models.PlatformTwitterThread
	}
	return platform
}

func normalizeHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, prefix := range []string{"www.", "mobile.", "m."} {
		host = strings.TrimPrefix(host, prefix)
	}
	return host
}

// hostIs matches the domain itself or any of its subdomains.
func hostIs(host string, domains ...string) bool {
	for _, domain := range domains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
