package common

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ContentHash computes SHA256 hash of content and returns hex string.
func ContentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

var markdownLink = regexp.MustCompile(`^\[.*?\]\((https?://[^\)]+)\)$`)

// trackingParams are share-link query parameters that never select content.
var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "igshid": true, "igsh": true, "mibextid": true,
	"ref_src": true, "ref_url": true, "si": true, "xmt": true, "is_from_webapp": true,
	"sender_device": true,
}

// SanitizeURL cleans a pasted URL: surrounding whitespace and punctuation,
// markdown link syntax and share-tracking query parameters are removed.
func SanitizeURL(rawURL string) string {
	cleaned := strings.TrimSpace(rawURL)
	if m := markdownLink.FindStringSubmatch(cleaned); len(m) > 1 {
		cleaned = m[1]
	}
	cleaned = strings.TrimRight(cleaned, ",.)}]\"'>;")
	cleaned = strings.TrimLeft(cleaned, "([<\"'")
	cleaned = strings.TrimSpace(cleaned)
	return stripTracking(cleaned)
}

// stripTracking drops utm_* and known share parameters. URLs that do not
// parse, or carry no query, are returned unchanged.
func stripTracking(cleaned string) string {
	if !strings.Contains(cleaned, "?") {
		return cleaned
	}
	u, err := url.Parse(cleaned)
	if err != nil || u.RawQuery == "" {
		return cleaned
	}
	params := u.Query()
	changed := false
	for key := range params {
		lower := strings.ToLower(key)
		if trackingParams[lower] || strings.HasPrefix(lower, "utm_") {
			params.Del(key)
			changed = true
		}
	}
	if !changed {
		return cleaned
	}
	u.RawQuery = params.Encode()
	return u.String()
}

var urlPattern = regexp.MustCompile(`^https?://[a-zA-Z0-9][-a-zA-Z0-9.]*[a-zA-Z0-9](:[0-9]+)?(/[^\s]*)?$`)

// SanitizeAndValidateURLs cleans every URL and reports the ones that are
// still malformed afterwards. sanitized has one entry per input, in order.
func SanitizeAndValidateURLs(urls []string) (sanitized []string, invalid []string) {
	sanitized = make([]string, 0, len(urls))
	for _, rawURL := range urls {
		cleaned := SanitizeURL(rawURL)
		sanitized = append(sanitized, cleaned)
		if !ValidURL(cleaned) {
			invalid = append(invalid, rawURL)
		}
	}
	return sanitized, invalid
}

// ValidURL reports whether a cleaned URL is an absolute http(s) URL with a
// plausible host.
func ValidURL(cleaned string) bool {
	// Spaces must be pre-encoded as %20
	if cleaned == "" || strings.Contains(cleaned, " ") {
		return false
	}
	if !urlPattern.MatchString(cleaned) {
		return false
	}
	parsed, err := url.Parse(cleaned)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if parsed.Host == "" {
		return false
	}
	// Example: "https://example.com{}" should fail
	return !strings.ContainsAny(parsed.Host, "{}[]<>\"'")
}
