// Package media downloads remote images for cards and for persistence.
// Every operation degrades to "absent" instead of returning an error, so a
// broken image never fails an extraction or a capture.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/dtnitsch/post-capture/pkg/caching"
	"github.com/dtnitsch/post-capture/pkg/fetcher"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultContentType = "image/jpeg"
	defaultMaxBytes    = 20 << 20
)

// Materializer turns image URLs into inline data URIs or files on disk.
type Materializer interface {
	ToInline(ctx context.Context, rawURL string) (string, bool)
	PersistOriginal(ctx context.Context, rawURL, destination string) (string, bool)
}

// Options configures an HTTPMaterializer.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int64
	Logger    *slog.Logger
	// Cache, when set, holds validated downloads by URL. Optional.
	Cache *caching.Cache
}

// HTTPMaterializer fetches images over HTTP with bounded redirects and timeout.
type HTTPMaterializer struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	logger    *slog.Logger
	cache     *caching.Cache
}

var _ Materializer = (*HTTPMaterializer)(nil)

// NewHTTPMaterializer builds a materializer with defaults for unset options.
func NewHTTPMaterializer(opts Options) *HTTPMaterializer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = fetcher.DefaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPMaterializer{
		client: &http.Client{
			Timeout:       opts.Timeout,
			CheckRedirect: fetcher.LimitRedirects,
		},
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		logger:    opts.Logger,
		cache:     opts.Cache,
	}
}

// ToInline returns a base64 data URI for the image, or false when the image
// cannot be fetched or decoded.
func (m *HTTPMaterializer) ToInline(ctx context.Context, rawURL string) (string, bool) {
	data, contentType, err := m.download(ctx, rawURL)
	if err != nil {
		m.logger.Debug("inline image unavailable", "url", rawURL, "error", err)
		return "", false
	}
	return EncodeDataURI(contentType, data), true
}

// PersistOriginal writes the original bytes to destination and returns it,
// or false when the image cannot be fetched, decoded or written.
func (m *HTTPMaterializer) PersistOriginal(ctx context.Context, rawURL, destination string) (string, bool) {
	data, _, err := m.download(ctx, rawURL)
	if err != nil {
		m.logger.Debug("original image unavailable", "url", rawURL, "error", err)
		return "", false
	}
	if err := os.WriteFile(destination, data, 0644); err != nil {
		m.logger.Warn("failed to write original image", "url", rawURL, "path", destination, "error", err)
		return "", false
	}
	return destination, true
}

func (m *HTTPMaterializer) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	if rawURL == "" {
		return nil, "", fmt.Errorf("empty image URL")
	}
	if strings.HasPrefix(rawURL, "data:") {
		return nil, "", fmt.Errorf("refusing to download a data URI")
	}
	if m.cache != nil {
		if e, ok := m.cache.Get(rawURL); ok {
			return e.Data, e.ContentType, nil
		}
	}

	data, contentType, err := m.fetch(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	if m.cache != nil {
		if err := m.cache.Set(rawURL, caching.Entry{ContentType: contentType, Data: data}); err != nil {
			m.logger.Debug("failed to cache image", "url", rawURL, "error", err)
		}
	}
	return data, contentType, nil
}

func (m *HTTPMaterializer) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("User-Agent", m.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("image status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > m.maxBytes {
		return nil, "", fmt.Errorf("image exceeds max size (%d bytes)", m.maxBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image body")
	}

	contentType := normaliseContentType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		contentType = sniffContentType(data)
	}
	if err := validate(contentType, data); err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// sniffContentType picks an image type from the bytes for servers that send
// a generic or missing Content-Type.
func sniffContentType(data []byte) string {
	if ct := normaliseContentType(http.DetectContentType(data)); strings.HasPrefix(ct, "image/") {
		return ct
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return "image/" + format
	}
	return DefaultContentType
}

// validate rejects bodies that do not decode as an image. SVG and AVIF are
// passed through since the standard decoders cannot read them.
func validate(contentType string, data []byte) error {
	switch contentType {
	case "image/svg+xml", "image/avif", "image/heic":
		return nil
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	return nil
}

// EncodeDataURI builds a data URI from a content type and raw bytes.
func EncodeDataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// InlineAll materializes up to limit URLs concurrently, preserving input order
// and dropping images that could not be inlined.
func InlineAll(ctx context.Context, m Materializer, urls []string, limit int) []string {
	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	if len(urls) == 0 {
		return nil
	}

	slots := make([]string, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			if inline, ok := m.ToInline(ctx, u); ok {
				slots[i] = inline
			}
		}(i, u)
	}
	wg.Wait()

	out := make([]string, 0, len(slots))
	for _, s := range slots {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// InlineOne materializes a single optional URL; empty input yields "".
func InlineOne(ctx context.Context, m Materializer, rawURL string) string {
	if rawURL == "" {
		return ""
	}
	inline, ok := m.ToInline(ctx, rawURL)
	if !ok {
		return ""
	}
	return inline
}

// ExtensionFor derives a file extension from the URL path, then the format
// query parameter, then falls back to ".jpg".
func ExtensionFor(rawURL string) string {
	clean := rawURL
	query := ""
	if idx := strings.IndexAny(clean, "?#"); idx >= 0 {
		query = clean[idx+1:]
		clean = clean[:idx]
	}
	switch ext := strings.ToLower(path.Ext(clean)); ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif", ".svg", ".heic":
		if ext == ".jpeg" {
			return ".jpg"
		}
		return ext
	}
	for _, kv := range strings.Split(query, "&") {
		if format, ok := strings.CutPrefix(kv, "format="); ok {
			switch format = strings.ToLower(format); format {
			case "jpg", "jpeg":
				return ".jpg"
			case "png", "gif", "webp":
				return "." + format
			}
		}
	}
	return ".jpg"
}

func normaliseContentType(ct string) string {
	if ct == "" {
		return ""
	}
	main, _, _ := strings.Cut(ct, ";")
	return strings.TrimSpace(strings.ToLower(main))
}
