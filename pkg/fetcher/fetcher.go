package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout      = 20 * time.Second
	DefaultUserAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	MaxRedirects        = 5
	defaultMaxBodyBytes = 25 << 20
)

// ErrUpstream marks any network, status or body failure.
var ErrUpstream = errors.New("upstream unavailable")

// ErrTooManyRedirects is returned when a redirect chain exceeds MaxRedirects.
var ErrTooManyRedirects = errors.New("too many redirects")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to fetch %s, status code: %d", e.URL, e.StatusCode)
}

// Response is a fully read HTTP response.
type Response struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Options configures a Fetcher.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	PerSecond    float64 // per-host request rate; 0 disables limiting
	Burst        int
}

// Fetcher performs GET requests with a fixed identity, bounded redirects,
// a timeout and an optional per-host rate limit. It never caches or retries.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	perSecond float64
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewFetcher() *Fetcher {
	return New(Options{})
}

// New builds a Fetcher from options, filling defaults.
func New(opts Options) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:       opts.Timeout,
			CheckRedirect: LimitRedirects,
		},
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
		perSecond: opts.PerSecond,
		burst:     opts.Burst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// LimitRedirects is an http.Client CheckRedirect hook bounding hop count.
func LimitRedirects(_ *http.Request, via []*http.Request) error {
	if len(via) >= MaxRedirects {
		return ErrTooManyRedirects
	}
	return nil
}

// Client exposes the underlying client so other components share its settings.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// UserAgent returns the identity header sent with every request.
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// Get fetches rawURL and reads the whole body. Non-2xx responses are errors.
func (f *Fetcher) Get(ctx context.Context, rawURL string, accept string) (*Response, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL %q: %v", ErrUpstream, rawURL, err)
	}
	if err := f.wait(ctx, parsed.Hostname()); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrUpstream, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to make HTTP request: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, &StatusError{URL: rawURL, StatusCode: resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrUpstream, err)
	}

	return &Response{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (f *Fetcher) GetHtmlBytes(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := f.Get(ctx, rawURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (f *Fetcher) GetHtml(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, err := f.GetHtmlBytes(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// GetJSON fetches rawURL and decodes the body into v.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := f.Get(ctx, rawURL, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("%w: decoding JSON from %s: %v", ErrUpstream, rawURL, err)
	}
	return nil
}

func (f *Fetcher) wait(ctx context.Context, host string) error {
	if f.perSecond <= 0 || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	f.mu.Lock()
	limiter, ok := f.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(f.perSecond), f.burst)
		f.limiters[host] = limiter
	}
	f.mu.Unlock()

	return limiter.Wait(ctx)
}
