package artifact_manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dtnitsch/post-capture/internal/common"
	"github.com/dtnitsch/post-capture/models"
	"github.com/dtnitsch/post-capture/pkg/detector"
	"github.com/dtnitsch/post-capture/pkg/media"
)

const (
	DefaultBaseDir = "captures"

	timestampLayout = "20060102T150405.000Z"
	maxSlugLength   = 60
)

// ErrIO marks failures writing the card or metadata.
var ErrIO = errors.New("artifact write failed")

// Extras is per-capture context recorded next to the post.
type Extras struct {
	RunID    string
	Variant  models.Variant
	Language *detector.LanguageResult
}

// Artifacts lists what Write produced. File names are relative to Dir.
type Artifacts struct {
	Dir          string
	BaseName     string
	CardFile     string
	MediaFiles   []string
	Media        []SavedMedia
	MetadataFile string
}

// SavedMedia pairs a persisted file with the URL it was downloaded from.
type SavedMedia struct {
	URL  string `json:"url"`
	File string `json:"file"`
}

// Manager writes capture artifacts into one output directory.
type Manager struct {
	baseDir      string
	materializer media.Materializer
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	reserved map[string]bool
}

// NewManager creates the output directory if needed.
func NewManager(baseDir string, m media.Materializer, logger *slog.Logger) (*Manager, error) {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("%w: create output directory: %v", ErrIO, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		baseDir:      baseDir,
		materializer: m,
		logger:       logger,
		now:          time.Now,
		reserved:     make(map[string]bool),
	}, nil
}

// Dir returns the output directory.
func (m *Manager) Dir() string {
	return m.baseDir
}

// normalizeURL creates a canonical representation of a URL for consistent hashing.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	u.Host = strings.ToLower(u.Host)
	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sorted := url.Values{}
		for _, k := range keys {
			for _, v := range params[k] {
				sorted.Add(k, v)
			}
		}
		u.RawQuery = sorted.Encode()
	}
	// Thread and forum post ids can live in the fragment.
	return u.String()
}

// getShortHash generates a short, stable hash from a normalized URL.
func getShortHash(normalizedURL string) string {
	return common.ContentHash([]byte(normalizedURL))[:8]
}

var invalidFilenameChar = regexp.MustCompile(`[^a-zA-Z0-9\-_]+`)

// sanitizeSlug creates a filesystem-safe slug from a URL path.
func sanitizeSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	var slug string
	if err != nil || u.Host == "" {
		slug = invalidFilenameChar.ReplaceAllString(rawURL, "_")
	} else {
		slug = invalidFilenameChar.ReplaceAllString(strings.TrimPrefix(u.Path, "/"), "_")
		if strings.Trim(slug, "_") == "" {
			slug = strings.ReplaceAll(u.Host, ".", "_")
		}
	}
	slug = strings.Trim(slug, "_")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[len(slug)-maxSlugLength:], "_")
		slug = strings.TrimLeft(slug, "_")
	}
	if slug == "" {
		slug = "post"
	}
	return slug
}

// BaseName builds <platform>-<slug>_<hash>-<UTC timestamp with milliseconds>.
func BaseName(platform models.Platform, rawURL string, at time.Time) string {
	fragment := sanitizeSlug(rawURL) + "_" + getShortHash(normalizeURL(rawURL))
	return fmt.Sprintf("%s-%s-%s", platform, fragment, at.UTC().Format(timestampLayout))
}

// reserve picks a base name no earlier Write used and no file on disk claims.
func (m *Manager) reserve(post *models.Post) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.now()
	for {
		base := BaseName(post.Platform, post.SourceURL, at)
		if !m.reserved[base] {
			_, err := os.Stat(filepath.Join(m.baseDir, base+"-metadata.json"))
			if errors.Is(err, fs.ErrNotExist) {
				m.reserved[base] = true
				return base, nil
			}
			if err != nil {
				return "", fmt.Errorf("%w: check %s: %v", ErrIO, base, err)
			}
		}
		at = at.Add(time.Millisecond)
	}
}

// Write persists the card, the original media and the metadata document.
// Media that cannot be downloaded is skipped and left out of the metadata.
func (m *Manager) Write(ctx context.Context, post *models.Post, card []byte, extras Extras) (Artifacts, error) {
	if post == nil {
		return Artifacts{}, errors.New("nil post")
	}
	base, err := m.reserve(post)
	if err != nil {
		return Artifacts{}, err
	}
	out := Artifacts{
		Dir:          m.baseDir,
		BaseName:     base,
		CardFile:     base + "-card.png",
		MetadataFile: base + "-metadata.json",
	}

	cardPath := filepath.Join(m.baseDir, out.CardFile)
	if err := os.WriteFile(cardPath, card, 0600); err != nil {
		return Artifacts{}, fmt.Errorf("%w: write card: %v", ErrIO, err)
	}

	sources := post.AllMediaSourceURLs()
	out.Media = m.persistMedia(ctx, base, sources)
	for _, saved := range out.Media {
		out.MediaFiles = append(out.MediaFiles, saved.File)
	}

	meta := buildMetadata(post, out, sources, extras, m.now())
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		m.cleanup(out)
		return Artifacts{}, fmt.Errorf("%w: encode metadata: %v", ErrIO, err)
	}
	if err := os.WriteFile(filepath.Join(m.baseDir, out.MetadataFile), data, 0600); err != nil {
		m.cleanup(out)
		return Artifacts{}, fmt.Errorf("%w: write metadata: %v", ErrIO, err)
	}

	m.logger.Debug("artifacts written", "url", post.SourceURL, "base", base, "media", len(out.MediaFiles))
	return out, nil
}

// persistMedia downloads every source in parallel. Image n keeps its source
// index so gaps show which originals failed.
func (m *Manager) persistMedia(ctx context.Context, base string, sources []string) []SavedMedia {
	if m.materializer == nil || len(sources) == 0 {
		return nil
	}
	names := make([]string, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src string) {
			defer wg.Done()
			name := fmt.Sprintf("%s-image-%d%s", base, i+1, media.ExtensionFor(src))
			if _, ok := m.materializer.PersistOriginal(ctx, src, filepath.Join(m.baseDir, name)); ok {
				names[i] = name
			} else {
				m.logger.Warn("original media not saved", "url", src)
			}
		}(i, src)
	}
	wg.Wait()

	var saved []SavedMedia
	for i, name := range names {
		if name != "" {
			saved = append(saved, SavedMedia{URL: sources[i], File: name})
		}
	}
	return saved
}

func (m *Manager) cleanup(a Artifacts) {
	_ = os.Remove(filepath.Join(m.baseDir, a.CardFile))
	for _, name := range a.MediaFiles {
		_ = os.Remove(filepath.Join(m.baseDir, name))
	}
}
