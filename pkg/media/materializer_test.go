package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dtnitsch/post-capture/pkg/caching"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	data := pngBytes(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/no-type", func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/octet", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "binary/octet-stream")
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/app-octet", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok.png", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/missing.png", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/garbage.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("definitely not a png"))
	})
	return httptest.NewServer(mux)
}

func TestToInline(t *testing.T) {
	srv := newImageServer(t)
	defer srv.Close()
	m := NewHTTPMaterializer(Options{})
	ctx := context.Background()

	tests := []struct {
		name       string
		path       string
		wantOK     bool
		wantPrefix string
	}{
		{"png", "/ok.png", true, "data:image/png;base64,"},
		{"missing content type is sniffed", "/no-type", true, "data:image/png;base64,"},
		{"s3 default content type", "/octet", true, "data:image/png;base64,"},
		{"generic binary content type", "/app-octet", true, "data:image/png;base64,"},
		{"follows redirect", "/redirect", true, "data:image/png;base64,"},
		{"redirect loop", "/loop", false, ""},
		{"not found", "/missing.png", false, ""},
		{"undecodable", "/garbage.png", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.ToInline(ctx, srv.URL+tt.path)
			if ok != tt.wantOK {
				t.Fatalf("ToInline() ok = %v, want %v", ok, tt.wantOK)
			}
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("ToInline() = %.40q, want prefix %q", got, tt.wantPrefix)
			}
		})
	}
}

func TestSniffContentType(t *testing.T) {
	if got := sniffContentType(pngBytes(t)); got != "image/png" {
		t.Errorf("sniffContentType(png) = %q, want image/png", got)
	}
	if got := sniffContentType([]byte("plain text")); got != DefaultContentType {
		t.Errorf("sniffContentType(text) = %q, want %q", got, DefaultContentType)
	}
}

func TestToInline_UnreachableHost(t *testing.T) {
	m := NewHTTPMaterializer(Options{})
	if _, ok := m.ToInline(context.Background(), "http://127.0.0.1:1/x.png"); ok {
		t.Error("ToInline() ok = true for unreachable host")
	}
	if _, ok := m.ToInline(context.Background(), ""); ok {
		t.Error("ToInline() ok = true for empty URL")
	}
	if _, ok := m.ToInline(context.Background(), "::not a url"); ok {
		t.Error("ToInline() ok = true for malformed URL")
	}
}

func TestPersistOriginal(t *testing.T) {
	srv := newImageServer(t)
	defer srv.Close()
	m := NewHTTPMaterializer(Options{})
	dir := t.TempDir()

	dest := filepath.Join(dir, "a.png")
	got, ok := m.PersistOriginal(context.Background(), srv.URL+"/ok.png", dest)
	if !ok || got != dest {
		t.Fatalf("PersistOriginal() = %q, %v", got, ok)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, pngBytes(t)) {
		t.Error("persisted bytes differ from source")
	}

	missing := filepath.Join(dir, "b.png")
	if _, ok := m.PersistOriginal(context.Background(), srv.URL+"/missing.png", missing); ok {
		t.Error("PersistOriginal() ok = true for 404")
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Error("PersistOriginal() wrote a file for a failed download")
	}

	badDir := filepath.Join(dir, "no", "such", "dir", "c.png")
	if _, ok := m.PersistOriginal(context.Background(), srv.URL+"/ok.png", badDir); ok {
		t.Error("PersistOriginal() ok = true for unwritable destination")
	}
}

type stubMaterializer struct{}

func (stubMaterializer) ToInline(_ context.Context, u string) (string, bool) {
	if strings.Contains(u, "bad") {
		return "", false
	}
	return "data:image/png;base64," + u, true
}

func (stubMaterializer) PersistOriginal(_ context.Context, _, dest string) (string, bool) {
	return dest, true
}

func TestMaterializer_CacheAvoidsSecondDownload(t *testing.T) {
	data := pngBytes(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	cache, err := caching.NewCache(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	m := NewHTTPMaterializer(Options{Cache: cache})
	ctx := context.Background()

	if _, ok := m.ToInline(ctx, srv.URL+"/a.png"); !ok {
		t.Fatal("ToInline failed")
	}
	dest := filepath.Join(t.TempDir(), "a.png")
	if _, ok := m.PersistOriginal(ctx, srv.URL+"/a.png", dest); !ok {
		t.Fatal("PersistOriginal failed")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1", got)
	}
	saved, err := os.ReadFile(dest)
	if err != nil || !bytes.Equal(saved, data) {
		t.Errorf("persisted bytes differ from the original (err=%v)", err)
	}
}

func TestInlineAll_PreservesOrderAndCaps(t *testing.T) {
	urls := []string{"a", "bad", "c", "d", "e", "f"}
	got := InlineAll(context.Background(), stubMaterializer{}, urls, 4)
	want := []string{"data:image/png;base64,a", "data:image/png;base64,c", "data:image/png;base64,d"}
	if len(got) != len(want) {
		t.Fatalf("InlineAll() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("InlineAll()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if InlineAll(context.Background(), stubMaterializer{}, nil, 4) != nil {
		t.Error("InlineAll(nil) should be nil")
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://cdn.example.com/a/b.PNG", ".png"},
		{"https://cdn.example.com/a/b.jpeg?x=1", ".jpg"},
		{"https://pbs.twimg.com/media/abc?format=webp&name=orig", ".webp"},
		{"https://cdn.bsky.app/img/feed_fullsize/plain/did/cid@jpeg", ".jpg"},
		{"https://example.com/noext", ".jpg"},
	}
	for _, tt := range tests {
		if got := ExtensionFor(tt.url); got != tt.want {
			t.Errorf("ExtensionFor(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
