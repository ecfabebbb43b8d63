package browser

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/dtnitsch/post-capture/models"
	"github.com/dtnitsch/post-capture/pkg/render"
)

func TestPaddedClip(t *testing.T) {
	tests := []struct {
		name    string
		in      Rect
		padding int
		want    Rect
	}{
		{"interior", Rect{X: 50, Y: 60, Width: 100, Height: 40}, 20, Rect{X: 30, Y: 40, Width: 140, Height: 80}},
		{"clamped at origin", Rect{X: 5, Y: 10, Width: 100, Height: 40}, 20, Rect{X: 0, Y: 0, Width: 125, Height: 70}},
		{"zero padding", Rect{X: 5, Y: 5, Width: 10, Height: 10}, 0, Rect{X: 5, Y: 5, Width: 10, Height: 10}},
		{"negative padding", Rect{X: 5, Y: 5, Width: 10, Height: 10}, -3, Rect{X: 5, Y: 5, Width: 10, Height: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PaddedClip(tt.in, tt.padding); got != tt.want {
				t.Errorf("PaddedClip() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEngine_CloseIsIdempotent(t *testing.T) {
	e := NewEngine(Options{Headless: true})
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := e.Acquire(context.Background()); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Acquire() after Close error = %v, want ErrEngineClosed", err)
	}
}

func TestEngine_StartFailureIsSticky(t *testing.T) {
	e := NewEngine(Options{Headless: true, ExecPath: "/nonexistent/chrome-binary"})
	defer e.Close()

	err := e.Acquire(context.Background())
	if !errors.Is(err, ErrEngineStart) {
		t.Fatalf("Acquire() error = %v, want ErrEngineStart", err)
	}
	if _, _, err := e.NewTab(context.Background()); !errors.Is(err, ErrEngineStart) {
		t.Errorf("NewTab() error = %v, want ErrEngineStart", err)
	}
}

func findChrome(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome or Chromium binary available")
	return ""
}

func TestEngine_Capture(t *testing.T) {
	chrome := findChrome(t)
	e := NewEngine(Options{Headless: true, ExecPath: chrome, DeviceScale: 1, Padding: 20})
	defer e.Close()

	doc, err := render.Render(&models.Post{
		Platform: models.PlatformBluesky,
		Author:   models.Author{Name: "Jane", Handle: "jane.bsky.social"},
		Content:  "hello from the test suite",
	}, models.VariantStandard)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	data, err := e.Capture(ctx, doc)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() < 600 || b.Dy() < 50 {
		t.Errorf("image is %dx%d, want at least card width", b.Dx(), b.Dy())
	}
	// The corner lies in the padding outside the rounded card, so it stays transparent.
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Errorf("corner alpha = %d, want transparent background", a)
	}
}

func TestEngine_LoadAndEvaluate(t *testing.T) {
	chrome := findChrome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><article><p id="t">rendered</p></article></body></html>`))
	}))
	defer srv.Close()

	e := NewEngine(Options{Headless: true, ExecPath: chrome})
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var out struct {
		Text string `json:"text"`
	}
	err := e.LoadAndEvaluate(ctx, srv.URL, "article", 5*time.Second, 0, `({text: document.getElementById('t').innerText})`, &out)
	if err != nil {
		t.Fatalf("LoadAndEvaluate() error = %v", err)
	}
	if out.Text != "rendered" {
		t.Errorf("text = %q, want rendered", out.Text)
	}

	// A selector that never shows up is tolerated.
	err = e.LoadAndEvaluate(ctx, srv.URL, "#missing", 200*time.Millisecond, 0, `({text: 'still ran'})`, &out)
	if err != nil || out.Text != "still ran" {
		t.Errorf("LoadAndEvaluate() with missing selector = %q, %v", out.Text, err)
	}
}
