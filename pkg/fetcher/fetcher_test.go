package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGet_SendsIdentityAndReadsBody(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f := New(Options{UserAgent: "capture-test/1.0"})
	resp, err := f.Get(context.Background(), srv.URL, "")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(resp.Body) != "hello" {
		t.Errorf("Body = %q, want hello", resp.Body)
	}
	if gotUA != "capture-test/1.0" {
		t.Errorf("User-Agent = %q, want capture-test/1.0", gotUA)
	}
	if resp.ContentType != "text/plain" {
		t.Errorf("ContentType = %q", resp.ContentType)
	}
}

func TestGet_Non2xxIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFetcher().Get(context.Background(), srv.URL, "")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Get() error = %v, want ErrUpstream", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("Get() error = %v, want StatusError 404", err)
	}
}

func TestGet_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("done"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := NewFetcher().Get(context.Background(), srv.URL+"/start", "")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.FinalURL != srv.URL+"/end" {
		t.Errorf("FinalURL = %q, want %q", resp.FinalURL, srv.URL+"/end")
	}
}

func TestGet_RedirectLoopIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	_, err := NewFetcher().Get(context.Background(), srv.URL+"/loop", "")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Get() error = %v, want ErrUpstream", err)
	}
}

func TestGet_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	f := New(Options{Timeout: 50 * time.Millisecond})
	if _, err := f.Get(context.Background(), srv.URL, ""); !errors.Is(err, ErrUpstream) {
		t.Fatalf("Get() error = %v, want ErrUpstream on timeout", err)
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		_, _ = w.Write([]byte(`{"did":"did:plc:abc"}`))
	}))
	defer srv.Close()

	var out struct {
		DID string `json:"did"`
	}
	if err := NewFetcher().GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if out.DID != "did:plc:abc" {
		t.Errorf("DID = %q", out.DID)
	}
}

func TestGetJSON_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	var out map[string]any
	if err := NewFetcher().GetJSON(context.Background(), srv.URL, &out); !errors.Is(err, ErrUpstream) {
		t.Fatalf("GetJSON() error = %v, want ErrUpstream", err)
	}
}

func TestGetHtml(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h1>Title</h1></body></html>`))
	}))
	defer srv.Close()

	doc, err := NewFetcher().GetHtml(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetHtml() error = %v", err)
	}
	if got := doc.Find("h1").Text(); got != "Title" {
		t.Errorf("h1 = %q, want Title", got)
	}
}

func TestRateLimiterPerHost(t *testing.T) {
	f := New(Options{PerSecond: 1000, Burst: 2})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := f.wait(ctx, "Example.com"); err != nil {
			t.Fatalf("wait() error = %v", err)
		}
	}
	if len(f.limiters) != 1 {
		t.Errorf("limiters = %d, want 1 (host is case-insensitive)", len(f.limiters))
	}
}
