// Package caching keeps downloaded response bodies on disk so a URL fetched
// for one purpose is not fetched again for another within the same run.
package caching

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dtnitsch/post-capture/internal/common"
)

// Entry is a cached body and the content type it was served with.
type Entry struct {
	ContentType string
	Data        []byte
}

// Cache is a file-based cache with a TTL. A zero TTL never expires.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewCache creates the cache directory if it doesn't exist.
func NewCache(dir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{dir: dir, ttl: ttl, now: time.Now}, nil
}

// NewTempCache creates a cache in a fresh temporary directory. Call Purge
// when done with it.
func NewTempCache(ttl time.Duration) (*Cache, error) {
	dir, err := os.MkdirTemp("", "post-capture-cache-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{dir: dir, ttl: ttl, now: time.Now}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) path(url string) string {
	return filepath.Join(c.dir, common.ContentHash([]byte(url)))
}

// Get returns the entry for url if present and not expired.
func (c *Cache) Get(url string) (Entry, bool) {
	filePath := c.path(url)
	info, err := os.Stat(filePath)
	if err != nil {
		return Entry{}, false
	}
	if c.ttl > 0 && c.now().Sub(info.ModTime()) > c.ttl {
		return Entry{}, false
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		return Entry{}, false
	}
	header, data, ok := bytes.Cut(raw, []byte("\n"))
	if !ok {
		return Entry{}, false
	}
	return Entry{ContentType: string(header), Data: data}, true
}

// Set stores the entry for url. Concurrent writers of the same URL are safe:
// the file is written aside and renamed into place.
func (c *Cache) Set(url string, e Entry) error {
	if strings.ContainsAny(e.ContentType, "\r\n") {
		return fmt.Errorf("invalid content type %q", e.ContentType)
	}
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	w := bufio.NewWriter(tmp)
	_, _ = w.WriteString(e.ContentType + "\n")
	_, _ = w.Write(e.Data)
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(url)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	return nil
}

// Purge removes the cache directory and everything in it.
func (c *Cache) Purge() error {
	return os.RemoveAll(c.dir)
}
