package webcache

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	if _, ok := c.Get("https://example.com"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set("https://example.com", "hello world")
	got, ok := c.Get("https://example.com")
	if !ok || got != "hello world" {
		t.Fatalf("got %q, %v", got, ok)
	}
}

func TestStaleEntryIsAMiss(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), -time.Second)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	c.Set("https://example.com", "hello world")
	if _, ok := c.Get("https://example.com"); ok {
		t.Fatal("expected stale entry to be a miss")
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	if _, ok := c.Get("https://example.com"); ok {
		t.Fatal("expected nil cache to always miss")
	}
	c.Set("https://example.com", "ignored")
}
