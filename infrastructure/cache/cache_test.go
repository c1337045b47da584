package cache

import (
	"testing"
	"time"
)

func TestCacheGetSetRoundTrip(t *testing.T) {
	c := NewCache(CacheConfig{DefaultTTL: time.Minute})
	c.Set("k", "v", 0)

	v, ok := c.Get("k")
	if !ok || v != "v" {
		t.Fatalf("expected to find k=v, got %v, %v", v, ok)
	}
}

func TestCacheGetMissingKey(t *testing.T) {
	c := NewCache(DefaultConfig())
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected a miss for an unset key")
	}
}

func TestCacheEntryExpires(t *testing.T) {
	c := NewCache(CacheConfig{DefaultTTL: time.Minute})
	c.Set("k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected the entry to have expired")
	}
}

func TestCacheInvalidateRemovesEntry(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.Set("k", "v", 0)
	c.Invalidate("k")

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected the entry to be gone after Invalidate")
	}
}
