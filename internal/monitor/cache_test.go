package monitor

import (
	"testing"
	"time"
)

func TestTailCacheValidatesModTimeAndSize(t *testing.T) {
	c := newTailCache(4)
	mtime := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	tail := Tail{Records: []Record{{Kind: KindUser}}}

	c.put("/p/a.jsonl", mtime, 100, tail)

	if got, ok := c.get("/p/a.jsonl", mtime, 100); !ok || len(got.Records) != 1 {
		t.Errorf("get = %+v, %v, want hit", got, ok)
	}
	if _, ok := c.get("/p/a.jsonl", mtime.Add(time.Second), 100); ok {
		t.Error("changed mtime should miss")
	}
	if _, ok := c.get("/p/a.jsonl", mtime, 100); ok {
		t.Error("stale entry should have been evicted")
	}

	c.put("/p/a.jsonl", mtime, 100, tail)
	if _, ok := c.get("/p/a.jsonl", mtime, 120); ok {
		t.Error("changed size should miss")
	}
}

func TestTailCacheBounded(t *testing.T) {
	c := newTailCache(2)
	mtime := time.Now()
	for _, p := range []string{"a", "b", "c"} {
		c.put(p, mtime, 1, Tail{})
	}
	if c.len() != 2 {
		t.Errorf("len = %d, want 2", c.len())
	}
	if _, ok := c.get("a", mtime, 1); ok {
		t.Error("oldest entry should have been evicted")
	}
}

func TestTailCacheDisabled(t *testing.T) {
	c := newTailCache(0)
	c.put("a", time.Now(), 1, Tail{})
	if _, ok := c.get("a", time.Now(), 1); ok {
		t.Error("disabled cache should never hit")
	}
	if c.len() != 0 {
		t.Errorf("len = %d, want 0", c.len())
	}
}
