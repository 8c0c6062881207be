package monitor

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type tailEntry struct {
	modTime time.Time
	size    int64
	tail    Tail
}

// tailCache keeps parsed tails keyed by path. An entry is only returned when
// the file's modification time and size still match. A nil cache never hits.
type tailCache struct {
	entries *lru.Cache[string, tailEntry]
}

func newTailCache(size int) *tailCache {
	if size <= 0 {
		return nil
	}
	entries, err := lru.New[string, tailEntry](size)
	if err != nil {
		return nil
	}
	return &tailCache{entries: entries}
}

func (c *tailCache) get(path string, modTime time.Time, size int64) (Tail, bool) {
	if c == nil {
		return Tail{}, false
	}
	e, ok := c.entries.Get(path)
	if !ok {
		return Tail{}, false
	}
	if !e.modTime.Equal(modTime) || e.size != size {
		c.entries.Remove(path)
		return Tail{}, false
	}
	return e.tail, true
}

func (c *tailCache) put(path string, modTime time.Time, size int64, tail Tail) {
	if c == nil {
		return
	}
	c.entries.Add(path, tailEntry{modTime: modTime, size: size, tail: tail})
}

func (c *tailCache) len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
