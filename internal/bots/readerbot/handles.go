package readerbot

import (
	"container/list"
	"os"
	"sync"

	"github.com/dreamware/ozonedb/internal/ozerr"
)

// DefaultHandleCacheSize bounds how many open *os.File handles a
// ReaderBot keeps resident at once (§5's bounded resource use). Oldest
// handle is closed and evicted once the bound is crossed.
const DefaultHandleCacheSize = 64

type handleEntry struct {
	path string
	file *os.File
}

// handleCache is a small LRU of open read-only file handles keyed by
// path, avoiding an open/close syscall pair on every single read.
type handleCache struct {
	mu       sync.Mutex
	limit    int
	elements map[string]*list.Element
	order    *list.List
}

func newHandleCache(limit int) *handleCache {
	if limit <= 0 {
		limit = DefaultHandleCacheSize
	}
	return &handleCache{
		limit:    limit,
		elements: make(map[string]*list.Element),
		order:    list.New(),
	}
}

// open returns an open read-only handle for path, opening and caching
// one if not already resident.
func (c *handleCache) open(path string) (*os.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.elements[path]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*handleEntry).file, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, ozerr.Wrap(err, "opening data file for read", ozerr.IO)
	}
	el := c.order.PushFront(&handleEntry{path: path, file: f})
	c.elements[path] = el

	if c.order.Len() > c.limit {
		c.evictOldest()
	}
	return f, nil
}

func (c *handleCache) evictOldest() {
	back := c.order.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*handleEntry)
	entry.file.Close()
	delete(c.elements, entry.path)
	c.order.Remove(back)
}

// closeAll closes every handle currently resident, used on shutdown.
func (c *handleCache) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, el := range c.elements {
		el.Value.(*handleEntry).file.Close()
	}
	c.elements = make(map[string]*list.Element)
	c.order.Init()
}
