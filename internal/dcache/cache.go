package dcache

import (
	"container/list"
	"sync"

	"github.com/dreamware/ozonedb/internal/record"
)

// EntryKind distinguishes the three cache-entry shapes of §3.
type EntryKind int

const (
	KindValue EntryKind = iota
	KindLocation
	KindTombstone
)

func (k EntryKind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindLocation:
		return "location"
	case KindTombstone:
		return "tombstone"
	default:
		return "unknown"
	}
}

// entryOverhead is the fixed per-entry bookkeeping cost charged against
// the size limit regardless of payload, so an all-tiny-keys workload
// cannot evade accounting entirely.
const entryOverhead = 64

// Entry is one cached ozone-key's state: a live value, a bare
// file-location, or a tombstone recording that the key was deleted.
type Entry struct {
	Kind  EntryKind
	Value []byte
	Loc   record.FileLocation
	Meta  record.Meta
}

// size returns the byte cost charged against the cache's size limit.
func (e Entry) size() uint64 {
	switch e.Kind {
	case KindValue:
		return uint64(len(e.Value)) + entryOverhead
	default:
		return entryOverhead
	}
}

type node struct {
	key   string
	entry Entry
}

// Cache is one CacheBot's shard: an LRU-ordered map from ozone-key to
// Entry, bounded by a configured byte limit (§4.3). Every exported
// method is safe for concurrent use; the Cache carries its own lock
// since a single CacheBot goroutine still fields concurrent GC update
// batches alongside ordinary reads/writes in the current design.
type Cache struct {
	mu       sync.Mutex
	limit    uint64
	size     uint64
	elements map[string]*list.Element // -> *node
	order    *list.List               // front = most recently used
}

// New returns an empty Cache bounded at limit bytes.
func New(limit uint64) *Cache {
	return &Cache{
		limit:    limit,
		elements: make(map[string]*list.Element),
		order:    list.New(),
	}
}

// SetLimit changes the size bound, evicting immediately if the cache is
// now over the new limit (the admin SetCacheSizeLimit operation of
// §4.3).
func (c *Cache) SetLimit(limit uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = limit
	c.evictLocked()
}

// Size returns the current accounted byte size.
func (c *Cache) Size() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of entries currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Get returns the entry for key and touches its recency, or
// (Entry{}, false) on a miss.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.elements[key]
	if !ok {
		return Entry{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*node).entry, true
}

// PutValue inserts or replaces key with a cache-resident value backed by
// loc, evicting as needed to stay within the size limit. Returns the
// entry it replaced, if any — the CacheBot uses this to learn the prior
// on-disk location so it can tell the FileBot which entry just became
// Old.
func (c *Cache) PutValue(key string, value []byte, loc record.FileLocation, meta record.Meta) (Entry, bool) {
	return c.put(key, Entry{Kind: KindValue, Value: value, Loc: loc, Meta: meta})
}

// PutLocation inserts or replaces key with a location-only entry.
func (c *Cache) PutLocation(key string, loc record.FileLocation, meta record.Meta) (Entry, bool) {
	return c.put(key, Entry{Kind: KindLocation, Loc: loc, Meta: meta})
}

// PutTombstone marks key as deleted, still recording the tombstone
// write's own location so it too can be superseded later.
func (c *Cache) PutTombstone(key string, loc record.FileLocation, meta record.Meta) (Entry, bool) {
	meta.Tombstone = true
	return c.put(key, Entry{Kind: KindTombstone, Loc: loc, Meta: meta})
}

func (c *Cache) put(key string, e Entry) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.elements[key]; ok {
		old := el.Value.(*node).entry
		c.size -= old.size()
		el.Value.(*node).entry = e
		c.order.MoveToFront(el)
		c.size += e.size()
		c.evictLocked()
		return old, true
	}

	el := c.order.PushFront(&node{key: key, entry: e})
	c.elements[key] = el
	c.size += e.size()
	c.evictLocked()
	return Entry{}, false
}

// Demote downgrades a cache-resident value to a location-only entry
// without changing its recency, used when eviction needs to shed bytes
// but the file-location is still worth retaining.
func (c *Cache) Demote(key string, loc record.FileLocation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.elements[key]
	if !ok {
		return false
	}
	n := el.Value.(*node)
	if n.entry.Kind != KindValue {
		return false
	}
	old := n.entry
	c.size -= old.size()
	n.entry = Entry{Kind: KindLocation, Loc: loc, Meta: old.Meta}
	c.size += n.entry.size()
	return true
}

// Remove deletes key entirely.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeElementLocked(key)
}

// Clear empties the cache (the admin ClearCache operation).
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elements = make(map[string]*list.Element)
	c.order.Init()
	c.size = 0
}

// Dump returns a snapshot of every key currently cached, for the admin
// DumpCacheRequest operation. The returned map is a copy; mutating it
// does not affect the cache.
func (c *Cache) Dump() map[string]Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Entry, len(c.elements))
	for k, el := range c.elements {
		out[k] = el.Value.(*node).entry
	}
	return out
}

// ApplyGCUpdate rewrites the backing location of every cached entry
// named in updates to its post-GC location. Returns the prior
// FileLocation for each entry it actually updated, so the caller
// (FileBot, via its CacheBot) can finalise old-state retirement (§4.4.1
// steps 4-5). Tombstones are relocated the same as any other entry —
// they too occupy a file position that GC may have rewritten. Keys not
// present in this shard are skipped.
func (c *Cache) ApplyGCUpdate(updates map[string]record.FileLocation) map[string]record.FileLocation {
	c.mu.Lock()
	defer c.mu.Unlock()

	replaced := make(map[string]record.FileLocation, len(updates))
	for key, newLoc := range updates {
		el, ok := c.elements[key]
		if !ok {
			continue
		}
		n := el.Value.(*node)
		replaced[key] = n.entry.Loc
		n.entry.Loc = newLoc
	}
	return replaced
}

func (c *Cache) removeElementLocked(key string) {
	el, ok := c.elements[key]
	if !ok {
		return
	}
	c.size -= el.Value.(*node).entry.size()
	c.order.Remove(el)
	delete(c.elements, key)
}

// evictLocked frees bytes until the cache is within its size limit.
// Per §4.3, values are evicted (demoted to location-only) before
// location-only entries are discarded outright: a first pass walks the
// LRU order from the back demoting Value entries, a second pass removes
// whatever remains (locations, tombstones, and any values with no
// location to fall back to).
func (c *Cache) evictLocked() {
	if c.limit == 0 {
		return
	}

	for c.size > c.limit {
		el := c.findOldestOfKindLocked(KindValue)
		if el == nil {
			break
		}
		n := el.Value.(*node)
		old := n.entry
		c.size -= old.size()
		n.entry = Entry{Kind: KindLocation, Loc: old.Loc, Meta: old.Meta}
		c.size += n.entry.size()
		if old.Loc == (record.FileLocation{}) {
			// no location known: nothing left worth keeping
			c.removeElementLocked(n.key)
		}
	}

	for c.size > c.limit {
		el := c.order.Back()
		if el == nil {
			return
		}
		c.removeElementLocked(el.Value.(*node).key)
	}
}

// findOldestOfKindLocked returns the least-recently-used element whose
// entry matches kind, scanning from the back of the LRU order.
func (c *Cache) findOldestOfKindLocked(kind EntryKind) *list.Element {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		if el.Value.(*node).entry.Kind == kind {
			return el
		}
	}
	return nil
}
