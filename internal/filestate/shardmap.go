package filestate

import (
	"sync"

	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/ozerr"
)

// Entry pairs one file's FileState with its own lock, so concurrent
// readers/writers touching different files in the same shard never
// contend (§5: "lock scope is a single file-state entry").
type Entry struct {
	mu    sync.RWMutex
	State *FileState
}

// RLock/RUnlock/Lock/Unlock expose the entry's lock directly so callers
// can hold it across a short sequence of FileState reads or mutations
// without re-acquiring per call.
func (e *Entry) RLock()   { e.mu.RLock() }
func (e *Entry) RUnlock() { e.mu.RUnlock() }
func (e *Entry) Lock()    { e.mu.Lock() }
func (e *Entry) Unlock()  { e.mu.Unlock() }

// ShardMap is the set of file states of one zone: every data file the
// zone has created or inherited at startup, keyed by file number. The
// Supervisor builds one per zone and shares it between that zone's
// bots rather than giving each FileBot its own. A coarser mutex guards the map's own structure (adding or
// removing whole entries); per-entry locks guard each FileState's
// fields so two goroutines operating on different files don't block
// each other.
type ShardMap struct {
	mu      sync.RWMutex
	entries map[id.FileNum]*Entry
	size    uint64 // running total of live bytes across all files in the shard
}

// NewShardMap returns an empty ShardMap.
func NewShardMap() *ShardMap {
	return &ShardMap{entries: make(map[id.FileNum]*Entry)}
}

// InsertNew registers a brand-new file number with a freshly initialised
// FileState, marked live (the zone's current append target).
func (m *ShardMap) InsertNew(f id.FileNum) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	fs := New()
	fs.SetLive(true)
	e := &Entry{State: fs}
	m.entries[f] = e
	return e
}

// Adopt registers a file number with an already-constructed FileState,
// used when InitGcBot rebuilds state by scanning files at startup.
func (m *ShardMap) Adopt(f id.FileNum, fs *FileState) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &Entry{State: fs}
	m.entries[f] = e
	return e
}

// Get returns the Entry for f, or (nil, false) if the shard has never
// seen that file number.
func (m *ShardMap) Get(f id.FileNum) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[f]
	return e, ok
}

// MustGet is Get but returns a Missing-kinded error instead of a bool,
// for call sites where the file number is expected to already exist.
func (m *ShardMap) MustGet(f id.FileNum) (*Entry, error) {
	e, ok := m.Get(f)
	if !ok {
		return nil, ozerr.Newf([]ozerr.Kind{ozerr.Missing}, "no file-state entry for file %s", f)
	}
	return e, nil
}

// Remove drops a file number entirely, used once GC has fully retired a
// file and deleted it from disk.
func (m *ShardMap) Remove(f id.FileNum) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, f)
}

// FileNums returns every file number currently tracked, in no
// particular order.
func (m *ShardMap) FileNums() []id.FileNum {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]id.FileNum, 0, len(m.entries))
	for f := range m.entries {
		out = append(out, f)
	}
	return out
}

// Len returns the number of files tracked in this shard.
func (m *ShardMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// LiveFile returns the entry currently marked as the append target, and
// its file number. At most one file in a shard is ever live (§3).
func (m *ShardMap) LiveFile() (id.FileNum, *Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for f, e := range m.entries {
		e.RLock()
		live := e.State.IsLive()
		e.RUnlock()
		if live {
			return f, e, true
		}
	}
	return 0, nil, false
}

// GrowSize adds delta to the shard's running live-byte total, used
// alongside FileState.InsertNew to keep a cheap shard-wide size figure
// without summing every file on each query.
func (m *ShardMap) GrowSize(delta uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.size += delta
}

// ShrinkSize subtracts delta from the shard's running size, used when
// GC retires bytes. Clamps at zero rather than underflowing, since the
// exact accounting is advisory (used for MaxSize comparisons, not
// correctness).
func (m *ShardMap) ShrinkSize(delta uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if delta > m.size {
		m.size = 0
		return
	}
	m.size -= delta
}

// Size returns the shard's current running live-byte total.
func (m *ShardMap) Size() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// NextFileNum returns one past the highest file number currently
// tracked — the number a GC rewrite uses for its output file, so it
// never collides with a file this map already knows about. WriterBot's
// seal does not use it: it opens the live file's number plus one.
func (m *ShardMap) NextFileNum() id.FileNum {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var max id.FileNum
	for f := range m.entries {
		if f > max {
			max = f
		}
	}
	return max + 1
}
