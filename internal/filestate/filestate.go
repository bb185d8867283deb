package filestate

import (
	"math"

	"github.com/dreamware/ozonedb/internal/ozerr"
	"github.com/dreamware/ozonedb/internal/record"
)

// DataState classifies a stored entry: Cur is the current version of a
// key's value; Old is a superseded version eligible for garbage
// collection. Once an entry becomes Old it never returns to Cur (§3).
type DataState int

const (
	Cur DataState = iota
	Old
)

func (d DataState) String() string {
	if d == Old {
		return "old"
	}
	return "cur"
}

// Present records whether both the data and index files exist for a
// file number, or only one of them (e.g. the index was deleted and must
// be rebuilt from the data file).
type Present int

const (
	PresentPair Present = iota // both .dat and .ind exist
	PresentDataOnly
	PresentIndexOnly
)

// FileState is the in-memory map tracking one data file's liveness,
// entry positions, and GC coordination state (§3).
type FileState struct {
	present    Present
	datSize    uint64 // data file size in bytes
	indSize    uint64 // index file size in bytes
	live       bool   // is this the zone's current append target?
	oldSum     uint64 // sum of lengths (key+value) of Old entries
	oldCnt     uint64 // count of Old entries
	dmap       map[uint64]DataState // offset -> state
	mmap       map[uint64]uint64    // old offset -> new offset, populated during GC
	gcActive   bool
	readers    uint64
}

// New returns a freshly initialised FileState for a newly created file.
func New() *FileState {
	return &FileState{
		present: PresentPair,
		dmap:    make(map[uint64]DataState),
		mmap:    make(map[uint64]uint64),
	}
}

// --- getters ---------------------------------------------------------------

func (f *FileState) Present() Present          { return f.present }
func (f *FileState) DataFileSize() uint64      { return f.datSize }
func (f *FileState) IndexFileSize() uint64     { return f.indSize }
func (f *FileState) IsLive() bool              { return f.live }
func (f *FileState) OldSum() uint64            { return f.oldSum }
func (f *FileState) OldCount() uint64          { return f.oldCnt }
func (f *FileState) GCActive() bool            { return f.gcActive }
func (f *FileState) Readers() uint64           { return f.readers }
func (f *FileState) NoReaders() bool           { return f.readers == 0 }
func (f *FileState) DataMapLen() int           { return len(f.dmap) }
func (f *FileState) MoveMapLen() int           { return len(f.mmap) }
func (f *FileState) DataMapEmpty() bool        { return len(f.dmap) == 0 }
func (f *FileState) NoPendingMoves() bool      { return len(f.mmap) == 0 }

// DataStateAt returns the state of the entry starting at the given
// offset, and whether it exists.
func (f *FileState) DataStateAt(start uint64) (DataState, bool) {
	s, ok := f.dmap[start]
	return s, ok
}

// IsAllOld reports whether every entry currently tracked is Old — the
// "all-old" GC trigger of §4.4.1.
func (f *FileState) IsAllOld() bool {
	for _, s := range f.dmap {
		if s == Cur {
			return false
		}
	}
	return true
}

// GCRatio returns oldSum / datSize, the quantity compared against the
// configured GC threshold ratio. A file with zero size never triggers.
func (f *FileState) GCRatio() float64 {
	if f.datSize == 0 {
		return 0
	}
	return float64(f.oldSum) / float64(f.datSize)
}

// --- setters -----------------------------------------------------------

func (f *FileState) SetPresent(p Present)  { f.present = p }
func (f *FileState) SetLive(live bool)     { f.live = live }
func (f *FileState) SetDataFileSize(n uint64)  { f.datSize = n }
func (f *FileState) SetIndexFileSize(n uint64) { f.indSize = n }
func (f *FileState) SetGCActive(active bool)   { f.gcActive = active }

// IncReaders increments the in-flight reader count. Returns an
// Overflow-kinded error on the (practically unreachable) wraparound
// case, mirroring the source's checked increment.
func (f *FileState) IncReaders() error {
	if f.readers == math.MaxUint64 {
		return ozerr.New("reader count already at maximum", ozerr.Bug, ozerr.Overflow)
	}
	f.readers++
	return nil
}

// DecReaders decrements the in-flight reader count.
func (f *FileState) DecReaders() error {
	if f.readers == 0 {
		return ozerr.New("reader count already at minimum", ozerr.Bug, ozerr.Overflow)
	}
	f.readers--
	return nil
}

// InsertNew records a newly written Cur entry at floc.Start and grows
// the data/index size accounting. Returns the combined number of bytes
// (data + index) the new entry added, for shard-level rollups.
func (f *FileState) InsertNew(floc record.FileLocation, ilen uint64) (uint64, error) {
	f.dmap[floc.Start] = Cur

	datLen := uint64(floc.KLen) + uint64(floc.VLen)
	newDat, err := checkedAdd(f.datSize, datLen, "data file size")
	if err != nil {
		f.datSize = math.MaxUint64
		return 0, err
	}
	f.datSize = newDat

	indLen := uint64(floc.KLen) + ilen
	newInd, err := checkedAdd(f.indSize, indLen, "index file size")
	if err != nil {
		f.indSize = math.MaxUint64
		return 0, err
	}
	f.indSize = newInd

	total, err := checkedAdd(datLen, indLen, "new entry size total")
	if err != nil {
		return 0, err
	}
	return total, nil
}

// IncIndexFileSize grows the index size accounting alone, used when a
// GC rewrite appends an index record without a matching InsertNew call.
func (f *FileState) IncIndexFileSize(n uint64) error {
	newSize, err := checkedAdd(f.indSize, n, "index file size")
	if err != nil {
		f.indSize = math.MaxUint64
		return err
	}
	f.indSize = newSize
	return nil
}

// RegisterOld flags the entry at start as superseded and adjusts the
// old-sum/old-count accounting the GC trigger (§4.4.1) watches.
func (f *FileState) RegisterOld(start uint64, length uint64) error {
	cur, ok := f.dmap[start]
	if !ok {
		return ozerr.Newf([]ozerr.Kind{ozerr.Bug, ozerr.Missing},
			"no data entry at offset %d to flag as old", start)
	}
	if cur == Old {
		return ozerr.Newf([]ozerr.Kind{ozerr.Bug, ozerr.Mismatch},
			"entry at offset %d already marked old", start)
	}
	f.dmap[start] = Old

	newSum, err := checkedAdd(f.oldSum, length, "old-entry byte sum")
	if err != nil {
		f.oldSum = math.MaxUint64
		return err
	}
	f.oldSum = newSum

	newCnt, err := checkedAdd(f.oldCnt, 1, "old-entry count")
	if err != nil {
		f.oldCnt = math.MaxUint64
		return err
	}
	f.oldCnt = newCnt
	return nil
}

// RetireOld removes an entry entirely — called once GC has relocated
// the file's live entries and the old file's bytes are no longer
// needed. Returns the number of data bytes freed. The old-sum/old-count
// figures shrink only for an entry still tracked as Old; a relocated
// Cur entry (already dropped from the data-map by RecordMove) was never
// counted in them.
func (f *FileState) RetireOld(start uint64, length uint64) (uint64, error) {
	state, tracked := f.dmap[start]
	delete(f.dmap, start)

	if f.datSize < length {
		return 0, ozerr.Newf([]ozerr.Kind{ozerr.Bug, ozerr.Overflow},
			"retiring offset %d would underflow data file size %d by %d", start, f.datSize, length)
	}
	f.datSize -= length

	if !tracked || state != Old {
		return length, nil
	}

	if f.oldSum < length {
		return 0, ozerr.Newf([]ozerr.Kind{ozerr.Bug, ozerr.Overflow},
			"retiring offset %d would underflow old-sum %d by %d", start, f.oldSum, length)
	}
	f.oldSum -= length

	if f.oldCnt == 0 {
		return 0, ozerr.New("retiring an entry would underflow old-count", ozerr.Bug, ozerr.Overflow)
	}
	f.oldCnt--

	return length, nil
}

// RecordMove populates the GC move-map: the entry previously at
// oldStart now lives at newStart in the successor file, and is removed
// from this file's live data-map (it will be retired once the
// corresponding CacheBot has acknowledged the relocation).
func (f *FileState) RecordMove(oldStart, newStart uint64) {
	f.mmap[oldStart] = newStart
	delete(f.dmap, oldStart)
}

// ResolveMove looks up where oldStart was relocated to during GC,
// without consuming the move-map entry.
func (f *FileState) ResolveMove(oldStart uint64) (uint64, bool) {
	newStart, ok := f.mmap[oldStart]
	return newStart, ok
}

// ClearMove removes the move-map entry for oldStart once it is no
// longer needed (the old file is about to be retired or deleted).
func (f *FileState) ClearMove(oldStart uint64) {
	delete(f.mmap, oldStart)
}

// Reset clears all size/old accounting and maps, used when a file is
// fully retired and its FileState entry is about to be dropped.
func (f *FileState) Reset() {
	f.datSize = 0
	f.indSize = 0
	f.oldSum = 0
	f.oldCnt = 0
	f.dmap = make(map[uint64]DataState)
	f.mmap = make(map[uint64]uint64)
}

func checkedAdd(a, b uint64, what string) (uint64, error) {
	sum := a + b
	if sum < a { // wrapped
		return 0, ozerr.Newf([]ozerr.Kind{ozerr.Bug, ozerr.Overflow},
			"%s overflowed adding %d to %d", what, b, a)
	}
	return sum, nil
}
