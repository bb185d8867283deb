package comm

import (
	"github.com/dreamware/ozonedb/internal/dcache"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/record"
	"github.com/dreamware/ozonedb/internal/schemes"
)

// Message is a marker interface satisfied by every envelope a bot inbox
// may carry. It documents intent at call sites; the channel itself is
// typed chan Message so a single inbox can carry any of a bot's request
// shapes plus the shared TopologyUpdate/Shutdown control messages.
type Message interface {
	isOzoneMessage()
}

type baseMessage struct{}

func (baseMessage) isOzoneMessage() {}

// ReadResultKind distinguishes the shapes a read can resolve to (§4.3,
// §4.4).
type ReadResultKind int

const (
	ReadValue ReadResultKind = iota
	ReadLocation
	ReadNone
	ReadDeleted
)

// ReadResult is the reply carried back through a CacheBot → FileBot →
// ReaderBot chain, or returned directly by a CacheBot on a value hit.
type ReadResult struct {
	Kind   ReadResultKind
	Value  []byte
	Meta   record.Meta
	Loc    record.MetaLocation
	PostGC bool // true if this reply was queued across a GC transition
	Err    error
}

// --- WriterBot (§4.2) -------------------------------------------------------

// Write asks a WriterBot to append key/value to its zone's current live
// file. OzoneKey and CacheAddr are precomputed by the Router (it already
// knows the zone/shard hash; redoing that work inside the bot would just
// duplicate it) so the WriterBot knows where to forward the resulting
// Insert without itself depending on the hashing schemes.
type Write struct {
	baseMessage
	Key           []byte
	Value         []byte
	Meta          record.Meta
	Schemes       schemes.Set
	OzoneKey      string
	CacheAddr     Address
	HasChunkIndex bool
	ChunkIndex    uint32
	Responder     *Responder[WriteResult]
}

// WriteResult is the outcome of a Write: the new FileLocation and
// encoded index-record length, whether the ozone-key already existed
// (from the CacheBot's InsertReply, per §4.1's put return value), or an
// error if the append failed.
type WriteResult struct {
	Loc     record.FileLocation
	ILen    uint64
	Existed bool
	Err     error
}

// --- CacheBot (§4.3) --------------------------------------------------------

// Insert asks a CacheBot to record a fresh write for an ozone-key,
// optionally with the value bytes themselves (cache-insertion policy
// permitting) and optionally tagged with a chunk index for chunked
// values.
type Insert struct {
	baseMessage
	OzoneKey      string
	CachedValue   []byte // nil means location-only
	HasChunkIndex bool
	ChunkIndex    uint32
	Floc          record.FileLocation
	ILen          uint64
	Meta          record.Meta
	Responder     *Responder[InsertReply]
}

// InsertReply answers Insert with whether the key already existed, and
// its chunk index if the caller supplied one.
type InsertReply struct {
	Existed       bool
	HasChunkIndex bool
	ChunkIndex    uint32
	Err           error
}

// ReadCache asks a CacheBot to resolve an ozone-key: directly, if the
// value is cache-resident, or by forwarding to the owning FileBot if
// only a location is known.
type ReadCache struct {
	baseMessage
	OzoneKey  string
	Responder *Responder[ReadResult]
}

// ClearCache empties a CacheBot's shard.
type ClearCache struct{ baseMessage }

// SetCacheSizeLimit changes a CacheBot's size bound.
type SetCacheSizeLimit struct {
	baseMessage
	Limit uint64
}

// DumpCacheRequest asks a CacheBot for a snapshot of its shard.
type DumpCacheRequest struct {
	baseMessage
	Responder *Responder[map[string]dcache.Entry]
}

// GcCacheUpdateRequest is sent by a FileBot mid-GC to every CacheBot
// whose shard owns one or more of the relocated ozone-keys.
type GcCacheUpdateRequest struct {
	baseMessage
	Pairs     map[string]record.FileLocation // ozone-key -> new location
	Responder *Responder[GcCacheUpdateReply]
}

// GcCacheUpdateReply carries back the prior location of every entry the
// CacheBot actually updated, so the FileBot can retire the
// corresponding old-file bytes.
type GcCacheUpdateReply struct {
	OldLocations map[string]record.FileLocation
}

// --- FileBot (§4.4) ---------------------------------------------------------

// UpdateData tells a FileBot about a newly written entry and,
// optionally, the location it superseded.
type UpdateData struct {
	baseMessage
	NewFloc record.FileLocation
	ILen    uint64
	OldFloc *record.FileLocation
	From    id.OzoneBotID
}

// ReadFileRequest asks a FileBot for permission to read mloc from file
// fnum.
type ReadFileRequest struct {
	baseMessage
	FileNum   id.FileNum
	Loc       record.MetaLocation
	Responder *Responder[ReadResult]
}

// ReadFinished tells a FileBot that a previously granted read against
// fnum has completed, decrementing its reader count.
type ReadFinished struct {
	baseMessage
	FileNum id.FileNum
}

// RegisterOld tells a FileBot that a location it owns has been
// superseded. Used when an UpdateData's OldFloc names a file belonging
// to a different shard: the FileBot that received the UpdateData
// forwards the registration on to the FileBot that actually owns it.
type RegisterOld struct {
	baseMessage
	Floc record.FileLocation
	From id.OzoneBotID
}

// --- ReaderBot (§4.5) --------------------------------------------------------

// DoRead asks a ReaderBot to perform the file I/O a FileBot has already
// granted permission for: read the bytes at Loc, verify the checksum,
// decrypt if needed, and reply to Responder. FileBotAddr tells the
// ReaderBot which FileBot to notify (ReadFinished) once done, releasing
// the reader count that FileBot is holding on its behalf.
type DoRead struct {
	baseMessage
	ZoneDir     string
	Loc         record.MetaLocation
	PostGC      bool
	FileBotAddr Address
	Responder   *Responder[ReadResult]
}

// --- InitGcBot (§4.6) --------------------------------------------------------

// RunGC asks an InitGcBot to execute the single-file garbage-collection
// rewrite of §4.4.1 against FileNum, on behalf of the FileBot that
// decided the threshold was crossed. The FileBot has already set
// gc_active and drained readers before sending this.
type RunGC struct {
	baseMessage
	ZoneDir     string
	FileNum     id.FileNum
	FileBotAddr Address
}

// GCComplete tells a FileBot that a previously dispatched RunGC has
// finished: every live entry in FileNum has been relocated into
// NewFile.
type GCComplete struct {
	baseMessage
	FileNum id.FileNum
	NewFile id.FileNum
	Err     error
}

// SeedLocation pre-populates a CacheBot's shard with a location entry
// discovered during InitGcBot's startup index scan, before any client
// traffic is accepted (§4.6).
type SeedLocation struct {
	baseMessage
	OzoneKey string
	Floc     record.FileLocation
	Meta     record.Meta
}

// --- ZoneBot (§4.7) ----------------------------------------------------------

// ZoneStatusRequest asks a ZoneBot for a snapshot of its zone's current
// size, file count, and GC activity, the data backing a host's
// ZoneState query and the periodic status log of §4.7.
type ZoneStatusRequest struct {
	baseMessage
	Responder *Responder[ZoneStatus]
}

// ZoneStatus summarises one zone's state at the moment it was sampled.
type ZoneStatus struct {
	Zone           id.ZoneIndex
	DataBytes      uint64
	FileCount      int
	GCActiveFiles  int
	CacheEntries   int
}

// --- Control plane (§4.7, §5) ------------------------------------------------

// TopologyUpdate distributes a freshly built, immutable ChannelTable to
// a bot. Bots continue using their existing table until they observe
// this message on their own inbox (§4.7).
type TopologyUpdate struct {
	baseMessage
	Table *ChannelTable
}

// Shutdown asks a bot to finish its current message, drain nothing
// further, and exit; Ack is closed once the bot has stopped.
type Shutdown struct {
	baseMessage
	Ack *Responder[struct{}]
}
