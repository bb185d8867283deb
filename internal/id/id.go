package id

import (
	"fmt"

	"github.com/google/uuid"
)

// Bid is a random bot identifier, unique for the lifetime of a process.
// Grounded on the source's Bid (a fixed-width random byte identifier
// minted once per bot at spawn time); here backed by google/uuid rather
// than a hand-rolled random byte generator, since the pack (cuemby-warren,
// coreos-coreos-assembler) consistently reaches for uuid.New() wherever a
// process-local unique identifier is needed.
type Bid uuid.UUID

// NewBid mints a fresh random bot identifier.
func NewBid() Bid {
	return Bid(uuid.New())
}

func (b Bid) String() string {
	return uuid.UUID(b).String()
}

// BotKind enumerates the actor roles of §2. Supervisor and Zone are
// singletons (one Supervisor, one ZoneBot per zone); the worker kinds
// (Writer, Cache, File, Reader, InitGc) run as a fixed-size pool per zone.
type BotKind string

const (
	KindSupervisor BotKind = "supervisor"
	KindZone       BotKind = "zone"
	KindWriter     BotKind = "writer"
	KindCache      BotKind = "cache"
	KindFile       BotKind = "file"
	KindReader     BotKind = "reader"
	KindInitGc     BotKind = "initgc"
)

// ZoneIndex identifies a zone, 0-based, within [0, num_zones).
type ZoneIndex int

// BotIndex identifies a worker bot's shard position, 0-based, within a
// zone's pool of bots of one BotKind.
type BotIndex int

// OzoneBotID is the full address of a bot: its role, a random identity,
// and — for per-zone workers — which zone and which shard of that kind it
// owns. Supervisor and Zone bots carry ZoneIndex/BotIndex == -1.
type OzoneBotID struct {
	Kind  BotKind
	Bid   Bid
	Zone  ZoneIndex
	Index BotIndex
}

// NewSupervisorID returns a freshly minted Supervisor identity.
func NewSupervisorID() OzoneBotID {
	return OzoneBotID{Kind: KindSupervisor, Bid: NewBid(), Zone: -1, Index: -1}
}

// NewZoneID returns a freshly minted ZoneBot identity for the given zone.
func NewZoneID(zone ZoneIndex) OzoneBotID {
	return OzoneBotID{Kind: KindZone, Bid: NewBid(), Zone: zone, Index: -1}
}

// NewWorkerID returns a freshly minted worker identity of the given kind,
// zone, and shard index.
func NewWorkerID(kind BotKind, zone ZoneIndex, index BotIndex) OzoneBotID {
	return OzoneBotID{Kind: kind, Bid: NewBid(), Zone: zone, Index: index}
}

func (id OzoneBotID) String() string {
	switch id.Kind {
	case KindSupervisor:
		return fmt.Sprintf("supervisor[%s]", id.Bid)
	case KindZone:
		return fmt.Sprintf("zone[%d]/%s", id.Zone, id.Bid)
	default:
		return fmt.Sprintf("%s[%d:%d]/%s", id.Kind, id.Zone, id.Index, id.Bid)
	}
}

// FileNum is a zone-local, monotonically increasing file number. File
// number 0 is never assigned; the first live file in a zone is 1.
type FileNum uint32

// String renders a FileNum using the display convention of §6:
// three groups of three zero-padded digits, e.g. "000_000_001".
func (f FileNum) String() string {
	s := fmt.Sprintf("%09d", uint32(f))
	return s[0:3] + "_" + s[3:6] + "_" + s[6:9]
}

// DataFileName returns the on-disk data-file name for this file number.
func (f FileNum) DataFileName() string {
	return fmt.Sprintf("%09d.dat", uint32(f))
}

// IndexFileName returns the on-disk index-file name for this file number.
func (f FileNum) IndexFileName() string {
	return fmt.Sprintf("%09d.ind", uint32(f))
}
