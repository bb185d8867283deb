package record

import (
	"encoding/binary"

	"github.com/dreamware/ozonedb/internal/ozerr"
	"github.com/dreamware/ozonedb/internal/schemes"
)

// UIDLen is the fixed width of a user identifier. The source is generic
// over this width (UIDL); this port fixes it at 16 bytes (a UUID's
// natural width) rather than carrying the generality through Go's type
// parameters, since every host in practice supplies a UUID-shaped
// identifier — see DESIGN.md.
const UIDLen = 16

// Meta accompanies every stored entry: who wrote it, when, whether it is
// a tombstone, whether its value is a chunker.Manifest rather than
// user bytes, and which encryption/checksum scheme produced its bytes
// (§3, §6).
type Meta struct {
	UID          [UIDLen]byte
	Timestamp    uint64 // monotonically assigned; see internal/router's clock.
	Tombstone    bool
	Chunked      bool // true iff Value is an encoded chunker.Manifest, not the user's bytes.
	EncCode      schemes.Code
	ChecksumCode schemes.Code
}

// MetaLen is the fixed encoded length of a Meta record.
const MetaLen = UIDLen + 8 + 1 + 1 + 1

// Encode serialises Meta to its fixed-width wire form.
func (m Meta) Encode() []byte {
	buf := make([]byte, MetaLen)
	copy(buf[0:UIDLen], m.UID[:])
	binary.BigEndian.PutUint64(buf[UIDLen:UIDLen+8], m.Timestamp)
	flags := byte(0)
	if m.Tombstone {
		flags |= 0x01
	}
	if m.Chunked {
		flags |= 0x02
	}
	buf[UIDLen+8] = flags
	buf[UIDLen+9] = byte(m.EncCode)
	buf[UIDLen+10] = byte(m.ChecksumCode)
	return buf
}

// DecodeMeta parses a Meta from its wire form.
func DecodeMeta(buf []byte) (Meta, error) {
	if len(buf) != MetaLen {
		return Meta{}, ozerr.Newf([]ozerr.Kind{ozerr.Invalid, ozerr.Mismatch},
			"meta record must be %d bytes, got %d", MetaLen, len(buf))
	}
	var m Meta
	copy(m.UID[:], buf[0:UIDLen])
	m.Timestamp = binary.BigEndian.Uint64(buf[UIDLen : UIDLen+8])
	m.Tombstone = buf[UIDLen+8]&0x01 != 0
	m.Chunked = buf[UIDLen+8]&0x02 != 0
	m.EncCode = schemes.Code(buf[UIDLen+9])
	m.ChecksumCode = schemes.Code(buf[UIDLen+10])
	return m, nil
}
