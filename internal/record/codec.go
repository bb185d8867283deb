package record

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/dreamware/ozonedb/internal/ozerr"
)

// UvarintLen returns the number of bytes encoding/binary.PutUvarint
// would use to encode x, without allocating.
func UvarintLen(x uint64) int {
	n := 1
	for x >= 0x80 {
		x >>= 7
		n++
	}
	return n
}

// DataRecordLen returns the exact on-disk length of a data-file record
// for a key/value pair of the given plain lengths, given the checksum
// length of the scheme that will sign it. ReaderBot uses this to read
// exactly the right number of bytes from a known Start offset without
// needing a redundant length field.
func DataRecordLen(klen, vlen uint64, checksumLen int) int {
	return UvarintLen(klen) + int(klen) + UvarintLen(vlen) + int(vlen) + checksumLen
}

// EncodeDataRecord builds the on-disk bytes for one data-file record:
// klen(varint) key(klen) vlen(varint) value(vlen) checksum(csum_len).
func EncodeDataRecord(key, value, checksum []byte) []byte {
	total := DataRecordLen(uint64(len(key)), uint64(len(value)), len(checksum))
	buf := make([]byte, total)
	n := binary.PutUvarint(buf, uint64(len(key)))
	n += copy(buf[n:], key)
	n += binary.PutUvarint(buf[n:], uint64(len(value)))
	n += copy(buf[n:], value)
	copy(buf[n:], checksum)
	return buf
}

// DecodeDataRecord parses a data-file record out of buf, which must be
// exactly one record's worth of bytes (e.g. read via DataRecordLen).
// checksumLen tells the decoder where the value ends and the checksum
// begins.
func DecodeDataRecord(buf []byte, checksumLen int) (key, value, checksum []byte, err error) {
	klen, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, nil, nil, ozerr.New("malformed data record: bad key length varint", ozerr.Invalid, ozerr.Mismatch)
	}
	off := n
	if off+int(klen) > len(buf) {
		return nil, nil, nil, ozerr.New("malformed data record: key overruns buffer", ozerr.Invalid, ozerr.Mismatch)
	}
	key = buf[off : off+int(klen)]
	off += int(klen)

	vlen, n := binary.Uvarint(buf[off:])
	if n <= 0 {
		return nil, nil, nil, ozerr.New("malformed data record: bad value length varint", ozerr.Invalid, ozerr.Mismatch)
	}
	off += n
	if off+int(vlen) > len(buf) {
		return nil, nil, nil, ozerr.New("malformed data record: value overruns buffer", ozerr.Invalid, ozerr.Mismatch)
	}
	value = buf[off : off+int(vlen)]
	off += int(vlen)

	if off+checksumLen != len(buf) {
		return nil, nil, nil, ozerr.New("malformed data record: checksum length mismatch", ozerr.Invalid, ozerr.Mismatch)
	}
	checksum = buf[off:]
	return key, value, checksum, nil
}

// IndexRecord is one entry of an index file: §6 —
// klen(varint) key(klen) file_offset(u64) klen2(varint) vlen(varint) meta.
//
// KLen2 mirrors the data file's key length as a cross-check against
// index corruption; a mismatch with len(Key) is treated the same as a
// bad checksum during initialisation (fall back to a data-file scan).
type IndexRecord struct {
	Key        []byte
	FileOffset uint64
	KLen2      uint64
	VLen       uint64
	Meta       Meta
}

// Encode serialises one index record.
func (r IndexRecord) Encode() []byte {
	klenBuf := make([]byte, binary.MaxVarintLen64)
	n1 := binary.PutUvarint(klenBuf, uint64(len(r.Key)))

	klen2Buf := make([]byte, binary.MaxVarintLen64)
	n2 := binary.PutUvarint(klen2Buf, r.KLen2)

	vlenBuf := make([]byte, binary.MaxVarintLen64)
	n3 := binary.PutUvarint(vlenBuf, r.VLen)

	total := n1 + len(r.Key) + 8 + n2 + n3 + MetaLen
	buf := make([]byte, total)
	off := 0
	off += copy(buf[off:], klenBuf[:n1])
	off += copy(buf[off:], r.Key)
	binary.BigEndian.PutUint64(buf[off:off+8], r.FileOffset)
	off += 8
	off += copy(buf[off:], klen2Buf[:n2])
	off += copy(buf[off:], vlenBuf[:n3])
	copy(buf[off:], r.Meta.Encode())
	return buf
}

// IndexReader sequentially decodes index records from a byte stream,
// the way InitGcBot scans an index file at startup (§4.6). Returns
// io.EOF (wrapped unchanged so callers can use errors.Is) once the
// stream is exhausted at a record boundary.
type IndexReader struct {
	r *bufio.Reader
}

// NewIndexReader wraps r for sequential IndexRecord decoding.
func NewIndexReader(r io.Reader) *IndexReader {
	return &IndexReader{r: bufio.NewReader(r)}
}

// Next reads and returns the next IndexRecord, or io.EOF when the
// stream ends cleanly on a record boundary. Any other error (including
// EOF in the middle of a record) is treated as index corruption so the
// caller can fall back to a data-file rescan: a failed or short read is
// returned with Invalid/IO kinds, a malformed meta block or a klen2 that
// disagrees with the key length with Invalid/Mismatch.
func (ir *IndexReader) Next() (IndexRecord, error) {
	klen, err := binary.ReadUvarint(ir.r)
	if err != nil {
		if err == io.EOF {
			return IndexRecord{}, io.EOF
		}
		return IndexRecord{}, ozerr.Wrap(err, "reading index record key length", ozerr.Invalid, ozerr.IO)
	}
	key := make([]byte, klen)
	if _, err := io.ReadFull(ir.r, key); err != nil {
		return IndexRecord{}, ozerr.Wrap(err, "reading index record key", ozerr.Invalid, ozerr.IO)
	}

	var offsetBuf [8]byte
	if _, err := io.ReadFull(ir.r, offsetBuf[:]); err != nil {
		return IndexRecord{}, ozerr.Wrap(err, "reading index record file offset", ozerr.Invalid, ozerr.IO)
	}
	fileOffset := binary.BigEndian.Uint64(offsetBuf[:])

	klen2, err := binary.ReadUvarint(ir.r)
	if err != nil {
		return IndexRecord{}, ozerr.Wrap(err, "reading index record klen2", ozerr.Invalid, ozerr.IO)
	}
	vlen, err := binary.ReadUvarint(ir.r)
	if err != nil {
		return IndexRecord{}, ozerr.Wrap(err, "reading index record value length", ozerr.Invalid, ozerr.IO)
	}
	metaBuf := make([]byte, MetaLen)
	if _, err := io.ReadFull(ir.r, metaBuf); err != nil {
		return IndexRecord{}, ozerr.Wrap(err, "reading index record meta", ozerr.Invalid, ozerr.IO)
	}
	meta, err := DecodeMeta(metaBuf)
	if err != nil {
		return IndexRecord{}, err
	}

	if klen2 != uint64(len(key)) {
		return IndexRecord{}, ozerr.Newf([]ozerr.Kind{ozerr.Invalid, ozerr.Mismatch},
			"index record klen2 (%d) does not match key length (%d)", klen2, len(key))
	}

	return IndexRecord{
		Key:        key,
		FileOffset: fileOffset,
		KLen2:      klen2,
		VLen:       vlen,
		Meta:       meta,
	}, nil
}
