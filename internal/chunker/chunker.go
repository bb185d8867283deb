package chunker

import (
	"encoding/binary"

	"github.com/dreamware/ozonedb/internal/ozerr"
)

// Manifest records the information needed to reassemble a chunked value
// without any ambiguity about how many chunks exist or where the final
// chunk's padding (if any) ends.
type Manifest struct {
	TotalLen   uint64
	ChunkCount uint32
}

// ManifestLen is the fixed encoded length of a Manifest record.
const ManifestLen = 8 + 4

// Encode serialises the manifest to its fixed-width wire form.
func (m Manifest) Encode() []byte {
	buf := make([]byte, ManifestLen)
	binary.BigEndian.PutUint64(buf[0:8], m.TotalLen)
	binary.BigEndian.PutUint32(buf[8:12], m.ChunkCount)
	return buf
}

// DecodeManifest parses a Manifest from its wire form.
func DecodeManifest(buf []byte) (Manifest, error) {
	if len(buf) != ManifestLen {
		return Manifest{}, ozerr.Newf([]ozerr.Kind{ozerr.Invalid, ozerr.Mismatch},
			"manifest must be %d bytes, got %d", ManifestLen, len(buf))
	}
	return Manifest{
		TotalLen:   binary.BigEndian.Uint64(buf[0:8]),
		ChunkCount: binary.BigEndian.Uint32(buf[8:12]),
	}, nil
}

// Chunk splits value into ceil(len(value)/size) pieces of at most size
// bytes each. If padLast is true, the final chunk is padded with zero
// bytes up to size; the Manifest.TotalLen preserves the true length so
// Assemble can trim the padding away regardless.
func Chunk(value []byte, size int, padLast bool) ([][]byte, Manifest, error) {
	if size <= 0 {
		return nil, Manifest{}, ozerr.New("chunk size must be positive", ozerr.Invalid)
	}
	total := len(value)
	count := (total + size - 1) / size
	if total == 0 {
		count = 1
	}
	chunks := make([][]byte, 0, count)
	for off := 0; off < total; off += size {
		end := off + size
		if end > total {
			end = total
		}
		piece := value[off:end]
		if padLast && len(piece) < size {
			padded := make([]byte, size)
			copy(padded, piece)
			piece = padded
		} else {
			cp := make([]byte, len(piece))
			copy(cp, piece)
			piece = cp
		}
		chunks = append(chunks, piece)
	}
	if total == 0 {
		piece := []byte{}
		if padLast {
			piece = make([]byte, size)
		}
		chunks = append(chunks, piece)
	}
	return chunks, Manifest{TotalLen: uint64(total), ChunkCount: uint32(len(chunks))}, nil
}

// Assemble concatenates chunks in order and truncates the result to
// manifest.TotalLen, reversing any padding Chunk applied to the final
// piece. It fails if the number of supplied chunks does not match the
// manifest's ChunkCount, since that always indicates a missing chunk
// rather than a legitimately short value.
func Assemble(chunks [][]byte, manifest Manifest) ([]byte, error) {
	if uint32(len(chunks)) != manifest.ChunkCount {
		return nil, ozerr.Newf([]ozerr.Kind{ozerr.Missing, ozerr.Mismatch},
			"expected %d chunks to assemble value, got %d", manifest.ChunkCount, len(chunks))
	}
	out := make([]byte, 0, manifest.TotalLen)
	for _, c := range chunks {
		out = append(out, c...)
	}
	if uint64(len(out)) < manifest.TotalLen {
		return nil, ozerr.Newf([]ozerr.Kind{ozerr.Mismatch},
			"assembled value shorter (%d bytes) than manifest total length %d", len(out), manifest.TotalLen)
	}
	return out[:manifest.TotalLen], nil
}
