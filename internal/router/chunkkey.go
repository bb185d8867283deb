package router

import "encoding/binary"

// chunkSuffix marks a synthesised chunk key apart from anything a host
// could plausibly supply as a raw key suffix, so a chunk's composite key
// never collides with an unrelated, legitimately-short original key.
var chunkSuffix = []byte{0x00, 'c', 'h', 'u', 'n', 'k'}

// chunkRawKey synthesises the raw key for chunk index of an oversize
// value stored under key (§4.8): "each chunk becomes an independent
// stored pair whose key is (ozone-key, chunk-index)". The composite is
// built from the *original* raw key, not the ozone-key, so each chunk's
// own ozone-key (and therefore its own zone/shard selection) is derived
// independently downstream, exactly like any other put.
func chunkRawKey(key []byte, index uint32) []byte {
	out := make([]byte, 0, len(key)+len(chunkSuffix)+4)
	out = append(out, key...)
	out = append(out, chunkSuffix...)
	idx := make([]byte, 4)
	binary.BigEndian.PutUint32(idx, index)
	out = append(out, idx...)
	return out
}
