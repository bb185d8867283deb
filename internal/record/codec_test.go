package record

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/ozonedb/internal/schemes"
)

func TestDataRecord_EncodeDecodeRoundTrip(t *testing.T) {
	cs := schemes.SHA256Checksummer{}
	key := []byte("my-key")
	value := []byte("my-value-bytes")
	checksum := cs.Sum(value)

	buf := EncodeDataRecord(key, value, checksum)
	require.Len(t, buf, DataRecordLen(uint64(len(key)), uint64(len(value)), cs.Len()))

	gotKey, gotValue, gotChecksum, err := DecodeDataRecord(buf, cs.Len())
	require.NoError(t, err)
	require.Equal(t, key, gotKey)
	require.Equal(t, value, gotValue)
	require.Equal(t, checksum, gotChecksum)
	require.True(t, cs.Verify(gotValue, gotChecksum))
}

func TestDataRecord_DecodeRejectsTruncatedBuffer(t *testing.T) {
	buf := EncodeDataRecord([]byte("k"), []byte("v"), []byte{1, 2, 3, 4})
	_, _, _, err := DecodeDataRecord(buf[:len(buf)-1], 4)
	require.Error(t, err)
}

func TestMeta_EncodeDecodeRoundTrip(t *testing.T) {
	var uid [UIDLen]byte
	copy(uid[:], "0123456789abcdef")
	m := Meta{
		UID:          uid,
		Timestamp:    1234567890,
		Tombstone:    true,
		EncCode:      schemes.CodeChaCha20Poly1305,
		ChecksumCode: schemes.CodeSHA256,
	}
	decoded, err := DecodeMeta(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}

func TestIndexReader_SequentialDecode(t *testing.T) {
	var uid [UIDLen]byte
	rec1 := IndexRecord{Key: []byte("key1"), FileOffset: 0, KLen2: 4, VLen: 10, Meta: Meta{UID: uid, Timestamp: 1}}
	rec2 := IndexRecord{Key: []byte("key-two"), FileOffset: 100, KLen2: 7, VLen: 20, Meta: Meta{UID: uid, Timestamp: 2}}

	var buf bytes.Buffer
	buf.Write(rec1.Encode())
	buf.Write(rec2.Encode())

	ir := NewIndexReader(&buf)
	got1, err := ir.Next()
	require.NoError(t, err)
	require.Equal(t, rec1.Key, got1.Key)
	require.Equal(t, rec1.FileOffset, got1.FileOffset)

	got2, err := ir.Next()
	require.NoError(t, err)
	require.Equal(t, rec2.Key, got2.Key)

	_, err = ir.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestIndexReader_CorruptRecordIsReported(t *testing.T) {
	garbage := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	ir := NewIndexReader(bytes.NewReader(garbage))
	_, err := ir.Next()
	require.Error(t, err)
}
