package chunker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkAssemble_RoundTrip(t *testing.T) {
	value := bytes.Repeat([]byte("abcdefghij"), 500) // 5000 bytes
	chunks, manifest, err := Chunk(value, 100, true)
	require.NoError(t, err)
	require.Equal(t, 50, len(chunks))
	require.EqualValues(t, 5000, manifest.TotalLen)

	assembled, err := Assemble(chunks, manifest)
	require.NoError(t, err)
	require.Equal(t, value, assembled)
}

func TestChunk_NonMultipleSizePadsLastChunk(t *testing.T) {
	value := bytes.Repeat([]byte{1}, 205)
	chunks, manifest, err := Chunk(value, 100, true)
	require.NoError(t, err)
	require.Equal(t, 3, len(chunks))
	require.Len(t, chunks[2], 100) // padded
	require.EqualValues(t, 3, manifest.ChunkCount)

	assembled, err := Assemble(chunks, manifest)
	require.NoError(t, err)
	require.Equal(t, value, assembled)
}

func TestChunk_WithoutPaddingShrinksLastChunk(t *testing.T) {
	value := bytes.Repeat([]byte{7}, 205)
	chunks, _, err := Chunk(value, 100, false)
	require.NoError(t, err)
	require.Len(t, chunks[2], 5)
}

func TestAssemble_MissingChunkFails(t *testing.T) {
	value := bytes.Repeat([]byte{9}, 300)
	chunks, manifest, err := Chunk(value, 100, true)
	require.NoError(t, err)

	_, err = Assemble(chunks[:2], manifest)
	require.Error(t, err)
}

func TestManifest_EncodeDecodeRoundTrip(t *testing.T) {
	m := Manifest{TotalLen: 123456, ChunkCount: 42}
	decoded, err := DecodeManifest(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}
