package writerbot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/ozonedb/internal/filestate"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/record"
	"github.com/dreamware/ozonedb/internal/schemes"
)

func newTestState(t *testing.T, maxSize uint64) (*State, *filestate.ShardMap) {
	t.Helper()
	dir := t.TempDir()
	shards := filestate.NewShardMap()
	shards.InsertNew(id.FileNum(1))
	st, err := Open(dir, shards, id.FileNum(1), maxSize)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, shards
}

func TestState_AppendWritesRecordReturnsLocation(t *testing.T) {
	st, _ := newTestState(t, 1<<20)
	set := schemes.Defaults()

	res, err := st.Append([]byte("k1"), []byte("v1"), record.Meta{Timestamp: 1}, set)
	require.NoError(t, err)
	require.False(t, res.Sealed)
	require.Equal(t, id.FileNum(1), res.Loc.File)
	require.Equal(t, uint64(0), res.Loc.Start)
	require.Greater(t, res.ILen, uint64(0))

	res2, err := st.Append([]byte("k2"), []byte("v2"), record.Meta{Timestamp: 2}, set)
	require.NoError(t, err)
	require.Greater(t, res2.Loc.Start, res.Loc.Start, "second append must land after the first")
}

func TestState_AppendSealsWhenOverMaxSize(t *testing.T) {
	st, shards := newTestState(t, 10) // tiny max, first write should seal
	set := schemes.Defaults()

	res, err := st.Append([]byte("key"), []byte("value-bytes"), record.Meta{}, set)
	require.NoError(t, err)
	require.True(t, res.Sealed)
	require.Equal(t, id.FileNum(1), res.OldFile)
	require.Equal(t, id.FileNum(2), res.NewFile)
	require.Equal(t, id.FileNum(2), st.CurrentFile())

	oldEntry, ok := shards.Get(id.FileNum(1))
	require.True(t, ok)
	require.False(t, oldEntry.State.IsLive())

	newEntry, ok := shards.Get(id.FileNum(2))
	require.True(t, ok)
	require.True(t, newEntry.State.IsLive())
}

func TestState_ResumesOffsetFromExistingFile(t *testing.T) {
	dir := t.TempDir()
	shards := filestate.NewShardMap()
	shards.InsertNew(id.FileNum(1))
	st, err := Open(dir, shards, id.FileNum(1), 1<<20)
	require.NoError(t, err)
	set := schemes.Defaults()
	_, err = st.Append([]byte("a"), []byte("bb"), record.Meta{}, set)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	shards2 := filestate.NewShardMap()
	shards2.InsertNew(id.FileNum(1))
	st2, err := Open(dir, shards2, id.FileNum(1), 1<<20)
	require.NoError(t, err)
	defer st2.Close()

	info, err := st2.dataFile.Stat()
	require.NoError(t, err)
	require.Equal(t, filepath.Base(st2.dataFile.Name()), "000000001.dat")
	require.Equal(t, uint64(info.Size()), st2.offset)
}
