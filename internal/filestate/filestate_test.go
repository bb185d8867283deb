package filestate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/record"
)

func TestFileState_InsertNewTracksSizeAndState(t *testing.T) {
	fs := New()
	total, err := fs.InsertNew(record.FileLocation{Start: 0, KLen: 3, VLen: 5}, 20)
	require.NoError(t, err)
	require.Equal(t, uint64(8+23), total)

	state, ok := fs.DataStateAt(0)
	require.True(t, ok)
	require.Equal(t, Cur, state)
	require.Equal(t, uint64(8), fs.DataFileSize())
	require.Equal(t, uint64(23), fs.IndexFileSize())
}

func TestFileState_RegisterOldThenRetire(t *testing.T) {
	fs := New()
	_, err := fs.InsertNew(record.FileLocation{Start: 0, KLen: 3, VLen: 5}, 20)
	require.NoError(t, err)

	require.NoError(t, fs.RegisterOld(0, 8))
	require.Equal(t, uint64(8), fs.OldSum())
	require.Equal(t, uint64(1), fs.OldCount())
	require.True(t, fs.IsAllOld())
	require.InDelta(t, 1.0, fs.GCRatio(), 0.0001)

	freed, err := fs.RetireOld(0, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(8), freed)
	require.Equal(t, uint64(0), fs.DataFileSize())
	require.Equal(t, uint64(0), fs.OldSum())
	require.Equal(t, uint64(0), fs.OldCount())
	_, ok := fs.DataStateAt(0)
	require.False(t, ok)
}

func TestFileState_RegisterOldRejectsUnknownOffset(t *testing.T) {
	fs := New()
	err := fs.RegisterOld(99, 8)
	require.Error(t, err)
}

func TestFileState_RegisterOldRejectsDoubleMark(t *testing.T) {
	fs := New()
	_, err := fs.InsertNew(record.FileLocation{Start: 0, KLen: 1, VLen: 1}, 10)
	require.NoError(t, err)
	require.NoError(t, fs.RegisterOld(0, 2))
	err = fs.RegisterOld(0, 2)
	require.Error(t, err)
}

func TestFileState_RetireOldUnderflowIsRejected(t *testing.T) {
	fs := New()
	_, err := fs.RetireOld(0, 100)
	require.Error(t, err)
}

func TestFileState_ReadersIncDec(t *testing.T) {
	fs := New()
	require.True(t, fs.NoReaders())
	require.NoError(t, fs.IncReaders())
	require.NoError(t, fs.IncReaders())
	require.Equal(t, uint64(2), fs.Readers())
	require.NoError(t, fs.DecReaders())
	require.NoError(t, fs.DecReaders())
	require.True(t, fs.NoReaders())
}

func TestFileState_DecReadersUnderflowIsRejected(t *testing.T) {
	fs := New()
	err := fs.DecReaders()
	require.Error(t, err)
}

func TestFileState_MoveMapRecordsAndResolves(t *testing.T) {
	fs := New()
	_, err := fs.InsertNew(record.FileLocation{Start: 10, KLen: 1, VLen: 1}, 10)
	require.NoError(t, err)

	fs.RecordMove(10, 500)
	_, ok := fs.DataStateAt(10)
	require.False(t, ok, "moved entry should be removed from the live data map")

	newStart, ok := fs.ResolveMove(10)
	require.True(t, ok)
	require.Equal(t, uint64(500), newStart)

	fs.ClearMove(10)
	_, ok = fs.ResolveMove(10)
	require.False(t, ok)
}

func TestFileState_IsAllOldFalseWhenCurEntriesRemain(t *testing.T) {
	fs := New()
	_, err := fs.InsertNew(record.FileLocation{Start: 0, KLen: 1, VLen: 1}, 10)
	require.NoError(t, err)
	_, err = fs.InsertNew(record.FileLocation{Start: 20, KLen: 1, VLen: 1}, 10)
	require.NoError(t, err)
	require.NoError(t, fs.RegisterOld(0, 2))
	require.False(t, fs.IsAllOld())
}

func TestShardMap_InsertNewMarksLive(t *testing.T) {
	sm := NewShardMap()
	e := sm.InsertNew(id.FileNum(1))
	require.True(t, e.State.IsLive())

	f, got, ok := sm.LiveFile()
	require.True(t, ok)
	require.Equal(t, id.FileNum(1), f)
	require.Same(t, e, got)
}

func TestShardMap_GetAndRemove(t *testing.T) {
	sm := NewShardMap()
	sm.InsertNew(id.FileNum(7))
	e, ok := sm.Get(id.FileNum(7))
	require.True(t, ok)
	require.NotNil(t, e)

	sm.Remove(id.FileNum(7))
	_, ok = sm.Get(id.FileNum(7))
	require.False(t, ok)
}

func TestShardMap_MustGetMissingReturnsError(t *testing.T) {
	sm := NewShardMap()
	_, err := sm.MustGet(id.FileNum(42))
	require.Error(t, err)
}

func TestShardMap_SizeAccounting(t *testing.T) {
	sm := NewShardMap()
	sm.GrowSize(100)
	sm.GrowSize(50)
	require.Equal(t, uint64(150), sm.Size())
	sm.ShrinkSize(40)
	require.Equal(t, uint64(110), sm.Size())
	sm.ShrinkSize(1000) // clamps at zero rather than underflowing
	require.Equal(t, uint64(0), sm.Size())
}

func TestShardMap_FileNumsAndLen(t *testing.T) {
	sm := NewShardMap()
	sm.InsertNew(id.FileNum(1))
	sm.InsertNew(id.FileNum(2))
	sm.InsertNew(id.FileNum(3))
	require.Equal(t, 3, sm.Len())
	require.ElementsMatch(t, []id.FileNum{1, 2, 3}, sm.FileNums())
}
