package initgcbot

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/config"
	"github.com/dreamware/ozonedb/internal/filestate"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/record"
	"github.com/dreamware/ozonedb/internal/schemes"
	"github.com/dreamware/ozonedb/internal/zonedir"
)

func TestRunGC_RelocatesCurEntriesAndRetiresOldFile(t *testing.T) {
	zoneDir := t.TempDir()
	set := schemes.Defaults()

	var off uint64
	locA := writeEntry(t, zoneDir, id.FileNum(1), &off, []byte("a"), []byte("v1"), record.Meta{Timestamp: 1}, set)
	locB := writeEntry(t, zoneDir, id.FileNum(1), &off, []byte("b"), []byte("v2"), record.Meta{Timestamp: 1}, set)

	shards := filestate.NewShardMap()
	oldEntry := shards.Adopt(id.FileNum(1), filestate.New())
	oldEntry.Lock()
	_, err := oldEntry.State.InsertNew(locA, 0)
	require.NoError(t, err)
	_, err = oldEntry.State.InsertNew(locB, 0)
	require.NoError(t, err)
	oldEntry.Unlock()

	cacheAddr := comm.WorkerAddress(0, id.KindCache, 0)
	cacheInbox := make(chan comm.Message, 4)
	fileBotAddr := comm.WorkerAddress(0, id.KindFile, 0)
	fileBotInbox := make(chan comm.Message, 4)
	table := comm.NewBuilder().
		Register(cacheAddr, cacheInbox).
		Register(fileBotAddr, fileBotInbox).
		Build()

	cfg := config.Default()
	bot := New(id.NewWorkerID(id.KindInitGc, 0, 0), shards, cfg, func(string) comm.Address { return cacheAddr }, table)

	done := make(chan struct{})
	go func() {
		defer close(done)
		msg := <-cacheInbox
		req, ok := msg.(comm.GcCacheUpdateRequest)
		if !ok {
			t.Error("expected GcCacheUpdateRequest")
			return
		}
		require.Len(t, req.Pairs, 2)
		req.Responder.Reply(comm.GcCacheUpdateReply{OldLocations: map[string]record.FileLocation{"a": locA, "b": locB}})
	}()

	bot.runGC(context.Background(), comm.RunGC{ZoneDir: zoneDir, FileNum: id.FileNum(1), FileBotAddr: fileBotAddr})
	<-done

	newEntry, ok := shards.Get(id.FileNum(2))
	require.True(t, ok, "GC rewrite should adopt a new file number")
	newEntry.RLock()
	_, aKnown := newEntry.State.DataStateAt(0)
	live := newEntry.State.IsLive()
	newEntry.RUnlock()
	require.True(t, aKnown)
	require.False(t, live, "a freshly rewritten file is not the append target")

	_, stillTracked := shards.Get(id.FileNum(1))
	require.False(t, stillTracked, "fully retired old file is dropped from the shard map")
	_, err = os.Stat(zonedir.DataPath(zoneDir, id.FileNum(1)))
	require.True(t, os.IsNotExist(err), "old data file should be removed once fully retired")

	select {
	case msg := <-fileBotInbox:
		complete, ok := msg.(comm.GCComplete)
		require.True(t, ok)
		require.Equal(t, id.FileNum(1), complete.FileNum)
		require.Equal(t, id.FileNum(2), complete.NewFile)
	default:
		t.Fatal("expected a GCComplete notification to the requesting FileBot")
	}
}

func TestRunGC_SkipsAlreadyOldEntries(t *testing.T) {
	zoneDir := t.TempDir()
	set := schemes.Defaults()

	var off uint64
	locA := writeEntry(t, zoneDir, id.FileNum(1), &off, []byte("a"), []byte("v1"), record.Meta{Timestamp: 1}, set)
	locB := writeEntry(t, zoneDir, id.FileNum(1), &off, []byte("b"), []byte("v2"), record.Meta{Timestamp: 2}, set)

	shards := filestate.NewShardMap()
	oldEntry := shards.Adopt(id.FileNum(1), filestate.New())
	oldEntry.Lock()
	_, err := oldEntry.State.InsertNew(locA, 0)
	require.NoError(t, err)
	_, err = oldEntry.State.InsertNew(locB, 0)
	require.NoError(t, err)
	require.NoError(t, oldEntry.State.RegisterOld(locA.Start, uint64(locA.KLen)+uint64(locA.VLen)))
	oldEntry.Unlock()

	cacheAddr := comm.WorkerAddress(0, id.KindCache, 0)
	cacheInbox := make(chan comm.Message, 4)
	fileBotAddr := comm.WorkerAddress(0, id.KindFile, 0)
	fileBotInbox := make(chan comm.Message, 4)
	table := comm.NewBuilder().
		Register(cacheAddr, cacheInbox).
		Register(fileBotAddr, fileBotInbox).
		Build()

	cfg := config.Default()
	bot := New(id.NewWorkerID(id.KindInitGc, 0, 0), shards, cfg, func(string) comm.Address { return cacheAddr }, table)

	done := make(chan struct{})
	go func() {
		defer close(done)
		msg := <-cacheInbox
		req, ok := msg.(comm.GcCacheUpdateRequest)
		if !ok {
			t.Error("expected GcCacheUpdateRequest")
			return
		}
		require.Len(t, req.Pairs, 1, "only the Cur entry should have been relocated")
		req.Responder.Reply(comm.GcCacheUpdateReply{OldLocations: map[string]record.FileLocation{"b": locB}})
	}()

	bot.runGC(context.Background(), comm.RunGC{ZoneDir: zoneDir, FileNum: id.FileNum(1), FileBotAddr: fileBotAddr})
	<-done

	oldEntry.RLock()
	_, aStillKnown := oldEntry.State.DataStateAt(locA.Start)
	oldEntry.RUnlock()
	require.True(t, aStillKnown, "the already-old entry is left in place, not relocated")
}
