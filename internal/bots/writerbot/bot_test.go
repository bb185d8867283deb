package writerbot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/record"
	"github.com/dreamware/ozonedb/internal/schemes"
)

func TestBot_WriteForwardsInsertAndReportsResult(t *testing.T) {
	state, _ := newTestState(t, 1<<20)
	cacheAddr := comm.WorkerAddress(0, id.KindCache, 0)
	cacheInbox := make(chan comm.Message, 8)
	table := comm.NewBuilder().Register(cacheAddr, cacheInbox).Build()

	bot := New(id.NewWorkerID(id.KindWriter, 0, 0), comm.WorkerAddress(0, id.KindWriter, 0), state, table)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bot.Run(ctx)

	writeResp := comm.NewResponder[comm.WriteResult]()
	bot.Inbox <- comm.Write{
		Key:       []byte("k1"),
		Value:     []byte("v1"),
		Meta:      record.Meta{Timestamp: 1},
		Schemes:   schemes.Defaults(),
		OzoneKey:  "k1",
		CacheAddr: cacheAddr,
		Responder: writeResp,
	}

	var insert comm.Insert
	select {
	case msg := <-cacheInbox:
		var ok bool
		insert, ok = msg.(comm.Insert)
		require.True(t, ok)
		insert.Responder.Reply(comm.InsertReply{Existed: false})
	case <-time.After(time.Second):
		t.Fatal("expected an Insert forwarded to CacheBot")
	}
	require.Equal(t, []byte("v1"), insert.CachedValue)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	res, err := writeResp.Wait(waitCtx)
	require.NoError(t, err)
	require.False(t, res.Existed)
	require.Equal(t, id.FileNum(1), res.Loc.File)
}

func TestBot_WriteOmitsCachedValueAboveThreshold(t *testing.T) {
	state, _ := newTestState(t, 1<<20)
	cacheAddr := comm.WorkerAddress(0, id.KindCache, 0)
	cacheInbox := make(chan comm.Message, 8)
	table := comm.NewBuilder().Register(cacheAddr, cacheInbox).Build()

	bot := New(id.NewWorkerID(id.KindWriter, 0, 0), comm.WorkerAddress(0, id.KindWriter, 0), state, table)
	bot.CacheInsertThreshold = 4

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bot.Run(ctx)

	writeResp := comm.NewResponder[comm.WriteResult]()
	bot.Inbox <- comm.Write{
		Key:       []byte("k1"),
		Value:     []byte("way-too-long-for-the-threshold"),
		Meta:      record.Meta{},
		Schemes:   schemes.Defaults(),
		OzoneKey:  "k1",
		CacheAddr: cacheAddr,
		Responder: writeResp,
	}

	select {
	case msg := <-cacheInbox:
		insert := msg.(comm.Insert)
		require.Nil(t, insert.CachedValue, "oversize values are indexed location-only")
		insert.Responder.Reply(comm.InsertReply{})
	case <-time.After(time.Second):
		t.Fatal("expected an Insert forwarded to CacheBot")
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	_, err := writeResp.Wait(waitCtx)
	require.NoError(t, err)
}

func TestBot_WriteBlocksOnFullCacheBotInboxInsteadOfDropping(t *testing.T) {
	state, _ := newTestState(t, 1<<20)
	cacheAddr := comm.WorkerAddress(0, id.KindCache, 0)
	cacheInbox := make(chan comm.Message, 1)
	cacheInbox <- comm.ClearCache{} // saturate the inbox before the bot ever forwards to it
	table := comm.NewBuilder().Register(cacheAddr, cacheInbox).Build()

	bot := New(id.NewWorkerID(id.KindWriter, 0, 0), comm.WorkerAddress(0, id.KindWriter, 0), state, table)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bot.Run(ctx)

	writeResp := comm.NewResponder[comm.WriteResult]()
	bot.Inbox <- comm.Write{
		Key:       []byte("k1"),
		Value:     []byte("v1"),
		Meta:      record.Meta{},
		Schemes:   schemes.Defaults(),
		OzoneKey:  "k1",
		CacheAddr: cacheAddr,
		Responder: writeResp,
	}

	select {
	case msg := <-cacheInbox:
		_, ok := msg.(comm.ClearCache)
		require.True(t, ok, "expected to drain the pre-filled sentinel first")
	case <-time.After(time.Second):
		t.Fatal("expected to drain the sentinel message")
	}

	select {
	case msg := <-cacheInbox:
		insert, ok := msg.(comm.Insert)
		require.True(t, ok, "insert should arrive once the inbox has room, not be dropped")
		insert.Responder.Reply(comm.InsertReply{})
	case <-time.After(2 * time.Second):
		t.Fatal("insert forward was dropped instead of blocking for delivery")
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	res, err := writeResp.Wait(waitCtx)
	require.NoError(t, err)
	require.NoError(t, res.Err)
}
