package cachebot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/record"
)

func TestBot_InsertThenReadCacheHit(t *testing.T) {
	fileBotAddr := comm.WorkerAddress(0, id.KindFile, 0)
	fileBotInbox := make(chan comm.Message, 8)
	table := comm.NewBuilder().Register(fileBotAddr, fileBotInbox).Build()

	resolve := func(id.FileNum) comm.Address { return fileBotAddr }
	bot := New(id.NewWorkerID(id.KindCache, 0, 0), 1<<20, resolve, table)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bot.Run(ctx)

	floc := record.FileLocation{File: id.FileNum(1), Start: 0, KLen: 1, VLen: 5}
	insertResp := comm.NewResponder[comm.InsertReply]()
	bot.Inbox <- comm.Insert{
		OzoneKey:    "k1",
		CachedValue: []byte("value"),
		Floc:        floc,
		Meta:        record.Meta{Timestamp: 1},
		Responder:   insertResp,
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	reply, err := insertResp.Wait(waitCtx)
	require.NoError(t, err)
	require.False(t, reply.Existed)

	select {
	case msg := <-fileBotInbox:
		ud, ok := msg.(comm.UpdateData)
		require.True(t, ok)
		require.Equal(t, floc, ud.NewFloc)
		require.Nil(t, ud.OldFloc)
	case <-time.After(time.Second):
		t.Fatal("expected UpdateData forwarded to FileBot")
	}

	readResp := comm.NewResponder[comm.ReadResult]()
	bot.Inbox <- comm.ReadCache{OzoneKey: "k1", Responder: readResp}
	result, err := readResp.Wait(waitCtx)
	require.NoError(t, err)
	require.Equal(t, comm.ReadValue, result.Kind)
	require.Equal(t, []byte("value"), result.Value)
}

func TestBot_InsertTwiceReportsExistedAndOldLocation(t *testing.T) {
	fileBotAddr := comm.WorkerAddress(0, id.KindFile, 0)
	fileBotInbox := make(chan comm.Message, 8)
	table := comm.NewBuilder().Register(fileBotAddr, fileBotInbox).Build()
	resolve := func(id.FileNum) comm.Address { return fileBotAddr }
	bot := New(id.NewWorkerID(id.KindCache, 0, 0), 1<<20, resolve, table)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bot.Run(ctx)

	firstLoc := record.FileLocation{File: id.FileNum(1), Start: 0, KLen: 1, VLen: 1}
	bot.Inbox <- comm.Insert{OzoneKey: "k", CachedValue: []byte("a"), Floc: firstLoc, Responder: comm.NewResponder[comm.InsertReply]()}
	<-fileBotInbox // drain first UpdateData

	secondLoc := record.FileLocation{File: id.FileNum(1), Start: 50, KLen: 1, VLen: 1}
	resp := comm.NewResponder[comm.InsertReply]()
	bot.Inbox <- comm.Insert{OzoneKey: "k", CachedValue: []byte("b"), Floc: secondLoc, Responder: resp}

	waitCtx, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	reply, err := resp.Wait(waitCtx)
	require.NoError(t, err)
	require.True(t, reply.Existed)

	msg := <-fileBotInbox
	ud := msg.(comm.UpdateData)
	require.NotNil(t, ud.OldFloc)
	require.Equal(t, firstLoc, *ud.OldFloc)
}

func TestBot_InsertBlocksOnFullFileBotInboxInsteadOfDropping(t *testing.T) {
	fileBotAddr := comm.WorkerAddress(0, id.KindFile, 0)
	fileBotInbox := make(chan comm.Message, 1)
	fileBotInbox <- comm.ClearCache{} // saturate the inbox before the bot ever forwards to it
	table := comm.NewBuilder().Register(fileBotAddr, fileBotInbox).Build()

	resolve := func(id.FileNum) comm.Address { return fileBotAddr }
	bot := New(id.NewWorkerID(id.KindCache, 0, 0), 1<<20, resolve, table)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bot.Run(ctx)

	floc := record.FileLocation{File: id.FileNum(1), Start: 0, KLen: 1, VLen: 5}
	insertResp := comm.NewResponder[comm.InsertReply]()
	bot.Inbox <- comm.Insert{OzoneKey: "k1", CachedValue: []byte("value"), Floc: floc, Responder: insertResp}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	_, err := insertResp.Wait(waitCtx)
	require.NoError(t, err, "Insert is acknowledged even while the forward to FileBot is still blocked")

	select {
	case msg := <-fileBotInbox:
		_, ok := msg.(comm.ClearCache)
		require.True(t, ok, "expected to drain the pre-filled sentinel first")
	case <-time.After(time.Second):
		t.Fatal("expected to drain the sentinel message")
	}

	select {
	case msg := <-fileBotInbox:
		ud, ok := msg.(comm.UpdateData)
		require.True(t, ok, "update-data should arrive once the inbox has room, not be dropped")
		require.Equal(t, floc, ud.NewFloc)
	case <-time.After(2 * time.Second):
		t.Fatal("update-data forward was dropped instead of blocking for delivery")
	}
}

func TestBot_ReadCacheMissReturnsNone(t *testing.T) {
	table := comm.NewBuilder().Build()
	resolve := func(id.FileNum) comm.Address { return comm.Address{} }
	bot := New(id.NewWorkerID(id.KindCache, 0, 0), 1<<20, resolve, table)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bot.Run(ctx)

	resp := comm.NewResponder[comm.ReadResult]()
	bot.Inbox <- comm.ReadCache{OzoneKey: "nope", Responder: resp}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	result, err := resp.Wait(waitCtx)
	require.NoError(t, err)
	require.Equal(t, comm.ReadNone, result.Kind)
}
