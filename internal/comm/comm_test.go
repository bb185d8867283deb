package comm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/ozonedb/internal/id"
)

func TestResponder_ReplyThenWait(t *testing.T) {
	r := NewResponder[int]()
	r.Reply(42)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := r.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestResponder_WaitTimesOutWithoutReply(t *testing.T) {
	r := NewResponder[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Wait(ctx)
	require.Error(t, err)
}

func TestResponder_SecondReplyIsDropped(t *testing.T) {
	r := NewResponder[int]()
	r.Reply(1)
	r.Reply(2) // dropped: channel buffer already holds one value

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := r.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestChannelTable_RegisterAndLookup(t *testing.T) {
	inbox := make(chan Message, 1)
	addr := WorkerAddress(0, id.KindWriter, 0)

	table := NewBuilder().Register(addr, inbox).Build()

	got, ok := table.Lookup(addr)
	require.True(t, ok)
	require.Equal(t, inbox, got)
}

func TestChannelTable_MustLookupMissingIsError(t *testing.T) {
	table := NewBuilder().Build()
	_, err := table.MustLookup(SupervisorAddress())
	require.Error(t, err)
}

func TestChannelTable_WorkersOfKindFiltersByZoneAndKind(t *testing.T) {
	b := NewBuilder()
	b.Register(WorkerAddress(0, id.KindWriter, 0), make(chan Message, 1))
	b.Register(WorkerAddress(0, id.KindWriter, 1), make(chan Message, 1))
	b.Register(WorkerAddress(1, id.KindWriter, 0), make(chan Message, 1))
	b.Register(WorkerAddress(0, id.KindCache, 0), make(chan Message, 1))
	table := b.Build()

	zone0Writers := table.WorkersOfKind(0, id.KindWriter)
	require.Len(t, zone0Writers, 2)
}

func TestChannelTable_IsImmutableAfterBuild(t *testing.T) {
	addr := SupervisorAddress()
	inbox := make(chan Message, 1)
	b := NewBuilder().Register(addr, inbox)
	table := b.Build()

	b.Register(WorkerAddress(0, id.KindZone, 0), make(chan Message, 1))
	require.Equal(t, 1, table.Len(), "mutating the builder after Build must not affect the frozen table")
}
