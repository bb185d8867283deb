package cachebot

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/dcache"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/obslog"
	"github.com/dreamware/ozonedb/internal/record"
)

// forwardTimeout bounds how long a CacheBot blocks delivering a
// notification to a saturated peer inbox before giving up (§5's
// "senders block on full").
const forwardTimeout = 5 * time.Second

// FileBotResolver maps a file number to the address of the FileBot
// whose shard owns it. Constructed by the Supervisor (buildZone) from the
// zone's configured FileBot pool size (file number mod pool size).
type FileBotResolver func(id.FileNum) comm.Address

// Bot is one CacheBot instance, owning one shard of the keyspace.
type Bot struct {
	ID    id.OzoneBotID
	Inbox chan comm.Message
	Cache *dcache.Cache

	resolveFileBot FileBotResolver
	table          *comm.ChannelTable
	log            zerolog.Logger
}

// New constructs a CacheBot bound to a fresh Cache of the given size
// limit.
func New(botID id.OzoneBotID, cacheLimit uint64, resolve FileBotResolver, table *comm.ChannelTable) *Bot {
	return &Bot{
		ID:             botID,
		Inbox:          make(chan comm.Message, 64),
		Cache:          dcache.New(cacheLimit),
		resolveFileBot: resolve,
		table:          table,
		log:            obslog.New("cachebot").With().Str("bot", botID.String()).Logger(),
	}
}

// Run drains the bot's inbox until Shutdown.
func (b *Bot) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.Inbox:
			switch m := msg.(type) {
			case comm.Insert:
				b.handleInsert(ctx, m)
			case comm.ReadCache:
				b.handleReadCache(ctx, m)
			case comm.ClearCache:
				b.Cache.Clear()
			case comm.SetCacheSizeLimit:
				b.Cache.SetLimit(m.Limit)
			case comm.DumpCacheRequest:
				if m.Responder != nil {
					m.Responder.Reply(b.Cache.Dump())
				}
			case comm.GcCacheUpdateRequest:
				b.handleGCUpdate(m)
			case comm.SeedLocation:
				b.Cache.PutLocation(m.OzoneKey, m.Floc, m.Meta)
			case comm.TopologyUpdate:
				b.table = m.Table
			case comm.Shutdown:
				if m.Ack != nil {
					m.Ack.Reply(struct{}{})
				}
				return
			default:
				b.log.Warn().Msgf("cachebot received unexpected message type %T", msg)
			}
		}
	}
}

func (b *Bot) handleInsert(ctx context.Context, m comm.Insert) {
	var prev dcache.Entry
	var existed bool
	if m.CachedValue != nil {
		prev, existed = b.Cache.PutValue(m.OzoneKey, m.CachedValue, m.Floc, m.Meta)
	} else {
		prev, existed = b.Cache.PutLocation(m.OzoneKey, m.Floc, m.Meta)
	}

	if m.Responder != nil {
		m.Responder.Reply(comm.InsertReply{
			Existed:       existed,
			HasChunkIndex: m.HasChunkIndex,
			ChunkIndex:    m.ChunkIndex,
		})
	}

	update := comm.UpdateData{
		NewFloc: m.Floc,
		ILen:    m.ILen,
		From:    b.ID,
	}
	if existed {
		oldLoc := prev.Loc
		update.OldFloc = &oldLoc
	}

	addr := b.resolveFileBot(m.Floc.File)
	if ch, ok := b.table.Lookup(addr); ok {
		sendCtx, cancel := context.WithTimeout(ctx, forwardTimeout)
		if err := comm.SendBlocking(sendCtx, ch, update); err != nil {
			b.log.Error().Err(err).Msg("filebot inbox still full after blocking send, update-data not delivered")
		}
		cancel()
	}
}

func (b *Bot) handleReadCache(ctx context.Context, m comm.ReadCache) {
	e, ok := b.Cache.Get(m.OzoneKey)
	if !ok {
		if m.Responder != nil {
			m.Responder.Reply(comm.ReadResult{Kind: comm.ReadNone})
		}
		return
	}

	switch e.Kind {
	case dcache.KindValue:
		if m.Responder != nil {
			m.Responder.Reply(comm.ReadResult{Kind: comm.ReadValue, Value: e.Value, Meta: e.Meta})
		}
	case dcache.KindTombstone:
		if m.Responder != nil {
			m.Responder.Reply(comm.ReadResult{Kind: comm.ReadDeleted, Meta: e.Meta})
		}
	case dcache.KindLocation:
		addr := b.resolveFileBot(e.Loc.File)
		ch, ok := b.table.Lookup(addr)
		if !ok {
			if m.Responder != nil {
				m.Responder.Reply(comm.ReadResult{Kind: comm.ReadNone, Err: missingFileBotErr(e.Loc.File)})
			}
			return
		}
		req := comm.ReadFileRequest{
			FileNum:   e.Loc.File,
			Loc:       record.MetaLocation{Loc: e.Loc, Meta: e.Meta},
			Responder: m.Responder,
		}
		sendCtx, cancel := context.WithTimeout(ctx, forwardTimeout)
		err := comm.SendBlocking(sendCtx, ch, req)
		cancel()
		if err != nil {
			b.log.Error().Err(err).Msg("filebot inbox still full after blocking send, read request not delivered")
			if m.Responder != nil {
				m.Responder.Reply(comm.ReadResult{Kind: comm.ReadNone, Err: fileBotBusyErr(e.Loc.File)})
			}
		}
	}
}

func (b *Bot) handleGCUpdate(m comm.GcCacheUpdateRequest) {
	replaced := b.Cache.ApplyGCUpdate(m.Pairs)
	if m.Responder != nil {
		m.Responder.Reply(comm.GcCacheUpdateReply{OldLocations: replaced})
	}
}

// SetTable installs t directly, used by the Supervisor during initial
// wiring before any Run loop has started (so there is no TopologyUpdate
// message yet for the bot to observe). After Run starts, topology
// changes flow through the TopologyUpdate message instead.
func (b *Bot) SetTable(t *comm.ChannelTable) { b.table = t }
