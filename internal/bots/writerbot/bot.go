package writerbot

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/obslog"
	"github.com/dreamware/ozonedb/internal/ozerr"
)

// DefaultCacheInsertThreshold bounds how large a value may be and still
// ride along with the Insert message to its CacheBot (§4.2 step 4);
// larger values are stored location-only and fetched back through
// ReaderBot on a cache miss.
const DefaultCacheInsertThreshold = 64 * 1024

// Bot is one WriterBot instance. Several may share the same *State
// within a zone (the mutex in State is what gives them exclusive access
// to the append handle one at a time).
type Bot struct {
	ID    id.OzoneBotID
	Inbox chan comm.Message
	State *State
	Addr  comm.Address

	CacheInsertThreshold int

	table *comm.ChannelTable
	log   zerolog.Logger
}

// New constructs a WriterBot bound to a shared append State and an
// initial channel table.
func New(botID id.OzoneBotID, addr comm.Address, state *State, table *comm.ChannelTable) *Bot {
	return &Bot{
		ID:                   botID,
		Inbox:                make(chan comm.Message, 64),
		State:                state,
		Addr:                 addr,
		CacheInsertThreshold: DefaultCacheInsertThreshold,
		table:                table,
		log:                  obslog.New("writerbot").With().Str("bot", botID.String()).Logger(),
	}
}

// Run drains the bot's inbox until a Shutdown message arrives.
func (b *Bot) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.Inbox:
			switch m := msg.(type) {
			case comm.Write:
				b.handleWrite(ctx, m)
			case comm.TopologyUpdate:
				b.table = m.Table
			case comm.Shutdown:
				if m.Ack != nil {
					m.Ack.Reply(struct{}{})
				}
				return
			default:
				b.log.Warn().Msgf("writerbot received unexpected message type %T", msg)
			}
		}
	}
}

func (b *Bot) handleWrite(ctx context.Context, m comm.Write) {
	set := m.Schemes
	res, err := b.State.Append(m.Key, m.Value, m.Meta, set)
	if err != nil {
		if m.Responder != nil {
			m.Responder.Reply(comm.WriteResult{Err: err})
		}
		b.log.Error().Err(err).Msg("append failed")
		return
	}

	cached := m.Value
	if len(cached) > b.CacheInsertThreshold {
		cached = nil
	}

	insertResp := comm.NewResponder[comm.InsertReply]()
	insert := comm.Insert{
		OzoneKey:      m.OzoneKey,
		CachedValue:   cached,
		HasChunkIndex: m.HasChunkIndex,
		ChunkIndex:    m.ChunkIndex,
		Floc:          res.Loc,
		ILen:          res.ILen,
		Meta:          m.Meta,
		Responder:     insertResp,
	}

	var existed bool
	ch, ok := b.table.Lookup(m.CacheAddr)
	if !ok {
		err := ozerr.Newf([]ozerr.Kind{ozerr.Missing, ozerr.Bug}, "no cachebot registered at %+v", m.CacheAddr)
		b.log.Error().Err(err).Msg("cannot index freshly written entry")
		if m.Responder != nil {
			m.Responder.Reply(comm.WriteResult{Err: err})
		}
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, cacheSendTimeout)
	sendErr := comm.SendBlocking(sendCtx, ch, insert)
	cancel()
	if sendErr != nil {
		// The append already succeeded, but a key the cache/FileBot never
		// learns about is as good as lost to every future Get, so this is
		// reported back to the caller rather than degraded silently.
		b.log.Error().Err(sendErr).Msg("cachebot inbox still full after blocking send, insert not delivered")
		if m.Responder != nil {
			m.Responder.Reply(comm.WriteResult{Err: sendErr})
		}
		return
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, cacheWaitTimeout)
	reply, err := insertResp.Wait(waitCtx)
	waitCancel()
	if err != nil {
		b.log.Warn().Err(err).Msg("timed out waiting for cachebot insert acknowledgement")
	} else {
		existed = reply.Existed
	}

	if m.Responder != nil {
		m.Responder.Reply(comm.WriteResult{Loc: res.Loc, ILen: res.ILen, Existed: existed})
	}
}

// cacheSendTimeout bounds how long a WriterBot blocks delivering an
// Insert to a saturated CacheBot inbox before giving up on this write
// entirely (§5's "senders block on full").
const cacheSendTimeout = 5 * time.Second

// cacheWaitTimeout bounds how long a WriterBot waits on a CacheBot's
// InsertReply before giving up on reporting an accurate Existed flag —
// the Insert has already been delivered by this point, so a timeout
// here degrades only the returned existed/chunks-written metadata, not
// durability.
const cacheWaitTimeout = 5 * time.Second

// SetTable installs t directly, used by the Supervisor during initial
// wiring before any Run loop has started (so there is no TopologyUpdate
// message yet for the bot to observe). After Run starts, topology
// changes flow through the TopologyUpdate message instead.
func (b *Bot) SetTable(t *comm.ChannelTable) { b.table = t }
