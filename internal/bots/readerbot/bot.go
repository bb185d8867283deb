package readerbot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/metrics"
	"github.com/dreamware/ozonedb/internal/obslog"
	"github.com/dreamware/ozonedb/internal/record"
	"github.com/dreamware/ozonedb/internal/schemes"
	"github.com/dreamware/ozonedb/internal/zonedir"
)

// notifyTimeout bounds how long a ReaderBot blocks delivering a
// ReadFinished notification to a saturated FileBot inbox before giving
// up (§5's "senders block on full").
const notifyTimeout = 5 * time.Second

// Bot is one ReaderBot instance. It holds no per-key state of its own —
// every DoRead carries everything needed to perform the read — only a
// bounded cache of open file handles.
type Bot struct {
	ID    id.OzoneBotID
	Inbox chan comm.Message

	registry *schemes.Registry
	handles  *handleCache
	table    *comm.ChannelTable
	log      zerolog.Logger
}

// New constructs a ReaderBot resolving stored schemes against registry.
func New(botID id.OzoneBotID, registry *schemes.Registry, table *comm.ChannelTable) *Bot {
	return &Bot{
		ID:       botID,
		Inbox:    make(chan comm.Message, 64),
		registry: registry,
		handles:  newHandleCache(DefaultHandleCacheSize),
		table:    table,
		log:      obslog.New("readerbot").With().Str("bot", botID.String()).Logger(),
	}
}

// Run drains the bot's inbox until Shutdown.
func (b *Bot) Run(ctx context.Context) {
	defer b.handles.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.Inbox:
			switch m := msg.(type) {
			case comm.DoRead:
				b.handleDoRead(ctx, m)
			case comm.TopologyUpdate:
				b.table = m.Table
			case comm.Shutdown:
				if m.Ack != nil {
					m.Ack.Reply(struct{}{})
				}
				return
			default:
				b.log.Warn().Msgf("readerbot received unexpected message type %T", msg)
			}
		}
	}
}

func (b *Bot) handleDoRead(ctx context.Context, m comm.DoRead) {
	result := b.doRead(m)
	if m.Responder != nil {
		m.Responder.Reply(result)
	}
	if ch, ok := b.table.Lookup(m.FileBotAddr); ok {
		sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		err := comm.SendBlocking(sendCtx, ch, comm.ReadFinished{FileNum: m.Loc.Loc.File})
		cancel()
		if err != nil {
			// A lost ReadFinished leaves this FileBot's reader count
			// permanently incremented, which can block that file's GC
			// forever — log loudly rather than as a routine warning.
			b.log.Error().Err(err).Msg("filebot inbox still full after blocking send, read-finished not delivered")
		}
	}
}

func (b *Bot) doRead(m comm.DoRead) comm.ReadResult {
	loc := m.Loc.Loc
	meta := m.Loc.Meta

	checksummer, err := b.registry.Checksummer(meta.ChecksumCode)
	if err != nil {
		return comm.ReadResult{Kind: comm.ReadNone, PostGC: m.PostGC, Err: err}
	}

	f, err := b.handles.open(zonedir.DataPath(m.ZoneDir, loc.File))
	if err != nil {
		return comm.ReadResult{Kind: comm.ReadNone, PostGC: m.PostGC, Err: err}
	}

	reclen := record.DataRecordLen(uint64(loc.KLen), uint64(loc.VLen), checksummer.Len())
	buf := make([]byte, reclen)
	if _, err := f.ReadAt(buf, int64(loc.Start)); err != nil {
		return comm.ReadResult{Kind: comm.ReadNone, PostGC: m.PostGC, Err: fmt.Errorf("reading stored record: %w", err)}
	}

	_, cipher, checksum, err := record.DecodeDataRecord(buf, checksummer.Len())
	if err != nil {
		return comm.ReadResult{Kind: comm.ReadNone, PostGC: m.PostGC, Err: err}
	}

	if !checksummer.Verify(cipher, checksum) {
		metrics.IntegrityFailuresTotal.WithLabelValues(fmt.Sprintf("%d", int(b.ID.Zone))).Inc()
		b.log.Error().Str("file", loc.File.String()).Msg("checksum mismatch on stored record")
		return comm.ReadResult{Kind: comm.ReadNone, PostGC: m.PostGC, Err: integrityErr(loc.File, loc.Start)}
	}

	enc, err := b.registry.Encrypter(meta.EncCode)
	if err != nil {
		return comm.ReadResult{Kind: comm.ReadNone, PostGC: m.PostGC, Err: err}
	}
	plain, err := enc.Decrypt(cipher)
	if err != nil {
		return comm.ReadResult{Kind: comm.ReadNone, PostGC: m.PostGC, Err: err}
	}

	if meta.Tombstone {
		return comm.ReadResult{Kind: comm.ReadDeleted, Meta: meta, PostGC: m.PostGC}
	}
	return comm.ReadResult{Kind: comm.ReadValue, Value: plain, Meta: meta, PostGC: m.PostGC}
}

// SetTable installs t directly, used by the Supervisor during initial
// wiring before any Run loop has started (so there is no TopologyUpdate
// message yet for the bot to observe). After Run starts, topology
// changes flow through the TopologyUpdate message instead.
func (b *Bot) SetTable(t *comm.ChannelTable) { b.table = t }
