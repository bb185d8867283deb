package filebot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/filestate"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/metrics"
	"github.com/dreamware/ozonedb/internal/obslog"
	"github.com/dreamware/ozonedb/internal/record"
)

// forwardTimeout bounds how long a FileBot blocks delivering a
// notification to a saturated peer inbox before giving up (§5's
// "senders block on full").
const forwardTimeout = 5 * time.Second

// FileBotResolver maps a file number to the address of the FileBot
// whose shard owns it, for forwarding RegisterOld/ReadFileRequest
// across shard boundaries.
type FileBotResolver func(id.FileNum) comm.Address

// ReaderBotResolver picks a ReaderBot to perform the actual file I/O
// for a granted read.
type ReaderBotResolver func(id.FileNum) comm.Address

// GCBotResolver picks an InitGcBot to run the next GC rewrite.
type GCBotResolver func() comm.Address

// Bot is one FileBot instance: it owns a shard of filestate.FileState
// entries, grants or defers read permission against them, and decides
// when a file has crossed the GC threshold of §4.4.1.
type Bot struct {
	ID      id.OzoneBotID
	Inbox   chan comm.Message
	Addr    comm.Address
	Shards  *filestate.ShardMap
	ZoneDir string

	GCThresholdRatio float64

	resolveFileBot   FileBotResolver
	resolveReaderBot ReaderBotResolver
	resolveGCBot     GCBotResolver
	table            *comm.ChannelTable

	// pending holds ReadFileRequests that arrived while a file's
	// gc_active flag was set; answered post-GC once GCComplete arrives.
	pending map[id.FileNum][]comm.ReadFileRequest
	// awaitingDrain marks a file whose GC was triggered but could not be
	// dispatched immediately because readers had not yet drained to
	// zero; ReadFinished checks this to know when to dispatch.
	awaitingDrain map[id.FileNum]bool

	log zerolog.Logger
}

// New constructs a FileBot over shards, a shared zone directory, and
// the resolvers it needs to forward work to its peers.
func New(botID id.OzoneBotID, addr comm.Address, zoneDir string, shards *filestate.ShardMap, gcThresholdRatio float64,
	resolveFileBot FileBotResolver, resolveReaderBot ReaderBotResolver, resolveGCBot GCBotResolver, table *comm.ChannelTable) *Bot {
	return &Bot{
		ID:               botID,
		Inbox:            make(chan comm.Message, 64),
		Addr:             addr,
		Shards:           shards,
		ZoneDir:          zoneDir,
		GCThresholdRatio: gcThresholdRatio,
		resolveFileBot:   resolveFileBot,
		resolveReaderBot: resolveReaderBot,
		resolveGCBot:     resolveGCBot,
		table:            table,
		pending:          make(map[id.FileNum][]comm.ReadFileRequest),
		awaitingDrain:    make(map[id.FileNum]bool),
		log:              obslog.New("filebot").With().Str("bot", botID.String()).Logger(),
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
			case comm.UpdateData:
				b.handleUpdateData(ctx, m)
			case comm.RegisterOld:
				b.registerOld(ctx, m.Floc)
			case comm.ReadFileRequest:
				b.handleReadFileRequest(ctx, m)
			case comm.ReadFinished:
				b.handleReadFinished(ctx, m)
			case comm.GCComplete:
				b.handleGCComplete(ctx, m)
			case comm.TopologyUpdate:
				b.table = m.Table
			case comm.Shutdown:
				if m.Ack != nil {
					m.Ack.Reply(struct{}{})
				}
				return
			default:
				b.log.Warn().Msgf("filebot received unexpected message type %T", msg)
			}
		}
	}
}

func (b *Bot) handleUpdateData(ctx context.Context, m comm.UpdateData) {
	entry, err := b.Shards.MustGet(m.NewFloc.File)
	if err != nil {
		b.log.Error().Err(err).Msg("update-data for unknown file")
		return
	}
	entry.Lock()
	added, err := entry.State.InsertNew(m.NewFloc, m.ILen)
	entry.Unlock()
	if err != nil {
		b.log.Error().Err(err).Msg("recording new entry failed")
		return
	}
	b.Shards.GrowSize(added)

	if m.OldFloc != nil {
		b.registerOld(ctx, *m.OldFloc)
	}
	b.maybeTriggerGC(ctx, m.NewFloc.File)
}

// registerOld flags floc as superseded, forwarding to the FileBot that
// owns floc.File if it belongs to a different shard than this one.
func (b *Bot) registerOld(ctx context.Context, floc record.FileLocation) {
	entry, ok := b.Shards.Get(floc.File)
	if !ok {
		addr := b.resolveFileBot(floc.File)
		ch, ok2 := b.table.Lookup(addr)
		if !ok2 {
			b.log.Error().Msgf("no FileBot registered for file %s to forward register-old", floc.File)
			return
		}
		sendCtx, cancel := context.WithTimeout(ctx, forwardTimeout)
		err := comm.SendBlocking(sendCtx, ch, comm.RegisterOld{Floc: floc, From: b.ID})
		cancel()
		if err != nil {
			b.log.Error().Err(err).Msg("peer filebot inbox still full after blocking send, register-old not delivered")
		}
		return
	}

	length := uint64(floc.KLen) + uint64(floc.VLen)
	entry.Lock()
	err := entry.State.RegisterOld(floc.Start, length)
	entry.Unlock()
	if err != nil {
		b.log.Error().Err(err).Msg("register-old failed")
		return
	}
	b.maybeTriggerGC(ctx, floc.File)
}

// maybeTriggerGC checks fnum's old-byte ratio and all-old condition
// against the configured threshold (§4.4.1) and, if crossed, marks
// gc_active and dispatches the rewrite — immediately if no readers are
// in flight, or once ReadFinished observes the drain otherwise.
func (b *Bot) maybeTriggerGC(ctx context.Context, fnum id.FileNum) {
	entry, ok := b.Shards.Get(fnum)
	if !ok {
		return
	}
	entry.Lock()
	live := entry.State.IsLive()
	already := entry.State.GCActive()
	crossed := entry.State.GCRatio() >= b.GCThresholdRatio || entry.State.IsAllOld()
	needsGC := !live && !already && crossed
	if needsGC {
		entry.State.SetGCActive(true)
	}
	readers := entry.State.Readers()
	entry.Unlock()

	if !needsGC {
		return
	}
	if readers == 0 {
		b.dispatchGC(ctx, fnum)
		return
	}
	b.awaitingDrain[fnum] = true
}

func (b *Bot) dispatchGC(ctx context.Context, fnum id.FileNum) {
	addr := b.resolveGCBot()
	ch, ok := b.table.Lookup(addr)
	if !ok {
		b.log.Error().Msg("no InitGcBot registered to run GC")
		b.clearGCActive(fnum)
		return
	}
	msg := comm.RunGC{ZoneDir: b.ZoneDir, FileNum: fnum, FileBotAddr: b.Addr}
	sendCtx, cancel := context.WithTimeout(ctx, forwardTimeout)
	err := comm.SendBlocking(sendCtx, ch, msg)
	cancel()
	if err != nil {
		b.log.Error().Err(err).Msg("initgcbot inbox still full after blocking send, GC dispatch deferred")
		return
	}
	delete(b.awaitingDrain, fnum)
	metrics.GCRunsTotal.WithLabelValues(zoneLabel(b.ID)).Inc()
}

func (b *Bot) clearGCActive(fnum id.FileNum) {
	entry, ok := b.Shards.Get(fnum)
	if !ok {
		return
	}
	entry.Lock()
	entry.State.SetGCActive(false)
	entry.Unlock()
	delete(b.awaitingDrain, fnum)
}

func (b *Bot) handleReadFileRequest(ctx context.Context, m comm.ReadFileRequest) {
	entry, err := b.Shards.MustGet(m.FileNum)
	if err != nil {
		if m.Responder != nil {
			m.Responder.Reply(comm.ReadResult{Kind: comm.ReadNone, Err: err})
		}
		return
	}

	entry.Lock()
	if entry.State.GCActive() {
		entry.Unlock()
		b.pending[m.FileNum] = append(b.pending[m.FileNum], m)
		return
	}
	incErr := entry.State.IncReaders()
	entry.Unlock()
	if incErr != nil {
		if m.Responder != nil {
			m.Responder.Reply(comm.ReadResult{Kind: comm.ReadNone, Err: incErr})
		}
		return
	}
	metrics.ReadersInFlight.WithLabelValues(zoneLabel(b.ID), m.FileNum.String()).Inc()

	addr := b.resolveReaderBot(m.FileNum)
	ch, ok := b.table.Lookup(addr)
	if !ok {
		b.releaseReader(entry, m.FileNum)
		if m.Responder != nil {
			m.Responder.Reply(comm.ReadResult{Kind: comm.ReadNone, Err: noReaderBotErr(m.FileNum)})
		}
		return
	}
	doRead := comm.DoRead{ZoneDir: b.ZoneDir, Loc: m.Loc, FileBotAddr: b.Addr, Responder: m.Responder}
	sendCtx, cancel := context.WithTimeout(ctx, forwardTimeout)
	sendErr := comm.SendBlocking(sendCtx, ch, doRead)
	cancel()
	if sendErr != nil {
		b.releaseReader(entry, m.FileNum)
		if m.Responder != nil {
			m.Responder.Reply(comm.ReadResult{Kind: comm.ReadNone, Err: readerBotBusyErr(m.FileNum)})
		}
	}
}

func (b *Bot) releaseReader(entry *filestate.Entry, fnum id.FileNum) {
	entry.Lock()
	_ = entry.State.DecReaders()
	entry.Unlock()
	metrics.ReadersInFlight.WithLabelValues(zoneLabel(b.ID), fnum.String()).Dec()
}

func (b *Bot) handleReadFinished(ctx context.Context, m comm.ReadFinished) {
	entry, ok := b.Shards.Get(m.FileNum)
	if !ok {
		return
	}
	entry.Lock()
	_ = entry.State.DecReaders()
	readersNow := entry.State.Readers()
	entry.Unlock()
	metrics.ReadersInFlight.WithLabelValues(zoneLabel(b.ID), m.FileNum.String()).Dec()

	if readersNow == 0 && b.awaitingDrain[m.FileNum] {
		b.dispatchGC(ctx, m.FileNum)
	}
}

func (b *Bot) handleGCComplete(ctx context.Context, m comm.GCComplete) {
	delete(b.awaitingDrain, m.FileNum)
	oldEntry, ok := b.Shards.Get(m.FileNum)
	if !ok {
		return
	}
	pending := b.pending[m.FileNum]
	delete(b.pending, m.FileNum)

	oldEntry.Lock()
	oldEntry.State.SetGCActive(false)
	oldEntry.Unlock()

	for _, req := range pending {
		b.redirectPostGC(ctx, req, m.FileNum, m.NewFile, oldEntry)
	}
}

// redirectPostGC answers a read that was queued during a GC transition,
// resolving where its entry was relocated to (or replying with a
// stale-location error if it was never copied — the entry was, itself,
// already superseded).
func (b *Bot) redirectPostGC(ctx context.Context, req comm.ReadFileRequest, oldFile, newFile id.FileNum, oldEntry *filestate.Entry) {
	oldEntry.RLock()
	newStart, moved := oldEntry.State.ResolveMove(req.Loc.Loc.Start)
	oldEntry.RUnlock()
	if !moved {
		if req.Responder != nil {
			req.Responder.Reply(comm.ReadResult{Kind: comm.ReadNone, PostGC: true, Err: staleLocationErr(oldFile, req.Loc.Loc.Start)})
		}
		return
	}

	newLoc := req.Loc
	newLoc.Loc.File = newFile
	newLoc.Loc.Start = newStart
	newReq := comm.ReadFileRequest{FileNum: newFile, Loc: newLoc, Responder: req.Responder}

	addr := b.resolveFileBot(newFile)
	ch, ok := b.table.Lookup(addr)
	if !ok {
		if req.Responder != nil {
			req.Responder.Reply(comm.ReadResult{Kind: comm.ReadNone, PostGC: true, Err: noFileBotErr(newFile)})
		}
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, forwardTimeout)
	err := comm.SendBlocking(sendCtx, ch, newReq)
	cancel()
	if err != nil {
		if req.Responder != nil {
			req.Responder.Reply(comm.ReadResult{Kind: comm.ReadNone, PostGC: true, Err: readerBotBusyErr(newFile)})
		}
	}
}

func zoneLabel(botID id.OzoneBotID) string {
	return fmt.Sprintf("%d", int(botID.Zone))
}

// SetTable installs t directly, used by the Supervisor during initial
// wiring before any Run loop has started (so there is no TopologyUpdate
// message yet for the bot to observe). After Run starts, topology
// changes flow through the TopologyUpdate message instead.
func (b *Bot) SetTable(t *comm.ChannelTable) { b.table = t }
