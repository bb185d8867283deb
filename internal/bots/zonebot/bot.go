package zonebot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/ozonedb/internal/bots/initgcbot"
	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/config"
	"github.com/dreamware/ozonedb/internal/dcache"
	"github.com/dreamware/ozonedb/internal/filestate"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/metrics"
	"github.com/dreamware/ozonedb/internal/obslog"
)

// Bot is one ZoneBot instance. It does not itself serve Write/Read
// traffic — that is the worker pools' job — but it owns the zone's
// startup sequencing and periodic health reporting, and is the address
// a host query for zone state is routed to.
type Bot struct {
	ID      id.OzoneBotID
	Inbox   chan comm.Message
	ZoneIdx id.ZoneIndex
	ZoneDir string

	cfg *config.OzoneConfig

	// gcBots are held as concrete instances, not just addresses,
	// because the startup scan (Startup) calls ScanZone directly rather
	// than through a message: it must complete before any worker bot's
	// Run loop starts accepting Write/Read traffic, so there is no
	// inbox to send it to yet.
	gcBots []*initgcbot.Bot
	shards []*filestate.ShardMap
	caches []*dcache.Cache

	table *comm.ChannelTable
	log   zerolog.Logger
}

// New constructs a ZoneBot. shards and caches are the shared state
// owned by the zone's FileBot and CacheBot pools respectively — held
// here read-only, for sampling into periodic status reports.
func New(zoneIdx id.ZoneIndex, zoneDir string, cfg *config.OzoneConfig, gcBots []*initgcbot.Bot, shards []*filestate.ShardMap, caches []*dcache.Cache, table *comm.ChannelTable) *Bot {
	botID := id.NewZoneID(zoneIdx)
	return &Bot{
		ID:      botID,
		Inbox:   make(chan comm.Message, 16),
		ZoneIdx: zoneIdx,
		ZoneDir: zoneDir,
		cfg:     cfg,
		gcBots:  gcBots,
		shards:  shards,
		caches:  caches,
		table:   table,
		log:     obslog.New("zonebot").With().Str("bot", botID.String()).Logger(),
	}
}

// Startup runs a single paired InitGcBot's ScanZone synchronously, once,
// before the zone is handed to its worker pools. Every InitGcBot and
// FileBot in a zone shares the same filestate.ShardMap (§4.4/§4.6's
// per-entry locking is what lets a pool of bots operate on it
// concurrently at runtime), so only the first of the pool needs to run
// the scan; the rest exist purely to spread RunGC/read-I/O load, not to
// own disjoint state. Startup must complete before Run is started for
// any bot in this zone.
func (b *Bot) Startup(ctx context.Context) error {
	if len(b.gcBots) == 0 {
		return nil
	}
	if err := b.gcBots[0].ScanZone(ctx, b.ZoneDir); err != nil {
		return fmt.Errorf("zone %d startup scan failed: %w", int(b.ZoneIdx), err)
	}
	b.log.Info().Msgf("zone %d startup scan complete", int(b.ZoneIdx))
	return nil
}

// Run drains the bot's inbox and emits a periodic status report until
// Shutdown, per the cadence of cfg.ZoneStateUpdateInterval.
func (b *Bot) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.ZoneStateUpdateInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.reportStatus()
		case msg := <-b.Inbox:
			switch m := msg.(type) {
			case comm.ZoneStatusRequest:
				if m.Responder != nil {
					m.Responder.Reply(b.status())
				}
			case comm.TopologyUpdate:
				b.table = m.Table
			case comm.Shutdown:
				if m.Ack != nil {
					m.Ack.Reply(struct{}{})
				}
				return
			default:
				b.log.Warn().Msgf("zonebot received unexpected message type %T", msg)
			}
		}
	}
}

func (b *Bot) status() comm.ZoneStatus {
	st := comm.ZoneStatus{Zone: b.ZoneIdx}
	for _, shard := range b.shards {
		for _, fnum := range shard.FileNums() {
			entry, ok := shard.Get(fnum)
			if !ok {
				continue
			}
			entry.RLock()
			st.DataBytes += entry.State.DataFileSize()
			if entry.State.GCActive() {
				st.GCActiveFiles++
			}
			entry.RUnlock()
			st.FileCount++
		}
	}
	for _, c := range b.caches {
		st.CacheEntries += c.Len()
	}
	return st
}

func (b *Bot) reportStatus() {
	st := b.status()
	zone := fmt.Sprintf("%d", int(b.ZoneIdx))
	metrics.ZoneDataBytes.WithLabelValues(zone).Set(float64(st.DataBytes))
	metrics.ZoneFileCount.WithLabelValues(zone).Set(float64(st.FileCount))
	b.log.Debug().
		Uint64("data_bytes", st.DataBytes).
		Int("file_count", st.FileCount).
		Int("gc_active_files", st.GCActiveFiles).
		Int("cache_entries", st.CacheEntries).
		Msg("zone status")
}

// SetTable installs t directly, used by the Supervisor during initial
// wiring before any Run loop has started (so there is no TopologyUpdate
// message yet for the bot to observe). After Run starts, topology
// changes flow through the TopologyUpdate message instead.
func (b *Bot) SetTable(t *comm.ChannelTable) { b.table = t }
