package initgcbot

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/config"
	"github.com/dreamware/ozonedb/internal/filestate"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/obslog"
	"github.com/dreamware/ozonedb/internal/schemes"
)

// CacheBotResolver maps an ozone-key to the address of the CacheBot
// whose shard owns it.
type CacheBotResolver func(ozoneKey string) comm.Address

// Bot is one InitGcBot instance: it rebuilds a zone's FileState and
// cache contents at startup (ScanZone) and executes single-file GC
// rewrites at runtime (RunGC messages), both operating directly on the
// zone's shared filestate.ShardMap.
type Bot struct {
	ID     id.OzoneBotID
	Inbox  chan comm.Message
	Shards *filestate.ShardMap

	// ShardIndex/ShardCount select which slice of a zone's files this
	// instance is responsible for during ScanZone (fileNum % ShardCount
	// == ShardIndex). A ShardCount of 0 or 1 means this bot owns every
	// file in the zone. The Supervisor builds every InitGcBot of a zone
	// with New (ShardCount 1), all sharing the zone's single
	// *filestate.ShardMap, and ZoneBot's Startup runs ScanZone on the
	// first of them only.
	ShardIndex int
	ShardCount int

	cfg             *config.OzoneConfig
	keyHasher       schemes.Hasher
	defaultScheme   schemes.Set
	resolveCacheBot CacheBotResolver
	table           *comm.ChannelTable
	log             zerolog.Logger
}

// New constructs an InitGcBot owning every file in the zone (ShardCount
// 1). NewSharded restricts a bot to one partition of the zone's files.
// defaultScheme serves the data-file rescan fallback, where no index
// survives to name the exact scheme an entry was written with, and also
// gives GC rewrites the checksum length of records (csLen).
func New(botID id.OzoneBotID, shards *filestate.ShardMap, cfg *config.OzoneConfig, resolveCacheBot CacheBotResolver, table *comm.ChannelTable) *Bot {
	return NewSharded(botID, shards, 0, 1, cfg, resolveCacheBot, table)
}

// NewSharded constructs an InitGcBot responsible only for the files
// whose number falls in partition shardIndex of shardCount.
func NewSharded(botID id.OzoneBotID, shards *filestate.ShardMap, shardIndex, shardCount int, cfg *config.OzoneConfig, resolveCacheBot CacheBotResolver, table *comm.ChannelTable) *Bot {
	defaults := schemes.Defaults()
	return &Bot{
		ID:              botID,
		Inbox:           make(chan comm.Message, 16),
		Shards:          shards,
		ShardIndex:      shardIndex,
		ShardCount:      shardCount,
		cfg:             cfg,
		keyHasher:       defaults.KeyHash,
		defaultScheme:   defaults,
		resolveCacheBot: resolveCacheBot,
		table:           table,
		log:             obslog.New("initgcbot").With().Str("bot", botID.String()).Logger(),
	}
}

// owns reports whether fnum belongs to this bot's partition.
func (b *Bot) owns(fnum id.FileNum) bool {
	if b.ShardCount <= 1 {
		return true
	}
	return int(fnum)%b.ShardCount == b.ShardIndex
}

// Run drains the bot's inbox until Shutdown. ScanZone is not a message
// handler: it runs once, synchronously, as part of zone startup before
// the zone accepts client traffic.
func (b *Bot) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.Inbox:
			switch m := msg.(type) {
			case comm.RunGC:
				b.runGC(ctx, m)
			case comm.TopologyUpdate:
				b.table = m.Table
			case comm.Shutdown:
				if m.Ack != nil {
					m.Ack.Reply(struct{}{})
				}
				return
			default:
				b.log.Warn().Msgf("initgcbot received unexpected message type %T", msg)
			}
		}
	}
}

// SetTable installs t directly, used by the Supervisor during initial
// wiring before any Run loop has started (so there is no TopologyUpdate
// message yet for the bot to observe). After Run starts, topology
// changes flow through the TopologyUpdate message instead.
func (b *Bot) SetTable(t *comm.ChannelTable) { b.table = t }
