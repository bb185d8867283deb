package supervisor

import (
	"github.com/dreamware/ozonedb/internal/bots/cachebot"
	"github.com/dreamware/ozonedb/internal/bots/filebot"
	"github.com/dreamware/ozonedb/internal/bots/initgcbot"
	"github.com/dreamware/ozonedb/internal/bots/readerbot"
	"github.com/dreamware/ozonedb/internal/bots/writerbot"
	"github.com/dreamware/ozonedb/internal/bots/zonebot"
	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/dcache"
	"github.com/dreamware/ozonedb/internal/filestate"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/schemes"
	"github.com/dreamware/ozonedb/internal/zonedir"
)

// zoneRuntime holds one zone's worker pools and the state they share.
// Every FileBot and InitGcBot in the zone operates on the same shards
// map — the pool sizes spread message-handling load, they do not
// partition ownership of the underlying files (see writerbot.State's
// single rollover sequence, which only ever grows one shared
// ShardMap).
type zoneRuntime struct {
	idx    id.ZoneIndex
	dir    string
	shards *filestate.ShardMap

	writerState *writerbot.State
	writers     []*writerbot.Bot
	caches      []*cachebot.Bot
	files       []*filebot.Bot
	readers     []*readerbot.Bot
	gcBots      []*initgcbot.Bot
	zoneBot     *zonebot.Bot
}

// buildZone constructs every bot in one zone's pools, wired with
// resolver closures that compute peer addresses from fixed pool sizes
// rather than looking anything up in a table — the table itself does
// not exist yet at this point in startup (see Supervisor.New). Each
// bot is constructed against placeholderTable and only receives the
// real topology once New has registered every zone and called
// zoneRuntime.setTable.
func (s *Supervisor) buildZone(zoneIdx id.ZoneIndex, placeholderTable *comm.ChannelTable) (*zoneRuntime, error) {
	dir, err := zonedir.EnsureDir(s.dbRoot, s.cfg, zoneIdx)
	if err != nil {
		return nil, err
	}
	maxSize := zonedir.MaxSize(s.cfg, zoneIdx)

	existing, err := zonedir.ListFileNums(dir)
	if err != nil {
		return nil, err
	}
	startFile := id.FileNum(1)
	if len(existing) > 0 {
		startFile = existing[len(existing)-1]
	}

	shared := filestate.NewShardMap()
	writerState, err := writerbot.Open(dir, shared, startFile, maxSize)
	if err != nil {
		return nil, err
	}

	numW := s.cfg.NumBotsPerZone("writer")
	numC := s.cfg.NumBotsPerZone("cache")
	numF := s.cfg.NumBotsPerZone("file")
	numR := s.cfg.NumBotsPerZone("reader")
	numIG := s.cfg.NumBotsPerZone("initgc")

	zr := &zoneRuntime{idx: zoneIdx, dir: dir, shards: shared, writerState: writerState}

	for i := 0; i < numW; i++ {
		botID := id.NewWorkerID(id.KindWriter, zoneIdx, id.BotIndex(i))
		addr := comm.WorkerAddress(zoneIdx, id.KindWriter, id.BotIndex(i))
		zr.writers = append(zr.writers, writerbot.New(botID, addr, writerState, placeholderTable))
	}

	resolveFileBot := func(fnum id.FileNum) comm.Address {
		return comm.WorkerAddress(zoneIdx, id.KindFile, id.BotIndex(int(fnum)%numF))
	}
	resolveReaderBot := func(fnum id.FileNum) comm.Address {
		return comm.WorkerAddress(zoneIdx, id.KindReader, id.BotIndex(int(fnum)%numR))
	}
	resolveCacheBot := func(ozoneKey string) comm.Address {
		idx := schemes.ShardIndex(ozoneKey, s.routingHasher, numC)
		return comm.WorkerAddress(zoneIdx, id.KindCache, id.BotIndex(idx))
	}

	for i := 0; i < numC; i++ {
		botID := id.NewWorkerID(id.KindCache, zoneIdx, id.BotIndex(i))
		zr.caches = append(zr.caches, cachebot.New(botID, s.cfg.CacheSizeLimitBytes, resolveFileBot, placeholderTable))
	}

	for i := 0; i < numF; i++ {
		botID := id.NewWorkerID(id.KindFile, zoneIdx, id.BotIndex(i))
		addr := comm.WorkerAddress(zoneIdx, id.KindFile, id.BotIndex(i))
		fbIndex := i
		resolveGCBot := func() comm.Address {
			return comm.WorkerAddress(zoneIdx, id.KindInitGc, id.BotIndex(fbIndex%numIG))
		}
		zr.files = append(zr.files, filebot.New(botID, addr, dir, shared, s.cfg.GCThresholdRatio,
			resolveFileBot, resolveReaderBot, resolveGCBot, placeholderTable))
	}

	for i := 0; i < numR; i++ {
		botID := id.NewWorkerID(id.KindReader, zoneIdx, id.BotIndex(i))
		zr.readers = append(zr.readers, readerbot.New(botID, s.registry, placeholderTable))
	}

	for i := 0; i < numIG; i++ {
		botID := id.NewWorkerID(id.KindInitGc, zoneIdx, id.BotIndex(i))
		zr.gcBots = append(zr.gcBots, initgcbot.New(botID, shared, s.cfg, resolveCacheBot, placeholderTable))
	}

	caches := make([]*dcache.Cache, len(zr.caches))
	for i, c := range zr.caches {
		caches[i] = c.Cache
	}
	zr.zoneBot = zonebot.New(zoneIdx, dir, s.cfg, zr.gcBots, []*filestate.ShardMap{shared}, caches, placeholderTable)

	return zr, nil
}

// register adds every bot's address/inbox pair in zr to builder.
func (zr *zoneRuntime) register(builder *comm.Builder) {
	builder.Register(comm.ZoneAddress(zr.idx), zr.zoneBot.Inbox)
	for i, w := range zr.writers {
		builder.Register(comm.WorkerAddress(zr.idx, id.KindWriter, id.BotIndex(i)), w.Inbox)
	}
	for i, c := range zr.caches {
		builder.Register(comm.WorkerAddress(zr.idx, id.KindCache, id.BotIndex(i)), c.Inbox)
	}
	for i, f := range zr.files {
		builder.Register(comm.WorkerAddress(zr.idx, id.KindFile, id.BotIndex(i)), f.Inbox)
	}
	for i, r := range zr.readers {
		builder.Register(comm.WorkerAddress(zr.idx, id.KindReader, id.BotIndex(i)), r.Inbox)
	}
	for i, gc := range zr.gcBots {
		builder.Register(comm.WorkerAddress(zr.idx, id.KindInitGc, id.BotIndex(i)), gc.Inbox)
	}
}

// setTable installs the real topology directly on every bot in the
// zone. Called once, synchronously, before any Run loop starts — at
// construction each bot only knows an empty placeholder table, and
// ScanZone (run from Startup, before Run) would otherwise resolve
// every peer lookup against that placeholder.
func (zr *zoneRuntime) setTable(t *comm.ChannelTable) {
	for _, w := range zr.writers {
		w.SetTable(t)
	}
	for _, c := range zr.caches {
		c.SetTable(t)
	}
	for _, f := range zr.files {
		f.SetTable(t)
	}
	for _, r := range zr.readers {
		r.SetTable(t)
	}
	for _, gc := range zr.gcBots {
		gc.SetTable(t)
	}
	zr.zoneBot.SetTable(t)
}

// inboxesOfKind returns every inbox of one bot kind in the zone, used
// to fan out Shutdown in pool-kind order.
func (zr *zoneRuntime) inboxesOfKind(kind id.BotKind) []chan comm.Message {
	switch kind {
	case id.KindWriter:
		return botInboxes(zr.writers, func(b *writerbot.Bot) chan comm.Message { return b.Inbox })
	case id.KindCache:
		return botInboxes(zr.caches, func(b *cachebot.Bot) chan comm.Message { return b.Inbox })
	case id.KindFile:
		return botInboxes(zr.files, func(b *filebot.Bot) chan comm.Message { return b.Inbox })
	case id.KindReader:
		return botInboxes(zr.readers, func(b *readerbot.Bot) chan comm.Message { return b.Inbox })
	case id.KindInitGc:
		return botInboxes(zr.gcBots, func(b *initgcbot.Bot) chan comm.Message { return b.Inbox })
	case id.KindZone:
		return []chan comm.Message{zr.zoneBot.Inbox}
	default:
		return nil
	}
}

func botInboxes[T any](bots []T, inbox func(T) chan comm.Message) []chan comm.Message {
	out := make([]chan comm.Message, len(bots))
	for i, b := range bots {
		out[i] = inbox(b)
	}
	return out
}
