package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/config"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/obslog"
	"github.com/dreamware/ozonedb/internal/ozerr"
	"github.com/dreamware/ozonedb/internal/schemes"
)

// shutdownOrder is the sequence §5 requires bots to drain in: writers
// stop accepting new appends first, then the bots downstream of a
// write (cache, file, reader) quiesce, then the bots that only run
// between requests (InitGc, Zone), and finally the Supervisor itself.
var shutdownOrder = []id.BotKind{
	id.KindWriter, id.KindCache, id.KindFile, id.KindReader, id.KindInitGc, id.KindZone,
}

// shutdownAckTimeout bounds how long Shutdown waits for any single bot
// to acknowledge before giving up on a clean drain and moving on.
const shutdownAckTimeout = 5 * time.Second

// maxBotRestarts bounds how many times Start relaunches a single bot's
// Run loop after a panic (§7's "a bot whose error counter exceeds a
// per-bot threshold signals the Supervisor to restart it") before
// leaving that bot stopped for good rather than restart-looping
// forever against a deterministic crash.
const maxBotRestarts = 3

// Supervisor owns every zone's worker pools, builds the immutable
// comm.ChannelTable the whole topology addresses itself through, and
// sequences zone startup and shutdown (§4.7, §5).
type Supervisor struct {
	ID    id.OzoneBotID
	Inbox chan comm.Message

	cfg    *config.OzoneConfig
	dbRoot string
	zones  []*zoneRuntime

	registry      *schemes.Registry
	routingHasher schemes.Hasher

	table *comm.ChannelTable
	group *errgroup.Group

	log zerolog.Logger
}

// New builds every zone's bot pools and wires them all into a single
// ChannelTable, installed directly on every bot — but does not yet run
// the zones' startup scans or start any bot's Run loop; call Start for
// that.
func New(dbRoot string, cfg *config.OzoneConfig) (*Supervisor, error) {
	if err := cfg.CheckAndFix(); err != nil {
		return nil, err
	}

	s := &Supervisor{
		ID:            id.NewSupervisorID(),
		Inbox:         make(chan comm.Message, 16),
		cfg:           cfg,
		dbRoot:        dbRoot,
		registry:      schemes.NewRegistry(),
		routingHasher: schemes.XXHasher{},
		log:           obslog.New("supervisor"),
	}
	s.log = s.log.With().Str("bot", s.ID.String()).Logger()

	placeholder := comm.NewBuilder().Build()
	for z := 0; z < int(cfg.NumZones); z++ {
		zr, err := s.buildZone(id.ZoneIndex(z), placeholder)
		if err != nil {
			return nil, err
		}
		s.zones = append(s.zones, zr)
	}

	builder := comm.NewBuilder().Register(comm.SupervisorAddress(), s.Inbox)
	for _, zr := range s.zones {
		zr.register(builder)
	}
	table := builder.Build()
	s.table = table
	for _, zr := range s.zones {
		zr.setTable(table)
	}

	return s, nil
}

// Start runs every zone's startup scan (concurrently across zones,
// since each touches only its own directory) and then launches every
// bot's Run loop. It returns once every Run goroutine has been
// launched; call Wait to block until Shutdown completes.
func (s *Supervisor) Start(ctx context.Context) error {
	scanGroup, scanCtx := errgroup.WithContext(ctx)
	for _, zr := range s.zones {
		zr := zr
		scanGroup.Go(func() error { return zr.zoneBot.Startup(scanCtx) })
	}
	if err := scanGroup.Wait(); err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, zr := range s.zones {
		for _, w := range zr.writers {
			w, label := w, w.ID.String()
			group.Go(func() error { s.runBotGuarded(label, func() { w.Run(gctx) }); return nil })
		}
		for _, c := range zr.caches {
			c, label := c, c.ID.String()
			group.Go(func() error { s.runBotGuarded(label, func() { c.Run(gctx) }); return nil })
		}
		for _, f := range zr.files {
			f, label := f, f.ID.String()
			group.Go(func() error { s.runBotGuarded(label, func() { f.Run(gctx) }); return nil })
		}
		for _, r := range zr.readers {
			r, label := r, r.ID.String()
			group.Go(func() error { s.runBotGuarded(label, func() { r.Run(gctx) }); return nil })
		}
		for _, gc := range zr.gcBots {
			gc, label := gc, gc.ID.String()
			group.Go(func() error { s.runBotGuarded(label, func() { gc.Run(gctx) }); return nil })
		}
		zb := zr.zoneBot
		zbLabel := zb.ID.String()
		group.Go(func() error { s.runBotGuarded(zbLabel, func() { zb.Run(gctx) }); return nil })
	}
	s.group = group
	s.log.Info().Int("zones", len(s.zones)).Msg("supervisor started")
	return nil
}

// runBotGuarded runs fn — a bot's blocking Run method — under a
// recover() guard, converting a panic into a Panic-tagged ozerr.Error
// instead of letting it unwind through errgroup and take down every
// other bot. A panicking bot is relaunched from the top of Run up to
// maxBotRestarts times; once that threshold is crossed it is left
// stopped rather than restart-looping against what is presumably a
// deterministic, repeating fault.
func (s *Supervisor) runBotGuarded(label string, fn func()) {
	restarts := 0
	for {
		panicked := s.runBotOnce(label, fn)
		if !panicked {
			return
		}
		restarts++
		if restarts > maxBotRestarts {
			s.log.Error().Str("bot", label).Int("restarts", restarts-1).
				Msg("bot exceeded its restart threshold, leaving it stopped")
			return
		}
		s.log.Warn().Str("bot", label).Int("attempt", restarts).Msg("restarting bot after panic")
	}
}

func (s *Supervisor) runBotOnce(label string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err := ozerr.Newf([]ozerr.Kind{ozerr.Panic}, "bot %s panicked: %v", label, r)
			s.log.Error().Err(err).Msg("recovered from bot panic")
		}
	}()
	fn()
	return false
}

// Wait blocks until every bot's Run loop has returned, which happens
// once Shutdown has drained them or ctx (passed to Start) is
// cancelled.
func (s *Supervisor) Wait() error {
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

// Table returns the current, immutable channel topology.
func (s *Supervisor) Table() *comm.ChannelTable { return s.table }

// NumZones returns the configured zone count.
func (s *Supervisor) NumZones() int { return int(s.cfg.NumZones) }

// Config returns the configuration the Supervisor was built with, read
// by the Router for its hashing-threshold/chunk-threshold/chunk-size
// settings.
func (s *Supervisor) Config() *config.OzoneConfig { return s.cfg }

// RoutingHasher is the fixed, system-wide hash used for zone and
// cache-shard selection — deliberately independent of any per-write
// schemes.Set override, since two writes of the same key made with
// different encryption/checksum schemes must still land on the same
// zone and the same CacheBot shard.
func (s *Supervisor) RoutingHasher() schemes.Hasher { return s.routingHasher }

// Registry is the shared scheme registry every ReaderBot resolves
// stored codes against.
func (s *Supervisor) Registry() *schemes.Registry { return s.registry }

// ZoneDir returns the on-disk directory for zone z.
func (s *Supervisor) ZoneDir(z id.ZoneIndex) string {
	return s.zones[int(z)].dir
}

// WriterAddress picks a WriterBot within zone z for ozoneKey. Every
// writer in a zone shares one append State (its own mutex already
// serialises concurrent Appends), so which pool member receives the
// message only affects queuing, not correctness; hashing the key keeps
// a given key's in-flight writes ordered through the same bot.
func (s *Supervisor) WriterAddress(z id.ZoneIndex, ozoneKey string) comm.Address {
	n := s.cfg.NumBotsPerZone("writer")
	idx := schemes.ShardIndex(ozoneKey, s.routingHasher, n)
	return comm.WorkerAddress(z, id.KindWriter, id.BotIndex(idx))
}

// CacheAddress picks the CacheBot shard owning ozoneKey within zone z.
func (s *Supervisor) CacheAddress(z id.ZoneIndex, ozoneKey string) comm.Address {
	n := s.cfg.NumBotsPerZone("cache")
	idx := schemes.ShardIndex(ozoneKey, s.routingHasher, n)
	return comm.WorkerAddress(z, id.KindCache, id.BotIndex(idx))
}

// ZoneStatusAddress returns the address ZoneState queries route to.
func (s *Supervisor) ZoneStatusAddress(z id.ZoneIndex) comm.Address {
	return comm.ZoneAddress(z)
}

// Shutdown drains every bot in shutdownOrder, waiting for each one's
// acknowledgement before moving on to the next kind, then waits for
// every Run loop to return.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	for _, kind := range shutdownOrder {
		if err := s.shutdownKind(ctx, kind); err != nil {
			return err
		}
	}
	s.log.Info().Msg("supervisor shutdown complete")
	return s.Wait()
}

func (s *Supervisor) shutdownKind(ctx context.Context, kind id.BotKind) error {
	var acks []*comm.Responder[struct{}]
	for _, zr := range s.zones {
		for _, ch := range zr.inboxesOfKind(kind) {
			ack := comm.NewResponder[struct{}]()
			ch <- comm.Shutdown{Ack: ack}
			acks = append(acks, ack)
		}
	}
	waitCtx, cancel := context.WithTimeout(ctx, shutdownAckTimeout)
	defer cancel()
	for _, ack := range acks {
		if _, err := ack.Wait(waitCtx); err != nil {
			return ozerr.Wrap(err, "waiting for bot shutdown acknowledgement", ozerr.Channel)
		}
	}
	return nil
}
