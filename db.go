package ozonedb

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dreamware/ozonedb/internal/bots/supervisor"
	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/config"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/obslog"
	"github.com/dreamware/ozonedb/internal/ozerr"
	"github.com/dreamware/ozonedb/internal/record"
	"github.com/dreamware/ozonedb/internal/router"
	"github.com/dreamware/ozonedb/internal/schemes"
	"github.com/dreamware/ozonedb/internal/zonedir"
)

// DB is a handle to one open database directory, bound to its own
// Supervisor and Router. New returns a DB that has validated and, if
// necessary, written its configuration, but has not yet started any
// bot; call Start before Put/Get/Delete.
type DB struct {
	dbRoot string
	cfg    *config.OzoneConfig
	sup    *supervisor.Supervisor
	router *router.Router

	log zerolog.Logger
}

// New opens (or initialises) db_root with the given configuration. A
// nil cfg uses config.Default(). If db_root already holds a
// config.jdat, its zone count must match cfg's — changing the number
// of zones of an existing database is out of scope (§9).
func New(dbRoot string, cfg *config.OzoneConfig) (*DB, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.CheckAndFix(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(config.ConfigPath(dbRoot)); err == nil {
		existing, loadErr := config.Load(dbRoot)
		if loadErr != nil {
			return nil, loadErr
		}
		if existing.NumZones != cfg.NumZones {
			return nil, ozerr.Newf([]ozerr.Kind{ozerr.Invalid},
				"db_root %q already has %d zones, cannot reopen with %d", dbRoot, existing.NumZones, cfg.NumZones)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(dbRoot, 0o755); err != nil {
			return nil, ozerr.Wrap(err, "creating db_root", ozerr.IO)
		}
		if err := cfg.Save(dbRoot); err != nil {
			return nil, err
		}
	} else {
		return nil, ozerr.Wrap(err, "checking for existing configuration", ozerr.IO)
	}

	sup, err := supervisor.New(dbRoot, cfg)
	if err != nil {
		return nil, err
	}

	return &DB{
		dbRoot: dbRoot,
		cfg:    cfg,
		sup:    sup,
		router: router.New(sup),
		log:    obslog.New("ozonedb"),
	}, nil
}

// Start runs every zone's startup scan and launches every bot's Run
// loop. logID tags every subsequent log line emitted by this process
// with a stream identifier, letting a host correlate log output across
// restarts of the same logical database.
func (db *DB) Start(ctx context.Context, logID string) error {
	obslog.SetStream(logID)
	if err := db.sup.Start(ctx); err != nil {
		return err
	}
	db.log.Info().Str("db_root", db.dbRoot).Int("zones", db.sup.NumZones()).Msg("database started")
	return nil
}

// NewUID mints a fresh writer identity suitable for Put/Delete's uid
// argument.
func NewUID() [record.UIDLen]byte {
	var out [record.UIDLen]byte
	u := uuid.New()
	copy(out[:], u[:])
	return out
}

// Put stores value under key, returning whether key already existed
// and how many chunks the value was split into (0 for values at or
// under the configured chunk threshold).
func (db *DB) Put(ctx context.Context, key, value []byte, uid [record.UIDLen]byte, override *schemes.Set) (existed bool, chunksWritten int, err error) {
	return db.router.Put(ctx, key, value, uid, override)
}

// Get resolves key to its stored value, transparently reassembling a
// chunked value. found is false if key has never been written or has
// been deleted.
func (db *DB) Get(ctx context.Context, key []byte, override *schemes.Set) (value []byte, meta record.Meta, found bool, err error) {
	return db.router.Get(ctx, key, override)
}

// Delete tombstones key. existed reports whether key held a live value
// immediately beforehand.
func (db *DB) Delete(ctx context.Context, key []byte, uid [record.UIDLen]byte) (existed bool, err error) {
	return db.router.Delete(ctx, key, uid)
}

// Shutdown drains every bot in dependency order and waits for their Run
// loops to return.
func (db *DB) Shutdown(ctx context.Context) error {
	return db.sup.Shutdown(ctx)
}

// zoneStatusTimeout bounds how long ZoneState waits for a single zone's
// ZoneBot to reply.
const zoneStatusTimeout = 5 * time.Second

// ZoneState samples every zone's current size, file count, and GC
// activity, blocking up to zoneStatusTimeout per zone for each ZoneBot's
// reply. wait has no effect: every call goes through the same
// ZoneStatusRequest message, which a ZoneBot answers synchronously from
// its own event loop with a sample computed fresh from its zone's state.
func (db *DB) ZoneState(ctx context.Context, wait bool) ([]comm.ZoneStatus, error) {
	_ = wait // a ZoneBot always answers from its own authoritative state; see doc comment.
	out := make([]comm.ZoneStatus, 0, db.sup.NumZones())
	for z := 0; z < db.sup.NumZones(); z++ {
		addr := db.sup.ZoneStatusAddress(id.ZoneIndex(z))
		ch, ok := db.sup.Table().Lookup(addr)
		if !ok {
			return nil, ozerr.Newf([]ozerr.Kind{ozerr.Missing, ozerr.Bug}, "no zonebot registered for zone %d", z)
		}
		resp := comm.NewResponder[comm.ZoneStatus]()
		waitCtx, cancel := context.WithTimeout(ctx, zoneStatusTimeout)
		select {
		case ch <- comm.ZoneStatusRequest{Responder: resp}:
		case <-waitCtx.Done():
			cancel()
			return nil, ozerr.Wrap(waitCtx.Err(), "sending zone status request", ozerr.Channel)
		}
		status, err := resp.Wait(waitCtx)
		cancel()
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, nil
}

// ListFiles logs every zone's current on-disk data-file numbers. wait
// has no effect here beyond documenting intent (§6's `list_files(wait)
// → ()`): the call always reads the filesystem synchronously, since
// listing a directory carries no GC-quiescence requirement the way a
// read does.
func (db *DB) ListFiles(wait bool) error {
	_ = wait
	for z := 0; z < db.sup.NumZones(); z++ {
		dir := db.sup.ZoneDir(id.ZoneIndex(z))
		nums, err := zonedir.ListFileNums(dir)
		if err != nil {
			return err
		}
		names := make([]string, len(nums))
		for i, n := range nums {
			names[i] = n.String()
		}
		db.log.Info().Int("zone", z).Strs("files", names).Msg("zone files")
	}
	return nil
}
