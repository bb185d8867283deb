package router

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/ozonedb/internal/bots/supervisor"
	"github.com/dreamware/ozonedb/internal/chunker"
	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/metrics"
	"github.com/dreamware/ozonedb/internal/obslog"
	"github.com/dreamware/ozonedb/internal/ozerr"
	"github.com/dreamware/ozonedb/internal/record"
	"github.com/dreamware/ozonedb/internal/schemes"
)

// defaultRequestTimeout bounds how long a host call waits on a bot's
// responder before treating the request as failed (§5: "host-initiated
// requests carry a responder with a timeout").
const defaultRequestTimeout = 10 * time.Second

// Router implements §4.1's put/get/delete: it is the only component
// that knows about ozone-key derivation, zone/shard selection, and
// value chunking — every bot downstream only ever sees an opaque
// (ozone-key, bytes, meta) tuple.
type Router struct {
	sup *supervisor.Supervisor

	clock          clock
	requestTimeout time.Duration

	log zerolog.Logger
}

// New constructs a Router against a running (or about-to-start)
// Supervisor.
func New(sup *supervisor.Supervisor) *Router {
	return &Router{
		sup:            sup,
		requestTimeout: defaultRequestTimeout,
		log:            obslog.New("router"),
	}
}

// Put stores value under key, splitting it into chunks first if it
// exceeds the configured chunk threshold (§4.1, §4.8). uid identifies
// the writer; override, if non-nil, replaces the database's default
// schemes for this call only. Returns whether the (possibly hashed)
// key already existed and how many chunks were written (0 for the
// single-record path).
func (r *Router) Put(ctx context.Context, key, value []byte, uid [record.UIDLen]byte, override *schemes.Set) (existed bool, chunksWritten int, err error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PutDuration)

	set := r.resolveSchemes(override)
	cfg := r.sup.Config()
	ozoneKey := schemes.OzoneKeyString(key, cfg.HashingThreshold(), set.KeyHash)

	if len(value) <= cfg.ChunkThreshold() {
		meta := r.newMeta(uid, set, false)
		existed, err = r.writeRecord(ctx, key, ozoneKey, value, meta, set, false, 0)
		return existed, 0, err
	}

	zone := id.ZoneIndex(schemes.ShardIndex(ozoneKey, r.sup.RoutingHasher(), r.sup.NumZones()))
	metrics.ChunkedValuesTotal.WithLabelValues(fmt.Sprintf("%d", int(zone))).Inc()

	chunks, manifest, err := chunker.Chunk(value, cfg.ChunkSize(), false)
	if err != nil {
		return false, 0, err
	}

	for i, c := range chunks {
		rawKey := chunkRawKey(key, uint32(i))
		chunkOzoneKey := schemes.OzoneKeyString(rawKey, cfg.HashingThreshold(), set.KeyHash)
		meta := r.newMeta(uid, set, false)
		if _, err := r.writeRecord(ctx, rawKey, chunkOzoneKey, c, meta, set, true, uint32(i)); err != nil {
			return false, i, err
		}
	}

	manifestMeta := r.newMeta(uid, set, false)
	manifestMeta.Chunked = true
	existed, err = r.writeRecord(ctx, key, ozoneKey, manifest.Encode(), manifestMeta, set, false, 0)
	if err != nil {
		return false, len(chunks), err
	}
	return existed, len(chunks), nil
}

// Get resolves key to its stored value and meta, transparently
// reassembling a chunked value (§4.1). found is false if the key has
// never been written or has been deleted.
func (r *Router) Get(ctx context.Context, key []byte, override *schemes.Set) (value []byte, meta record.Meta, found bool, err error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.GetDuration)

	set := r.resolveSchemes(override)
	cfg := r.sup.Config()
	ozoneKey := schemes.OzoneKeyString(key, cfg.HashingThreshold(), set.KeyHash)

	res, err := r.readRecord(ctx, ozoneKey)
	if err != nil {
		return nil, record.Meta{}, false, err
	}
	if res.Kind == comm.ReadNone || res.Kind == comm.ReadDeleted {
		return nil, res.Meta, false, nil
	}
	if !res.Meta.Chunked {
		return res.Value, res.Meta, true, nil
	}

	manifest, err := chunker.DecodeManifest(res.Value)
	if err != nil {
		return nil, record.Meta{}, false, err
	}

	chunks := make([][]byte, manifest.ChunkCount)
	for i := uint32(0); i < manifest.ChunkCount; i++ {
		rawKey := chunkRawKey(key, i)
		chunkOzoneKey := schemes.OzoneKeyString(rawKey, cfg.HashingThreshold(), set.KeyHash)
		cres, err := r.readRecord(ctx, chunkOzoneKey)
		if err != nil {
			return nil, record.Meta{}, false, err
		}
		if cres.Kind != comm.ReadValue {
			return nil, record.Meta{}, false, ozerr.Newf([]ozerr.Kind{ozerr.Missing},
				"chunk %d of %d missing for key", i, manifest.ChunkCount)
		}
		chunks[i] = cres.Value
	}

	full, err := chunker.Assemble(chunks, manifest)
	if err != nil {
		return nil, record.Meta{}, false, err
	}
	return full, res.Meta, true, nil
}

// Delete tombstones key, fanning out to every chunk of a chunked value
// first so a subsequent Get never reassembles a half-deleted value.
// Deleting a key that does not exist is not an error (existed reports
// false).
func (r *Router) Delete(ctx context.Context, key []byte, uid [record.UIDLen]byte) (existed bool, err error) {
	set := schemes.Defaults()
	cfg := r.sup.Config()
	ozoneKey := schemes.OzoneKeyString(key, cfg.HashingThreshold(), set.KeyHash)

	res, err := r.readRecord(ctx, ozoneKey)
	if err != nil {
		return false, err
	}
	if res.Kind == comm.ReadNone {
		return false, nil
	}

	if res.Kind == comm.ReadValue && res.Meta.Chunked {
		manifest, err := chunker.DecodeManifest(res.Value)
		if err != nil {
			return false, err
		}
		for i := uint32(0); i < manifest.ChunkCount; i++ {
			rawKey := chunkRawKey(key, i)
			chunkOzoneKey := schemes.OzoneKeyString(rawKey, cfg.HashingThreshold(), set.KeyHash)
			meta := r.newMeta(uid, set, true)
			if _, err := r.writeRecord(ctx, rawKey, chunkOzoneKey, nil, meta, set, true, i); err != nil {
				return false, err
			}
		}
	}

	meta := r.newMeta(uid, set, true)
	if _, err := r.writeRecord(ctx, key, ozoneKey, nil, meta, set, false, 0); err != nil {
		return false, err
	}
	return res.Kind != comm.ReadDeleted, nil
}

func (r *Router) newMeta(uid [record.UIDLen]byte, set schemes.Set, tombstone bool) record.Meta {
	return record.Meta{
		UID:          uid,
		Timestamp:    r.clock.next(),
		Tombstone:    tombstone,
		EncCode:      set.Enc.Code(),
		ChecksumCode: set.Checksum.Code(),
	}
}

func (r *Router) resolveSchemes(override *schemes.Set) schemes.Set {
	if override == nil {
		return schemes.Defaults()
	}
	return *override
}

// writeRecord sends one Write to the zone/shard ozoneKey hashes to and
// waits for the WriterBot's acknowledgement.
func (r *Router) writeRecord(ctx context.Context, key []byte, ozoneKey string, value []byte, meta record.Meta, set schemes.Set, hasChunkIndex bool, chunkIndex uint32) (existed bool, err error) {
	zone := id.ZoneIndex(schemes.ShardIndex(ozoneKey, r.sup.RoutingHasher(), r.sup.NumZones()))
	cacheAddr := r.sup.CacheAddress(zone, ozoneKey)
	writerAddr := r.sup.WriterAddress(zone, ozoneKey)

	ch, ok := r.sup.Table().Lookup(writerAddr)
	if !ok {
		return false, ozerr.Newf([]ozerr.Kind{ozerr.Missing, ozerr.Bug}, "no writerbot registered at %+v", writerAddr)
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	resp := comm.NewResponder[comm.WriteResult]()
	select {
	case ch <- comm.Write{
		Key:           key,
		Value:         value,
		Meta:          meta,
		Schemes:       set,
		OzoneKey:      ozoneKey,
		CacheAddr:     cacheAddr,
		HasChunkIndex: hasChunkIndex,
		ChunkIndex:    chunkIndex,
		Responder:     resp,
	}:
	case <-waitCtx.Done():
		return false, ozerr.Wrap(waitCtx.Err(), "sending write to writerbot", ozerr.Channel)
	}

	res, err := resp.Wait(waitCtx)
	if err != nil {
		return false, err
	}
	if res.Err != nil {
		return false, res.Err
	}
	return res.Existed, nil
}

// readRecord sends one ReadCache to the zone/shard ozoneKey hashes to
// and waits for the result.
func (r *Router) readRecord(ctx context.Context, ozoneKey string) (comm.ReadResult, error) {
	zone := id.ZoneIndex(schemes.ShardIndex(ozoneKey, r.sup.RoutingHasher(), r.sup.NumZones()))
	cacheAddr := r.sup.CacheAddress(zone, ozoneKey)

	ch, ok := r.sup.Table().Lookup(cacheAddr)
	if !ok {
		return comm.ReadResult{}, ozerr.Newf([]ozerr.Kind{ozerr.Missing, ozerr.Bug}, "no cachebot registered at %+v", cacheAddr)
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	resp := comm.NewResponder[comm.ReadResult]()
	select {
	case ch <- comm.ReadCache{OzoneKey: ozoneKey, Responder: resp}:
	case <-waitCtx.Done():
		return comm.ReadResult{}, ozerr.Wrap(waitCtx.Err(), "sending read to cachebot", ozerr.Channel)
	}

	res, err := resp.Wait(waitCtx)
	if err != nil {
		return comm.ReadResult{}, err
	}
	if res.Err != nil {
		return comm.ReadResult{}, res.Err
	}
	return res, nil
}
