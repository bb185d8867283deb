package initgcbot

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/filestate"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/metrics"
	"github.com/dreamware/ozonedb/internal/ozerr"
	"github.com/dreamware/ozonedb/internal/record"
	"github.com/dreamware/ozonedb/internal/schemes"
	"github.com/dreamware/ozonedb/internal/zonedir"
)

// gcAckTimeout bounds how long a GC rewrite waits for a CacheBot to
// acknowledge a batch of relocations before giving up on retiring the
// corresponding old bytes this round (they remain in the move-map and
// are retried on the file's next GC pass).
const gcAckTimeout = 2 * time.Second

// runGC executes the §4.4.1 single-file rewrite for m.FileNum: every
// entry still marked Cur is copied verbatim into a fresh file, the
// owning CacheBots are told where their keys moved to, acknowledged
// relocations retire the corresponding old bytes, and the FileBot that
// dispatched this run is sent GCComplete. GCComplete is sent whether or
// not the rewrite succeeded; after a failed rewrite it names the
// original file as the new one.
func (b *Bot) runGC(ctx context.Context, m comm.RunGC) {
	timer := metrics.NewTimer()
	oldEntry, err := b.Shards.MustGet(m.FileNum)
	if err != nil {
		b.log.Error().Err(err).Msg("GC dispatched for unknown file")
		return
	}

	newFileNum := b.Shards.NextFileNum()
	newEntry, moves, err := b.rewriteFile(m.ZoneDir, m.FileNum, newFileNum, oldEntry)
	if err != nil {
		b.log.Error().Err(err).Msgf("GC rewrite of file %s failed", m.FileNum)
		b.notifyComplete(ctx, m, m.FileNum)
		return
	}

	b.fanOutRelocations(ctx, oldEntry, moves)

	oldEntry.RLock()
	fullyRetired := oldEntry.State.DataMapEmpty()
	oldEntry.RUnlock()
	if fullyRetired {
		os.Remove(zonedir.DataPath(m.ZoneDir, m.FileNum))
		os.Remove(zonedir.IndexPath(m.ZoneDir, m.FileNum))
		b.Shards.Remove(m.FileNum)
	}

	newEntry.Lock()
	newEntry.State.SetLive(false)
	newEntry.Unlock()

	metrics.GCDuration.WithLabelValues(zoneLabel(b.ID)).Observe(timer.Duration().Seconds())
	b.notifyComplete(ctx, m, newFileNum)
}

// rewriteFile copies every Cur entry of fnum into newFnum, returning
// the new shard entry and a map of ozone-key -> new location for every
// entry actually moved.
func (b *Bot) rewriteFile(zoneDir string, fnum, newFnum id.FileNum, oldEntry *filestate.Entry) (*filestate.Entry, map[string]record.FileLocation, error) {
	oldIndex, err := os.Open(zonedir.IndexPath(zoneDir, fnum))
	if err != nil {
		return nil, nil, err
	}
	defer oldIndex.Close()
	oldData, err := os.Open(zonedir.DataPath(zoneDir, fnum))
	if err != nil {
		return nil, nil, err
	}
	defer oldData.Close()

	newData, err := os.OpenFile(zonedir.DataPath(zoneDir, newFnum), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, err
	}
	defer newData.Close()
	newIndex, err := os.OpenFile(zonedir.IndexPath(zoneDir, newFnum), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, err
	}
	defer newIndex.Close()

	newEntry := b.Shards.Adopt(newFnum, filestate.New())
	moves := make(map[string]record.FileLocation)
	var newOffset uint64
	var reclaimed uint64

	ir := record.NewIndexReader(oldIndex)
	for {
		rec, err := ir.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			b.log.Warn().Err(err).Msgf("index corruption mid-GC on file %s, stopping rewrite early", fnum)
			break
		}

		oldEntry.RLock()
		state, known := oldEntry.State.DataStateAt(rec.FileOffset)
		oldEntry.RUnlock()
		if !known || state != filestate.Cur {
			continue
		}

		cksum, err := csLen(rec.Meta.ChecksumCode, b.defaultScheme)
		if err != nil {
			b.log.Error().Err(err).Msg("unknown checksum scheme during GC, skipping entry")
			continue
		}

		reclen := record.DataRecordLen(rec.KLen2, rec.VLen, cksum)
		buf := make([]byte, reclen)
		if _, err := oldData.ReadAt(buf, int64(rec.FileOffset)); err != nil {
			b.log.Error().Err(err).Msgf("reading entry at offset %d during GC", rec.FileOffset)
			continue
		}
		if _, err := newData.Write(buf); err != nil {
			b.log.Error().Err(err).Msg("writing relocated entry during GC")
			continue
		}

		newLoc := record.FileLocation{File: newFnum, Start: newOffset, KLen: uint32(len(rec.Key)), VLen: uint32(rec.VLen)}
		newIrec := record.IndexRecord{Key: rec.Key, FileOffset: newOffset, KLen2: rec.KLen2, VLen: rec.VLen, Meta: rec.Meta}
		ibuf := newIrec.Encode()
		if _, err := newIndex.Write(ibuf); err != nil {
			b.log.Error().Err(err).Msg("writing relocated index record during GC")
			continue
		}

		if _, err := newEntry.State.InsertNew(newLoc, uint64(len(ibuf))); err != nil {
			b.log.Error().Err(err).Msg("recording relocated entry size during GC")
		}

		oldEntry.Lock()
		oldEntry.State.RecordMove(rec.FileOffset, newOffset)
		oldEntry.Unlock()

		newOffset += uint64(len(buf))
		reclaimed += uint64(len(buf))

		key := schemes.OzoneKeyString(rec.Key, b.cfg.HashingThreshold(), b.keyHasher)
		moves[key] = newLoc
	}

	metrics.GCBytesReclaimed.WithLabelValues(zoneLabel(b.ID)).Add(float64(reclaimed))
	return newEntry, moves, nil
}

// csLen returns the on-disk checksum length for a record's scheme code.
// GC copies bytes verbatim rather than re-checksumming them, but still
// needs this length to know where one record ends and the next begins.
// Only the database's default checksum scheme is known here: GC carries
// the default scheme set rather than a full Registry, so an entry
// written under any other checksum scheme is reported and skipped.
func csLen(code schemes.Code, set schemes.Set) (int, error) {
	if set.Checksum == nil || set.Checksum.Code() != code {
		return 0, ozerr.Newf([]ozerr.Kind{ozerr.Missing, ozerr.Invalid}, "no checksum scheme known for code %d during GC", code)
	}
	return set.Checksum.Len(), nil
}

// fanOutRelocations groups moves by owning CacheBot, sends each a
// GcCacheUpdateRequest, and retires the old-file bytes for every
// relocation the CacheBot acknowledges.
func (b *Bot) fanOutRelocations(ctx context.Context, oldEntry *filestate.Entry, moves map[string]record.FileLocation) {
	byCacheBot := make(map[comm.Address]map[string]record.FileLocation)
	for key, loc := range moves {
		addr := b.resolveCacheBot(key)
		if byCacheBot[addr] == nil {
			byCacheBot[addr] = make(map[string]record.FileLocation)
		}
		byCacheBot[addr][key] = loc
	}

	for addr, pairs := range byCacheBot {
		ch, ok := b.table.Lookup(addr)
		if !ok {
			b.log.Error().Msg("no CacheBot registered for relocation fan-out")
			continue
		}
		resp := comm.NewResponder[comm.GcCacheUpdateReply]()
		sendCtx, sendCancel := context.WithTimeout(ctx, gcAckTimeout)
		sendErr := comm.SendBlocking(sendCtx, ch, comm.GcCacheUpdateRequest{Pairs: pairs, Responder: resp})
		sendCancel()
		if sendErr != nil {
			b.log.Warn().Err(sendErr).Msg("cachebot still busy after blocking send, relocations left unacknowledged this round")
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, gcAckTimeout)
		reply, err := resp.Wait(waitCtx)
		cancel()
		if err != nil {
			b.log.Warn().Err(err).Msg("cachebot did not acknowledge relocation in time")
			continue
		}
		for _, oldLoc := range reply.OldLocations {
			b.retireOld(oldEntry, oldLoc)
		}
	}
}

func (b *Bot) retireOld(oldEntry *filestate.Entry, oldLoc record.FileLocation) {
	length := uint64(oldLoc.KLen) + uint64(oldLoc.VLen)
	oldEntry.Lock()
	oldEntry.State.ClearMove(oldLoc.Start)
	freed, err := oldEntry.State.RetireOld(oldLoc.Start, length)
	oldEntry.Unlock()
	if err != nil {
		b.log.Error().Err(err).Msg("retiring relocated entry failed")
		return
	}
	b.Shards.ShrinkSize(freed)
}

func (b *Bot) notifyComplete(ctx context.Context, m comm.RunGC, newFile id.FileNum) {
	ch, ok := b.table.Lookup(m.FileBotAddr)
	if !ok {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, gcAckTimeout)
	err := comm.SendBlocking(sendCtx, ch, comm.GCComplete{FileNum: m.FileNum, NewFile: newFile})
	cancel()
	if err != nil {
		// A lost GCComplete leaves the FileBot's gc_active flag set
		// forever, wedging every pending read against FileNum — this must
		// not be a silent drop.
		b.log.Error().Err(err).Msg("filebot inbox still full after blocking send, GC completion not delivered")
	}
}

func zoneLabel(botID id.OzoneBotID) string {
	return fmt.Sprintf("%d", int(botID.Zone))
}
