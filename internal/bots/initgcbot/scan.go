package initgcbot

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/filestate"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/ozerr"
	"github.com/dreamware/ozonedb/internal/record"
	"github.com/dreamware/ozonedb/internal/schemes"
	"github.com/dreamware/ozonedb/internal/zonedir"
)

// seedSendTimeout bounds how long the startup scan blocks delivering a
// single SeedLocation to a CacheBot inbox before giving up on that one
// entry (it remains resolvable from disk on first Get regardless; only
// the warm-cache benefit is lost).
const seedSendTimeout = 2 * time.Second

type scannedEntry struct {
	fnum id.FileNum
	rec  record.IndexRecord
}

// ScanZone rebuilds zoneDir's FileState and CacheBot contents from
// whatever is on disk. Every file's index is read in full; a corrupt or
// missing index falls back to a raw data-file rescan under the
// assumption that every record in it used the database's default
// scheme set (Tombstone/Timestamp cannot be recovered this way, since
// only the index ever carried Meta — a corrupt index is lossy recovery,
// not lossless).
//
// The "which copy of a key is current" decision (§4.4's Cur/Old split)
// is made zone-wide: every record across every file is compared by
// Meta.Timestamp, and only the highest-timestamped copy of each
// ozone-key is marked Cur; every other copy — including older copies in
// the same file — is immediately flagged Old, exactly as a live
// UpdateData/RegisterOld pair would during normal operation.
func (b *Bot) ScanZone(ctx context.Context, zoneDir string) error {
	allFileNums, err := zonedir.ListFileNums(zoneDir)
	if err != nil {
		return err
	}
	if len(allFileNums) == 0 {
		if b.owns(id.FileNum(1)) {
			b.Shards.InsertNew(id.FileNum(1))
		}
		return nil
	}

	var ownedNums []id.FileNum
	for _, fnum := range allFileNums {
		if b.owns(fnum) {
			ownedNums = append(ownedNums, fnum)
		}
	}
	if len(ownedNums) == 0 {
		return nil
	}

	// The latest-wins comparison is zone-wide — a key's winning copy may
	// sit in a file owned by a different FileBot/InitGcBot partition —
	// so every file in the zone is scanned for comparison purposes, even
	// though only this bot's own partition is adopted and mutated below.
	var all []scannedEntry
	for _, fnum := range allFileNums {
		recs, err := b.scanFile(zoneDir, fnum)
		if err != nil {
			b.log.Error().Err(err).Msgf("scanning file %s failed, its entries are unrecoverable this run", fnum)
			continue
		}
		for _, r := range recs {
			all = append(all, scannedEntry{fnum: fnum, rec: r})
		}
	}

	latest := make(map[string]scannedEntry, len(all))
	for _, e := range all {
		key := schemes.OzoneKeyString(e.rec.Key, b.cfg.HashingThreshold(), b.keyHasher)
		cur, ok := latest[key]
		if !ok || e.rec.Meta.Timestamp >= cur.rec.Meta.Timestamp {
			latest[key] = e
		}
	}

	entries := make(map[id.FileNum]*filestate.Entry, len(ownedNums))
	for _, fnum := range ownedNums {
		entries[fnum] = b.Shards.Adopt(fnum, filestate.New())
	}

	for _, e := range all {
		entry, owned := entries[e.fnum]
		if !owned {
			continue
		}
		key := schemes.OzoneKeyString(e.rec.Key, b.cfg.HashingThreshold(), b.keyHasher)
		best := latest[key]
		isLatest := best.fnum == e.fnum && best.rec.FileOffset == e.rec.FileOffset

		floc := record.FileLocation{File: e.fnum, Start: e.rec.FileOffset, KLen: uint32(len(e.rec.Key)), VLen: uint32(e.rec.VLen)}
		entry.Lock()
		if _, err := entry.State.InsertNew(floc, 0); err != nil {
			b.log.Error().Err(err).Msg("rebuilding file-state entry failed")
		} else if !isLatest {
			if err := entry.State.RegisterOld(floc.Start, uint64(floc.KLen)+uint64(floc.VLen)); err != nil {
				b.log.Error().Err(err).Msg("marking superseded entry old failed")
			}
		}
		entry.Unlock()
	}

	// Only the partition holding the zone-wide highest file number is
	// the live append target; the other partitions' highest files are
	// sealed, already-full files left over from a prior rotation.
	zoneWideMax := allFileNums[len(allFileNums)-1]
	if liveEntry, ok := entries[zoneWideMax]; ok {
		liveEntry.Lock()
		liveEntry.State.SetLive(true)
		liveEntry.Unlock()
	}

	if !b.cfg.InitLoadCaches {
		return nil
	}
	for key, e := range latest {
		if !b.owns(e.fnum) {
			continue
		}
		floc := record.FileLocation{File: e.fnum, Start: e.rec.FileOffset, KLen: uint32(len(e.rec.Key)), VLen: uint32(e.rec.VLen)}
		addr := b.resolveCacheBot(key)
		ch, ok := b.table.Lookup(addr)
		if !ok {
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, seedSendTimeout)
		err := comm.SendBlocking(sendCtx, ch, comm.SeedLocation{OzoneKey: key, Floc: floc, Meta: e.rec.Meta})
		cancel()
		if err != nil {
			b.log.Warn().Err(err).Str("key", key).Msg("cachebot still busy after blocking send, skipping startup seed for this key")
		}
	}
	return nil
}

func (b *Bot) scanFile(zoneDir string, fnum id.FileNum) ([]record.IndexRecord, error) {
	indexPath := zonedir.IndexPath(zoneDir, fnum)
	f, err := os.Open(indexPath)
	if err == nil {
		defer f.Close()
		recs, scanErr := scanIndexFile(f)
		if scanErr == nil {
			return recs, nil
		}
		b.log.Warn().Err(scanErr).Msgf("index for file %s is corrupt, falling back to data-file rescan", fnum)
	}
	return b.scanDataFileFallback(zoneDir, fnum)
}

func scanIndexFile(r io.Reader) ([]record.IndexRecord, error) {
	ir := record.NewIndexReader(r)
	var out []record.IndexRecord
	for {
		rec, err := ir.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// scanDataFileFallback rebuilds index records directly from a data
// file when its companion index could not be read. It assumes every
// record was written with the database's default scheme set, so
// Tombstone/EncCode/ChecksumCode are recovered as defaults rather than
// their true original values — the best this rescan can do without an
// index.
func (b *Bot) scanDataFileFallback(zoneDir string, fnum id.FileNum) ([]record.IndexRecord, error) {
	path := zonedir.DataPath(zoneDir, fnum)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ozerr.Wrap(err, "opening data file for fallback scan", ozerr.IO)
	}
	defer f.Close()

	checksumLen := b.defaultScheme.Checksum.Len()
	br := bufio.NewReader(f)
	var out []record.IndexRecord
	var offset uint64
	for {
		start := offset
		klen, err := binary.ReadUvarint(br)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, ozerr.Wrap(err, "reading fallback key length", ozerr.Invalid)
		}
		key := make([]byte, klen)
		if _, err := io.ReadFull(br, key); err != nil {
			return nil, ozerr.Wrap(err, "reading fallback key", ozerr.Invalid)
		}

		vlen, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, ozerr.Wrap(err, "reading fallback value length", ozerr.Invalid)
		}
		if _, err := br.Discard(int(vlen)); err != nil {
			return nil, ozerr.Wrap(err, "skipping fallback value", ozerr.Invalid)
		}
		if _, err := br.Discard(checksumLen); err != nil {
			return nil, ozerr.Wrap(err, "skipping fallback checksum", ozerr.Invalid)
		}

		reclen := uint64(record.UvarintLen(klen)) + klen + uint64(record.UvarintLen(vlen)) + vlen + uint64(checksumLen)
		offset += reclen

		out = append(out, record.IndexRecord{
			Key:        key,
			FileOffset: start,
			KLen2:      klen,
			VLen:       vlen,
			Meta:       record.Meta{EncCode: b.defaultScheme.Enc.Code(), ChecksumCode: b.defaultScheme.Checksum.Code()},
		})
	}
	return out, nil
}
