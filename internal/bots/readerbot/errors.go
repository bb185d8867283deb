package readerbot

import (
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/ozerr"
)

func integrityErr(fnum id.FileNum, start uint64) error {
	return ozerr.Newf([]ozerr.Kind{ozerr.Invalid, ozerr.Mismatch},
		"checksum verification failed for %s@%d", fnum, start)
}
