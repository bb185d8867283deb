package filebot

import (
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/ozerr"
)

func noReaderBotErr(f id.FileNum) error {
	return ozerr.Newf([]ozerr.Kind{ozerr.Missing, ozerr.Bug}, "no ReaderBot registered for file %s", f)
}

func readerBotBusyErr(f id.FileNum) error {
	return ozerr.Newf([]ozerr.Kind{ozerr.Channel, ozerr.Overflow}, "ReaderBot inbox for file %s is full", f)
}

func noFileBotErr(f id.FileNum) error {
	return ozerr.Newf([]ozerr.Kind{ozerr.Missing, ozerr.Bug}, "no FileBot registered for file %s", f)
}

func staleLocationErr(f id.FileNum, start uint64) error {
	return ozerr.Newf([]ozerr.Kind{ozerr.Missing},
		"location %s@%d was superseded before GC relocated it; entry no longer exists", f, start)
}
