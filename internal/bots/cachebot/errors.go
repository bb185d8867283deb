package cachebot

import (
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/ozerr"
)

func missingFileBotErr(f id.FileNum) error {
	return ozerr.Newf([]ozerr.Kind{ozerr.Missing, ozerr.Bug}, "no FileBot registered for file %s", f)
}

func fileBotBusyErr(f id.FileNum) error {
	return ozerr.Newf([]ozerr.Kind{ozerr.Channel, ozerr.Overflow}, "FileBot inbox for file %s is full", f)
}
