package record

import "github.com/dreamware/ozonedb/internal/id"

// FileLocation pinpoints a stored entry: which file, at what byte
// offset, and the plain (pre-framing) lengths of its key and value
// (§3).
type FileLocation struct {
	File  id.FileNum
	Start uint64
	KLen  uint32
	VLen  uint32
}

// MetaLocation is the unit exchanged between CacheBot and FileBot: a
// FileLocation plus the Meta describing the entry it points to (§3).
type MetaLocation struct {
	Loc  FileLocation
	Meta Meta
}
