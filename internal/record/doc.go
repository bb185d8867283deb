// Package record implements the on-disk wire formats of §6: data-file
// records (length-prefixed key, length-prefixed value, checksum) and
// index-file records (length-prefixed key, file offset, lengths, and a
// fixed-width Meta block). Varint framing follows encoding/binary's
// Uvarint, the same technique protobuf and most embedded log formats in
// the wider Go ecosystem use; no corpus library models this exact
// byte-exact shape more naturally than the standard library (see
// DESIGN.md).
//
// FileLocation and MetaLocation are the addressing types exchanged
// between WriterBot, CacheBot, and FileBot (§3), grounded on
// fe2o3_o3db/src/file/floc.go's FileLocation/DataLocation split.
package record
