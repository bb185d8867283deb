// Package filebot implements the FileBot of §4.4: it owns a shard of
// filestate.FileState entries, grants or defers read permission against
// them, applies the UpdateData bookkeeping a write produces, and, when a
// file's old-byte ratio crosses the configured threshold or every entry
// in it has gone Old, dispatches the single-file garbage-collection
// rewrite of §4.4.1 to an InitGcBot, which runs it.
package filebot
