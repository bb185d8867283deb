// Package filestate implements the per-file state machine of §3 and
// §4.4: for each data file, the live/old classification of every stored
// entry, file-size accounting, the GC move-map, the gc_active flag, and
// the reader count that GC must drain to zero before it may proceed.
//
// Grounded closely on fe2o3_o3db/src/file/state.rs's FileState and
// FileStateMap: the overflow/underflow-checked counters
// (InsertNew/RegisterOld/RetireOld), the dmap (data-state-by-offset) and
// mmap (GC move map), and the shard-level running-size rollup are ported
// method-for-method, adapted from Rust's checked_add/Outcome idiom to Go
// error returns.
//
// A ShardMap holds one zone's file states, shared by all of that zone's
// FileBots and InitGcBots (one map per zone): a map of FileNum to
// *Entry, each entry wrapping a FileState behind its own RWMutex so lock
// scope stays at "one file-state entry" per §5, while a coarser mutex
// protects the map's own structure (insertion/deletion of whole entries).
package filestate
