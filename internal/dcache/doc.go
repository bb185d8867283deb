// Package dcache implements the per-shard Cache of §3/§4.3: a
// size-bounded map from ozone-key to either a cached value, a bare
// file-location, or a tombstone, with LRU eviction that prefers
// demoting value entries to location-only over discarding location
// entries outright (locations aren't free to recompute; values are).
//
// Grounded on fe2o3_o3db/src/data/cache.rs's Cache and CacheEntry, with
// the LRU bookkeeping itself adapted from the generic intrusive-list
// pattern torua's in-memory shard registry uses for its own eviction-free
// maps — here made evicting via container/list, the idiomatic Go
// equivalent of an intrusive doubly-linked list.
package dcache
