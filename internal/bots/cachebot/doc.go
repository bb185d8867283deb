// Package cachebot implements the CacheBot of §4.3: it owns one shard
// of the dcache.Cache, answers reads directly on a value hit, forwards
// to the owning FileBot on a location-only hit, and applies GC
// relocation batches sent by FileBots mid-rewrite.
package cachebot
