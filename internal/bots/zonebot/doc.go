// Package zonebot implements the ZoneBot of §4.7: one instance per
// zone, it runs the startup scan that rebuilds a zone's on-disk state
// before any traffic is accepted, then periodically samples its
// worker pool's shard maps and caches to report zone-wide size,
// file-count, and GC activity.
package zonebot
