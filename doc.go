// Package ozonedb is the host-facing façade of a zoned, append-only,
// log-structured embedded key-value store: one Supervisor manages a
// fixed number of zones, each zone its own pool of actor bots, and a
// Router derives each key's zone/shard and transparently chunks
// oversize values. See internal/bots/supervisor and internal/router
// for the machinery this package wraps.
package ozonedb
