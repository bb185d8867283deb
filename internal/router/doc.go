// Package router implements the host-facing put/get/delete surface of
// §4.1: deriving a key's ozone-key, selecting its zone and shard by a
// fixed routing hash, splitting oversize values into chunks via
// internal/chunker, and reassembling them on read. No bot below the
// Router is aware that a value was ever chunked.
package router
