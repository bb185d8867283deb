// Package comm defines the message envelopes bots exchange (§4) and the
// channel table the Supervisor distributes to them (§4.7, §5).
//
// Every message is a plain struct; a Responder[T] stands in for the
// source's per-call reply channel, letting a message's sender block on
// exactly the reply shape it expects rather than a catch-all response
// enum. A ChannelTable is built once per topology and never mutated
// after construction — "read-only after publication" (§5) falls out of
// Go's normal immutable-value-sharing rather than needing an explicit
// lock, as torua's cluster membership snapshots do for node lists handed
// to request handlers.
package comm
