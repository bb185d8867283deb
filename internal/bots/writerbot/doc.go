// Package writerbot implements the WriterBot of §4.2: it owns the
// append handle to a zone's current live data+index file pair, encodes
// each write as a length-prefixed, checksummed (and optionally
// encrypted) record, and forwards the resulting location to the owning
// CacheBot shard.
//
// Grounded on torua's node package for the bot-loop shape (a single
// goroutine draining its own inbox, cooperatively single-threaded
// inside itself per §5), adapted from torua's HTTP-handler dispatch to
// a typed comm.Message switch.
package writerbot
