// Package obslog centralises logger construction so every bot attaches a
// consistent set of structured fields (component, zone, bot kind/index)
// to its log lines, grounded on cuemby-warren's pkg/log (zerolog-backed,
// one process-wide sink with per-subsystem child loggers) and on the
// source's sync_log stream-identifier concept (fe2o3_core/src/log/bot.rs),
// which every bot adopts at startup via Db.start(log_stream_id).
package obslog
