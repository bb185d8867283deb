// Package ozerr implements the structured error design of §7: every error
// surfaced by a bot or by the host façade carries a set of Kind tags plus a
// message and an optional wrapped cause, instead of a single sentinel
// value. Callers test for a category with Is(err, Kind) rather than
// comparing to a specific error value, since a single fault (e.g. a
// missing file-state entry) is often simultaneously a Bug and a Missing
// condition.
//
// This mirrors fe2o3_core/src/macros/error.rs's `err!` macro, which
// attaches a list of tags (Bug, Overflow, Integer, Missing, Data, ...) to
// every constructed error; Go has no equivalent macro, so ozerr.New takes
// the tags as a variadic argument and wraps an optional upstream cause the
// way torua's packages wrap errors with fmt.Errorf("...: %w", err).
package ozerr
