// Package schemes defines the pluggable cryptographic and hashing
// primitives the core consumes as opaque trait objects (§1, §9
// "Config-driven polymorphism"): a Hasher (for key hashing and for the
// zone/shard pseudo-random distribution hash), a Checksummer (integrity
// of stored values), and an Encrypter (optional at-rest confidentiality).
//
// Each interface has a default implementation selected when a host call
// doesn't supply an override, matching the source's RestSchemesInput /
// RestSchemes layering in fe2o3_o3db_sync/src/db.rs: invocation-time
// schemes, with per-call overrides layered on top. Every scheme carries a
// one-byte Code stored in a value's Meta so a later read (possibly after
// the default has changed) still knows how to reverse the transform.
package schemes
