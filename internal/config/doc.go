// Package config implements OzoneConfig, the text-map configuration
// described in §6 of the specification, and the zone-directory override
// policy. The on-disk filename (config.jdat) is kept for fidelity with
// the source's directory layout (fe2o3_o3db_sync/src/db.rs), but the
// encoding is gopkg.in/yaml.v3 rather than the source's jdat format —
// see DESIGN.md for the rationale.
//
// Grounded on fe2o3_o3db_sync/src/base/cfg.rs's OzoneConfig struct
// (field set, defaults, and the check_and_fix validation pass) and on
// torua/cuemby-warren's shared convention of a plain struct with
// yaml tags loaded via yaml.v3.
package config
