// Package zonedir resolves the on-disk directory layout of §6:
//
//	<db_root>/
//	  config.jdat
//	  NNN_zone/
//	    zone_MMM/
//	      PPP_PPP_PPP.dat
//	      PPP_PPP_PPP.ind
//
// and implements the zone_overrides path-escape policy decided in
// SPEC_FULL.md §5 (relative overrides are resolved against, and must
// stay within, the zone root db_root/NNN_zone; absolute overrides are
// trusted as explicit operator intent).
//
// Grounded on the directory-layout documentation in
// fe2o3_o3db_sync/src/db.rs and on the format_zones_dir / format_zone_dir
// / format_data_file macros in fe2o3_o3db_sync/src/base/cfg.rs.
package zonedir
