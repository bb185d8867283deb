package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/ozonedb/internal/ozerr"
)

// ConfigFileName is the on-disk name of the configuration file within
// db_root, kept from the source's directory layout even though the
// encoding here is YAML rather than jdat.
const ConfigFileName = "config.jdat"

// ZoneOverride customises one zone's directory location and/or maximum
// live-file size, per §6's zone_overrides map.
type ZoneOverride struct {
	// Dir relocates the zone's directory. Empty means "use the default
	// location under db_root". May be relative (resolved against the
	// zone root db_root/NNN_zone and required to stay within it) or
	// absolute (trusted as an explicit operator override — see the
	// path-escape policy in zonedir).
	Dir string `yaml:"dir"`
	// MaxSize overrides DataFileMaxBytes for this zone only. Zero means
	// "use the database-wide default".
	MaxSize uint64 `yaml:"max_size"`
}

// OzoneConfig is the full configuration surface of §6, grounded on
// fe2o3_o3db_sync/src/base/cfg.rs's OzoneConfig struct.
type OzoneConfig struct {
	// Key hashing: keys at or above this length are replaced internally
	// by a fixed-width hash (the ozone-key); see Router.
	BytesBeforeHashing uint64 `yaml:"bytes_before_hashing"`

	// Caches.
	CacheSizeLimitBytes uint64 `yaml:"cache_size_limit_bytes"`
	InitLoadCaches      bool   `yaml:"init_load_caches"`

	// Files.
	DataFileMaxBytes uint64 `yaml:"data_file_max_bytes"`

	// Chunking.
	RestChunkThreshold uint64 `yaml:"rest_chunk_threshold"`
	RestChunkBytes     uint64 `yaml:"rest_chunk_bytes"`

	// Garbage collection. Not named explicitly as a constant in the
	// source (spec.md §4.4.1, §9 Open Questions); made an explicit,
	// configurable ratio here.
	GCThresholdRatio float64 `yaml:"gc_threshold_ratio"`

	// Bots per zone.
	NumCBotsPerZone uint16 `yaml:"num_cbots_per_zone"`
	NumFBotsPerZone uint16 `yaml:"num_fbots_per_zone"`
	NumIGBotsPerZone uint16 `yaml:"num_igbots_per_zone"`
	NumRBotsPerZone uint16 `yaml:"num_rbots_per_zone"`
	NumWBotsPerZone uint16 `yaml:"num_wbots_per_zone"`

	// Zones.
	NumZones            uint16                  `yaml:"num_zones"`
	ZoneStateUpdateSecs uint8                   `yaml:"zone_state_update_secs"`
	ZoneOverrides       map[uint16]ZoneOverride `yaml:"zone_overrides"`
}

// Default returns the configuration the source ships when no
// config.jdat is found on disk, per fe2o3_o3db_sync/src/base/cfg.rs's
// Default impl.
func Default() *OzoneConfig {
	return &OzoneConfig{
		BytesBeforeHashing:  32,
		CacheSizeLimitBytes: 1_073_742_000, // ~1 GiB
		InitLoadCaches:      true,
		DataFileMaxBytes:    1_048_576, // 1 MiB
		RestChunkThreshold:  716_800,   // 700 KiB
		RestChunkBytes:      102_400,   // 100 KiB
		GCThresholdRatio:    0.5,
		NumCBotsPerZone:     2,
		NumFBotsPerZone:     2,
		NumIGBotsPerZone:    2,
		NumRBotsPerZone:     2,
		NumWBotsPerZone:     2,
		NumZones:            2,
		ZoneStateUpdateSecs: 5,
		ZoneOverrides:       map[uint16]ZoneOverride{},
	}
}

// ConfigPath returns the path to config.jdat within dbRoot.
func ConfigPath(dbRoot string) string {
	return filepath.Join(dbRoot, ConfigFileName)
}

// Load reads and parses config.jdat from dbRoot.
func Load(dbRoot string) (*OzoneConfig, error) {
	path := ConfigPath(dbRoot)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ozerr.Wrap(err, fmt.Sprintf("reading configuration file %q", path), ozerr.IO)
	}
	cfg := &OzoneConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, ozerr.Wrap(err, fmt.Sprintf("parsing configuration file %q", path), ozerr.IO, ozerr.Invalid)
	}
	return cfg, nil
}

// Save writes cfg to config.jdat within dbRoot.
func (c *OzoneConfig) Save(dbRoot string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return ozerr.Wrap(err, "encoding configuration", ozerr.Bug)
	}
	path := ConfigPath(dbRoot)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return ozerr.Wrap(err, fmt.Sprintf("writing configuration file %q", path), ozerr.IO)
	}
	return nil
}

// CheckAndFix validates the configuration, filling in sane values where
// possible and returning an error for contradictions it cannot safely
// resolve, per fe2o3_o3db_sync/src/base/cfg.rs's check_and_fix.
func (c *OzoneConfig) CheckAndFix() error {
	if c.NumZones == 0 {
		return ozerr.New("num_zones must be at least 1", ozerr.Invalid)
	}
	for name, n := range map[string]uint16{
		"num_cbots_per_zone":  c.NumCBotsPerZone,
		"num_fbots_per_zone":  c.NumFBotsPerZone,
		"num_igbots_per_zone": c.NumIGBotsPerZone,
		"num_rbots_per_zone":  c.NumRBotsPerZone,
		"num_wbots_per_zone":  c.NumWBotsPerZone,
	} {
		if n == 0 {
			return ozerr.Newf([]ozerr.Kind{ozerr.Invalid}, "%s must be at least 1", name)
		}
	}
	if c.DataFileMaxBytes == 0 {
		return ozerr.New("data_file_max_bytes must be positive", ozerr.Invalid)
	}
	if c.RestChunkBytes == 0 {
		return ozerr.New("rest_chunk_bytes must be positive", ozerr.Invalid)
	}
	if c.RestChunkThreshold < c.RestChunkBytes {
		return ozerr.New("rest_chunk_threshold must be >= rest_chunk_bytes", ozerr.Invalid)
	}
	if c.GCThresholdRatio <= 0 || c.GCThresholdRatio > 1 {
		return ozerr.New("gc_threshold_ratio must be in (0, 1]", ozerr.Invalid)
	}
	if c.ZoneStateUpdateSecs == 0 {
		c.ZoneStateUpdateSecs = 5
	}
	if c.ZoneOverrides == nil {
		c.ZoneOverrides = map[uint16]ZoneOverride{}
	}
	return nil
}

// ZoneStateUpdateInterval is the cadence at which each ZoneBot samples
// its zone's shared file-state map and caches.
func (c *OzoneConfig) ZoneStateUpdateInterval() time.Duration {
	return time.Duration(c.ZoneStateUpdateSecs) * time.Second
}

// HashingThreshold is the key-length boundary past which the Router
// computes an ozone-key instead of using the original key directly.
func (c *OzoneConfig) HashingThreshold() int { return int(c.BytesBeforeHashing) }

// ChunkThreshold is the value-length boundary past which the Router
// splits a value into chunks.
func (c *OzoneConfig) ChunkThreshold() int { return int(c.RestChunkThreshold) }

// ChunkSize is the size of each chunk (other than possibly the last).
func (c *OzoneConfig) ChunkSize() int { return int(c.RestChunkBytes) }

// NumBotsPerZone returns the configured pool size for the given bot
// kind, keyed by the lower-case role name ("writer", "cache", "file",
// "reader", "initgc").
func (c *OzoneConfig) NumBotsPerZone(kind string) int {
	switch strings.ToLower(kind) {
	case "writer":
		return int(c.NumWBotsPerZone)
	case "cache":
		return int(c.NumCBotsPerZone)
	case "file":
		return int(c.NumFBotsPerZone)
	case "reader":
		return int(c.NumRBotsPerZone)
	case "initgc":
		return int(c.NumIGBotsPerZone)
	default:
		return 0
	}
}

// ZoneRootDirName is the zone-container directory name, e.g.
// "002_zone" for a 2-zone database, per §6's display convention.
func (c *OzoneConfig) ZoneRootDirName() string {
	return fmt.Sprintf("%03d_zone", c.NumZones)
}

// ZoneRoot returns the absolute path to the zone-container directory
// under dbRoot.
func (c *OzoneConfig) ZoneRoot(dbRoot string) string {
	return filepath.Join(dbRoot, c.ZoneRootDirName())
}

// Clone returns a deep copy suitable for safe handoff across the
// Supervisor's channel table (the table itself is read-only after
// publication, but configuration values travel alongside it).
func (c *OzoneConfig) Clone() *OzoneConfig {
	cp := *c
	cp.ZoneOverrides = make(map[uint16]ZoneOverride, len(c.ZoneOverrides))
	for k, v := range c.ZoneOverrides {
		cp.ZoneOverrides[k] = v
	}
	return &cp
}
