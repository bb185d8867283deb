package zonedir

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dreamware/ozonedb/internal/config"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/ozerr"
)

var dataFileRE = regexp.MustCompile(`^(\d{9})\.dat$`)

// ZoneDirName returns "zone_MMM" for a 1-based zone display number.
func ZoneDirName(zoneNum int) string {
	return fmt.Sprintf("zone_%03d", zoneNum)
}

// Dir resolves the absolute directory for zone z (0-based), honouring a
// configured override and enforcing the path-escape policy: a relative
// override must resolve to a path within zoneRoot (== db_root/NNN_zone);
// an absolute override is trusted outright, since the operator who wrote
// it had direct filesystem access to db_root anyway.
func Dir(dbRoot string, cfg *config.OzoneConfig, z id.ZoneIndex) (string, error) {
	zoneRoot := cfg.ZoneRoot(dbRoot)
	zoneNum := int(z) + 1
	defaultDir := filepath.Join(zoneRoot, ZoneDirName(zoneNum))

	override, ok := cfg.ZoneOverrides[uint16(zoneNum)]
	if !ok || override.Dir == "" {
		return defaultDir, nil
	}
	if filepath.IsAbs(override.Dir) {
		return filepath.Clean(override.Dir), nil
	}

	resolved := filepath.Clean(filepath.Join(zoneRoot, override.Dir))
	rootClean := filepath.Clean(zoneRoot)
	if resolved != rootClean && !strings.HasPrefix(resolved, rootClean+string(filepath.Separator)) {
		return "", ozerr.Newf([]ozerr.Kind{ozerr.Invalid},
			"zone %d override dir %q escapes zone root %q", zoneNum, override.Dir, zoneRoot)
	}
	return resolved, nil
}

// MaxSize returns the effective maximum live-file size for zone z,
// honouring a per-zone override.
func MaxSize(cfg *config.OzoneConfig, z id.ZoneIndex) uint64 {
	zoneNum := uint16(int(z) + 1)
	if override, ok := cfg.ZoneOverrides[zoneNum]; ok && override.MaxSize > 0 {
		return override.MaxSize
	}
	return cfg.DataFileMaxBytes
}

// EnsureDir creates the zone directory (and any parents) if absent.
func EnsureDir(dbRoot string, cfg *config.OzoneConfig, z id.ZoneIndex) (string, error) {
	dir, err := Dir(dbRoot, cfg, z)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", ozerr.Wrap(err, fmt.Sprintf("creating zone directory %q", dir), ozerr.IO)
	}
	return dir, nil
}

// DataPath returns the absolute data-file path for file number fnum
// within zoneDir.
func DataPath(zoneDir string, fnum id.FileNum) string {
	return filepath.Join(zoneDir, fnum.DataFileName())
}

// IndexPath returns the absolute index-file path for file number fnum
// within zoneDir.
func IndexPath(zoneDir string, fnum id.FileNum) string {
	return filepath.Join(zoneDir, fnum.IndexFileName())
}

// ListFileNums scans zoneDir for data files matching the 9-digit naming
// convention and returns their file numbers in ascending order. A
// missing zoneDir is not an error; it yields an empty slice (a fresh
// zone has not yet written anything).
func ListFileNums(zoneDir string) ([]id.FileNum, error) {
	entries, err := os.ReadDir(zoneDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ozerr.Wrap(err, fmt.Sprintf("listing zone directory %q", zoneDir), ozerr.IO)
	}
	var nums []id.FileNum
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := dataFileRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		nums = append(nums, id.FileNum(uint32(n)))
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums, nil
}
