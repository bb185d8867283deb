package zonedir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/ozonedb/internal/config"
	"github.com/dreamware/ozonedb/internal/id"
)

func TestDir_DefaultLayout(t *testing.T) {
	cfg := config.Default()
	cfg.NumZones = 2
	dir, err := Dir("/db", cfg, 0)
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/db", "002_zone", "zone_001"), dir)
}

func TestDir_RelativeOverrideWithinRoot(t *testing.T) {
	cfg := config.Default()
	cfg.NumZones = 1
	cfg.ZoneOverrides[1] = config.ZoneOverride{Dir: "custom"}
	dir, err := Dir("/db", cfg, 0)
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/db", "001_zone", "custom"), dir)
}

func TestDir_RelativeOverrideEscapingRootIsRejected(t *testing.T) {
	cfg := config.Default()
	cfg.NumZones = 1
	cfg.ZoneOverrides[1] = config.ZoneOverride{Dir: "../../etc"}
	_, err := Dir("/db", cfg, 0)
	require.Error(t, err)
}

func TestDir_AbsoluteOverrideTrusted(t *testing.T) {
	cfg := config.Default()
	cfg.NumZones = 1
	cfg.ZoneOverrides[1] = config.ZoneOverride{Dir: "/elsewhere/zone1"}
	dir, err := Dir("/db", cfg, 0)
	require.NoError(t, err)
	require.Equal(t, "/elsewhere/zone1", dir)
}

func TestListFileNums_MissingDirYieldsEmpty(t *testing.T) {
	nums, err := ListFileNums("/does/not/exist")
	require.NoError(t, err)
	require.Empty(t, nums)
}

func TestListFileNums_SortsAscending(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []id.FileNum{3, 1, 2} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n.DataFileName()), nil, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "not-a-data-file.txt"), nil, 0o644))

	nums, err := ListFileNums(dir)
	require.NoError(t, err)
	require.Equal(t, []id.FileNum{1, 2, 3}, nums)
}
