package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_CheckAndFix(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.CheckAndFix())
}

func TestCheckAndFix_RejectsZeroZones(t *testing.T) {
	cfg := Default()
	cfg.NumZones = 0
	require.Error(t, cfg.CheckAndFix())
}

func TestCheckAndFix_RejectsChunkThresholdBelowChunkSize(t *testing.T) {
	cfg := Default()
	cfg.RestChunkThreshold = 10
	cfg.RestChunkBytes = 100
	require.Error(t, cfg.CheckAndFix())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.NumZones = 3
	cfg.ZoneOverrides[1] = ZoneOverride{Dir: "alt-zone-1", MaxSize: 2048}

	require.NoError(t, cfg.Save(dir))
	require.FileExists(t, filepath.Join(dir, ConfigFileName))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, cfg.NumZones, loaded.NumZones)
	require.Equal(t, cfg.ZoneOverrides[1], loaded.ZoneOverrides[1])
}

func TestClone_IsIndependent(t *testing.T) {
	cfg := Default()
	cfg.ZoneOverrides[1] = ZoneOverride{Dir: "a"}
	clone := cfg.Clone()
	clone.ZoneOverrides[1] = ZoneOverride{Dir: "b"}
	require.Equal(t, "a", cfg.ZoneOverrides[1].Dir)
}
