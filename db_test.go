package ozonedb

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/ozonedb/internal/config"
)

func smallConfig() *config.OzoneConfig {
	cfg := config.Default()
	cfg.NumZones = 2
	cfg.NumWBotsPerZone = 1
	cfg.NumCBotsPerZone = 1
	cfg.NumFBotsPerZone = 1
	cfg.NumRBotsPerZone = 1
	cfg.NumIGBotsPerZone = 1
	cfg.ZoneStateUpdateSecs = 1
	return cfg
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dbRoot := t.TempDir()
	db, err := New(dbRoot, smallConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, db.Start(ctx, "db-test"))
	t.Cleanup(func() { _ = db.Shutdown(context.Background()) })
	return db
}

func TestDB_PutGetDeleteRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	uid := NewUID()

	existed, chunks, err := db.Put(ctx, []byte("a"), []byte("apple"), uid, nil)
	require.NoError(t, err)
	require.False(t, existed)
	require.Equal(t, 0, chunks)

	value, _, found, err := db.Get(ctx, []byte("a"), nil)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("apple"), value)

	existed, err = db.Delete(ctx, []byte("a"), uid)
	require.NoError(t, err)
	require.True(t, existed)

	_, _, found, err = db.Get(ctx, []byte("a"), nil)
	require.NoError(t, err)
	require.False(t, found)
}

func TestDB_NewRejectsZoneCountMismatchOnReopen(t *testing.T) {
	dbRoot := t.TempDir()
	cfg := smallConfig()

	db, err := New(dbRoot, cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, db.Start(ctx, "initial"))
	require.NoError(t, db.Shutdown(context.Background()))
	cancel()

	mismatched := smallConfig()
	mismatched.NumZones = 3
	_, err = New(dbRoot, mismatched)
	require.Error(t, err)
}

func TestDB_ZoneStateReportsEveryZone(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	statuses, err := db.ZoneState(ctx, true)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
}

func TestDB_ListFilesDoesNotError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	uid := NewUID()

	_, _, err := db.Put(ctx, []byte("k"), bytes.Repeat([]byte("v"), 10), uid, nil)
	require.NoError(t, err)

	require.NoError(t, db.ListFiles(true))
}
