package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/ozonedb/internal/comm"
	"github.com/dreamware/ozonedb/internal/config"
	"github.com/dreamware/ozonedb/internal/id"
	"github.com/dreamware/ozonedb/internal/record"
	"github.com/dreamware/ozonedb/internal/schemes"
)

func smallConfig() *config.OzoneConfig {
	cfg := config.Default()
	cfg.NumZones = 1
	cfg.NumWBotsPerZone = 1
	cfg.NumCBotsPerZone = 1
	cfg.NumFBotsPerZone = 1
	cfg.NumRBotsPerZone = 1
	cfg.NumIGBotsPerZone = 1
	cfg.ZoneStateUpdateSecs = 1
	return cfg
}

func TestSupervisor_NewWiresEveryBotIntoOneTable(t *testing.T) {
	dbRoot := t.TempDir()
	cfg := smallConfig()

	sup, err := New(dbRoot, cfg)
	require.NoError(t, err)

	table := sup.Table()
	require.True(t, table.Len() > 0)

	_, ok := table.Lookup(comm.SupervisorAddress())
	require.True(t, ok)
	_, ok = table.Lookup(comm.ZoneAddress(id.ZoneIndex(0)))
	require.True(t, ok)
	_, ok = table.Lookup(comm.WorkerAddress(id.ZoneIndex(0), id.KindWriter, id.BotIndex(0)))
	require.True(t, ok)
}

func TestSupervisor_StartRoutesWriteThroughToCache(t *testing.T) {
	dbRoot := t.TempDir()
	cfg := smallConfig()

	sup, err := New(dbRoot, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))

	zone := id.ZoneIndex(0)
	ozoneKey := "greeting"
	set := schemes.Defaults()

	writerAddr := sup.WriterAddress(zone, ozoneKey)
	writerCh, ok := sup.Table().Lookup(writerAddr)
	require.True(t, ok)

	cacheAddr := sup.CacheAddress(zone, ozoneKey)

	writeResp := comm.NewResponder[comm.WriteResult]()
	writerCh <- comm.Write{
		Key:       []byte(ozoneKey),
		Value:     []byte("hello"),
		Meta:      record.Meta{Timestamp: 1},
		Schemes:   set,
		OzoneKey:  ozoneKey,
		CacheAddr: cacheAddr,
		Responder: writeResp,
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	writeRes, err := writeResp.Wait(waitCtx)
	require.NoError(t, err)
	require.NoError(t, writeRes.Err)

	cacheCh, ok := sup.Table().Lookup(cacheAddr)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		readResp := comm.NewResponder[comm.ReadResult]()
		cacheCh <- comm.ReadCache{OzoneKey: ozoneKey, Responder: readResp}
		readWaitCtx, readWaitCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer readWaitCancel()
		res, err := readResp.Wait(readWaitCtx)
		return err == nil && res.Kind == comm.ReadValue && string(res.Value) == "hello"
	}, time.Second, 10*time.Millisecond, "write should become visible through the cache shortly after Append")

	require.NoError(t, sup.Shutdown(context.Background()))
}

func TestSupervisor_StartResumesExistingZoneFiles(t *testing.T) {
	dbRoot := t.TempDir()
	cfg := smallConfig()

	sup1, err := New(dbRoot, cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sup1.Start(ctx))

	zone := id.ZoneIndex(0)
	ozoneKey := "persisted"
	set := schemes.Defaults()
	writerCh, ok := sup1.Table().Lookup(sup1.WriterAddress(zone, ozoneKey))
	require.True(t, ok)

	resp := comm.NewResponder[comm.WriteResult]()
	writerCh <- comm.Write{
		Key: []byte(ozoneKey), Value: []byte("v1"), Meta: record.Meta{Timestamp: 1},
		Schemes: set, OzoneKey: ozoneKey, CacheAddr: sup1.CacheAddress(zone, ozoneKey), Responder: resp,
	}
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	res, err := resp.Wait(waitCtx)
	waitCancel()
	require.NoError(t, err)
	require.NoError(t, res.Err)

	require.NoError(t, sup1.Shutdown(context.Background()))
	cancel()

	sup2, err := New(dbRoot, cfg)
	require.NoError(t, err)
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	require.NoError(t, sup2.Start(ctx2))

	cacheCh, ok := sup2.Table().Lookup(sup2.CacheAddress(zone, ozoneKey))
	require.True(t, ok)
	require.Eventually(t, func() bool {
		readResp := comm.NewResponder[comm.ReadResult]()
		cacheCh <- comm.ReadCache{OzoneKey: ozoneKey, Responder: readResp}
		readWaitCtx, readWaitCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer readWaitCancel()
		r, err := readResp.Wait(readWaitCtx)
		return err == nil && r.Kind == comm.ReadValue && string(r.Value) == "v1"
	}, time.Second, 10*time.Millisecond, "a restarted supervisor should rediscover pre-existing zone files during startup scan")

	require.NoError(t, sup2.Shutdown(context.Background()))
}
