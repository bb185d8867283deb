// Command ozonedb-demo exercises the ozonedb host API end to end: it
// opens a database, writes a few keys (including one oversize enough
// to be chunked), reads them back, prints each zone's status, and
// shuts down cleanly. It is a demonstration harness, not a CLI/REPL
// shell for interactive use.
package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/ozonedb"
	"github.com/dreamware/ozonedb/internal/config"
)

func main() {
	dbRoot := getenv("OZONEDB_ROOT", "./ozonedb-demo-data")

	cfg := config.Default()
	cfg.NumZones = 2

	db, err := ozonedb.New(dbRoot, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Start(ctx, "ozonedb-demo"); err != nil {
		log.Fatalf("start database: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	if err := runDemo(ctx, db); err != nil {
		log.Printf("demo run failed: %v", err)
	}

	select {
	case <-stop:
		log.Println("received shutdown signal")
	default:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := db.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
	log.Println("ozonedb-demo stopped")
}

func runDemo(ctx context.Context, db *ozonedb.DB) error {
	uid := ozonedb.NewUID()

	if _, _, err := db.Put(ctx, []byte("greeting"), []byte("hello, zone"), uid, nil); err != nil {
		return fmt.Errorf("put greeting: %w", err)
	}

	big := bytes.Repeat([]byte("ozone"), 200_000) // well past the default chunk threshold
	existed, chunks, err := db.Put(ctx, []byte("payload"), big, uid, nil)
	if err != nil {
		return fmt.Errorf("put payload: %w", err)
	}
	log.Printf("payload: existed=%v chunks_written=%d", existed, chunks)

	value, _, found, err := db.Get(ctx, []byte("greeting"), nil)
	if err != nil {
		return fmt.Errorf("get greeting: %w", err)
	}
	log.Printf("greeting: found=%v value=%q", found, value)

	roundTripped, _, found, err := db.Get(ctx, []byte("payload"), nil)
	if err != nil {
		return fmt.Errorf("get payload: %w", err)
	}
	log.Printf("payload round-trip: found=%v matches=%v", found, bytes.Equal(roundTripped, big))

	if _, err := db.Delete(ctx, []byte("greeting"), uid); err != nil {
		return fmt.Errorf("delete greeting: %w", err)
	}

	statuses, err := db.ZoneState(ctx, true)
	if err != nil {
		return fmt.Errorf("zone state: %w", err)
	}
	for _, s := range statuses {
		log.Printf("zone %d: data_bytes=%d files=%d gc_active_files=%d", s.Zone, s.DataBytes, s.FileCount, s.GCActiveFiles)
	}

	return db.ListFiles(true)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

const shutdownTimeout = 10 * time.Second
