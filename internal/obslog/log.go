package obslog

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu      sync.Mutex
	stream  string
	sink    io.Writer = os.Stderr
	level             = zerolog.InfoLevel
	rootLog           = zerolog.New(sink).With().Timestamp().Logger()
)

// SetStream records the log-stream identifier the host passed to
// Db.Start, attaching it to every logger minted afterwards.
func SetStream(id string) {
	mu.Lock()
	defer mu.Unlock()
	stream = id
	rootLog = zerolog.New(sink).With().Timestamp().Str("stream", stream).Logger()
}

// SetLevel adjusts the process-wide minimum log level.
func SetLevel(l zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutput redirects the log sink; intended for tests that want to
// capture or silence bot logging.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	sink = w
	rootLog = zerolog.New(sink).With().Timestamp().Str("stream", stream).Logger()
}

// New returns a child logger scoped to component, e.g. "writerbot" or
// "supervisor". Additional structured fields (zone, bot index) are
// expected to be attached by the caller via .With().
func New(component string) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return rootLog.Level(level).With().
		Str("component", component).
		Timestamp().
		Logger()
}

// Elapsed is a small convenience for logging GC/init durations without
// every bot re-deriving time.Since boilerplate.
func Elapsed(start time.Time) time.Duration {
	return time.Since(start)
}
