package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Zone/shard sizing.
	ZoneDataBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ozonedb_zone_data_bytes",
			Help: "Total on-disk data-file bytes tracked for a zone",
		},
		[]string{"zone"},
	)

	ZoneFileCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ozonedb_zone_file_count",
			Help: "Number of data files tracked for a zone",
		},
		[]string{"zone"},
	)

	// Cache occupancy.
	CacheSizeBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ozonedb_cache_size_bytes",
			Help: "Accounted byte size of a CacheBot's shard",
		},
		[]string{"zone", "shard"},
	)

	CacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ozonedb_cache_entries",
			Help: "Number of entries held in a CacheBot's shard",
		},
		[]string{"zone", "shard"},
	)

	// Garbage collection.
	GCRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ozonedb_gc_runs_total",
			Help: "Total number of GC rewrites performed, by zone",
		},
		[]string{"zone"},
	)

	GCDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ozonedb_gc_duration_seconds",
			Help:    "Duration of a single-file GC rewrite",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"zone"},
	)

	GCBytesReclaimed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ozonedb_gc_bytes_reclaimed_total",
			Help: "Total bytes freed by GC rewrites, by zone",
		},
		[]string{"zone"},
	)

	// Readers in flight, the quantity GC must drain to zero before
	// starting (§4.4).
	ReadersInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ozonedb_readers_in_flight",
			Help: "Current in-flight reader count for a data file",
		},
		[]string{"zone", "file"},
	)

	// Host-facing operation latency.
	PutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ozonedb_put_duration_seconds",
			Help:    "Router.put latency, from host call to CacheBot acknowledgement",
			Buckets: prometheus.DefBuckets,
		},
	)

	GetDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ozonedb_get_duration_seconds",
			Help:    "Router.get latency, from host call to reconstructed value",
			Buckets: prometheus.DefBuckets,
		},
	)

	ChunkedValuesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ozonedb_chunked_values_total",
			Help: "Total values written that exceeded the chunking threshold",
		},
		[]string{"zone"},
	)

	IntegrityFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ozonedb_integrity_failures_total",
			Help: "Checksum verification failures observed by ReaderBots",
		},
		[]string{"zone"},
	)
)

func init() {
	prometheus.MustRegister(ZoneDataBytes)
	prometheus.MustRegister(ZoneFileCount)
	prometheus.MustRegister(CacheSizeBytes)
	prometheus.MustRegister(CacheEntries)
	prometheus.MustRegister(GCRunsTotal)
	prometheus.MustRegister(GCDuration)
	prometheus.MustRegister(GCBytesReclaimed)
	prometheus.MustRegister(ReadersInFlight)
	prometheus.MustRegister(PutDuration)
	prometheus.MustRegister(GetDuration)
	prometheus.MustRegister(ChunkedValuesTotal)
	prometheus.MustRegister(IntegrityFailuresTotal)
}

// Handler returns the Prometheus scrape handler, for a host that wants
// to mount it on its own HTTP mux (mounting the server itself is out of
// scope here — see SPEC_FULL.md).
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an operation for later histogram observation, mirroring
// the source pack's metrics.Timer helper.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer { return &Timer{start: time.Now()} }

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labelled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration { return time.Since(t.start) }
