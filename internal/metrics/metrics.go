package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/edaq-tools/sif2blf/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	DBCLinesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dbc_lines_accepted_total",
		Help: "Total database lines that produced a message, signal or value table.",
	})
	DBCLinesIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dbc_lines_ignored_total",
		Help: "Total database lines skipped (no grammar match, orphaned signals).",
	})
	ClampedValues = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codec_clamped_values_total",
		Help: "Total physical values saturated into a signal's raw range during encode.",
	})
	RecordsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blf_records_written_total",
		Help: "Total records appended to the output container.",
	})
	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blf_bytes_written_total",
		Help: "Total record bytes appended to the output container (header excluded).",
	})
	SamplesConverted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convert_samples_total",
		Help: "Total per-channel samples synthesized and encoded during conversion.",
	})
	ChannelsMatched = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "convert_channels_matched",
		Help: "Measurement channels matched to a database signal.",
	})
	ChannelsUnmatched = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "convert_channels_unmatched",
		Help: "Measurement channels with no matching database signal.",
	})
	SerialRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_frames_total",
		Help: "Total CAN frames decoded from the serial adapter.",
	})
	SocketCANRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_rx_frames_total",
		Help: "Total CAN frames read from the SocketCAN interface.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed frames (checksum, invalid length, truncated).",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrSerialRead    = "serial_read"
	ErrSocketCANRead = "socketcan_read"
	ErrBLFWrite      = "blf_write"
	ErrDBCParse      = "dbc_parse"
	ErrSIFParse      = "sif_parse"
	ErrEncode        = "encode"
	ErrRecordDrop    = "record_drop"
)

// StartHTTP serves Prometheus metrics at /metrics on the given address.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localDBCAccepted uint64
	localDBCIgnored  uint64
	localClamped     uint64
	localRecords     uint64
	localBytes       uint64
	localSamples     uint64
	localSerialRx    uint64
	localSocketCANRx uint64
	localMalformed   uint64
	localErrors      uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	DBCAccepted uint64
	DBCIgnored  uint64
	Clamped     uint64
	Records     uint64
	Bytes       uint64
	Samples     uint64
	SerialRx    uint64
	SocketCANRx uint64
	Malformed   uint64
	Errors      uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		DBCAccepted: atomic.LoadUint64(&localDBCAccepted),
		DBCIgnored:  atomic.LoadUint64(&localDBCIgnored),
		Clamped:     atomic.LoadUint64(&localClamped),
		Records:     atomic.LoadUint64(&localRecords),
		Bytes:       atomic.LoadUint64(&localBytes),
		Samples:     atomic.LoadUint64(&localSamples),
		SerialRx:    atomic.LoadUint64(&localSerialRx),
		SocketCANRx: atomic.LoadUint64(&localSocketCANRx),
		Malformed:   atomic.LoadUint64(&localMalformed),
		Errors:      atomic.LoadUint64(&localErrors),
	}
}

// Wrapper helpers to keep call sites simple.
func AddDBCCoverage(accepted, ignored int) {
	DBCLinesAccepted.Add(float64(accepted))
	DBCLinesIgnored.Add(float64(ignored))
	atomic.AddUint64(&localDBCAccepted, uint64(accepted))
	atomic.AddUint64(&localDBCIgnored, uint64(ignored))
}

func IncClamped() {
	ClampedValues.Inc()
	atomic.AddUint64(&localClamped, 1)
}

// AddRecord accounts one appended record of n on-disk bytes.
func AddRecord(n int) {
	RecordsWritten.Inc()
	BytesWritten.Add(float64(n))
	atomic.AddUint64(&localRecords, 1)
	atomic.AddUint64(&localBytes, uint64(n))
}

func IncSamples() {
	SamplesConverted.Inc()
	atomic.AddUint64(&localSamples, 1)
}

// SetChannelCoverage records how many channels found a signal.
func SetChannelCoverage(matched, unmatched int) {
	ChannelsMatched.Set(float64(matched))
	ChannelsUnmatched.Set(float64(unmatched))
}

func IncSerialRx() {
	SerialRxFrames.Inc()
	atomic.AddUint64(&localSerialRx, 1)
}

// IncSocketCANRx increments SocketCAN receive counters.
func IncSocketCANRx() {
	SocketCANRxFrames.Inc()
	atomic.AddUint64(&localSocketCANRx, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrSerialRead, ErrSocketCANRead, ErrBLFWrite,
		ErrDBCParse, ErrSIFParse, ErrEncode, ErrRecordDrop,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
