package connection

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace       = "h3core"
	streamTypeLabel = "stream_type"
	frameTypeLabel  = "frame_type"
	reasonLabel     = "reason"
)

// connMetrics holds the package's one set of prometheus collectors,
// mirroring cloudflared's package-level clientMetrics var: every Context
// shares these, with labels (not separate vectors) distinguishing call
// sites.
var connMetrics = struct {
	startedConnections  prometheus.Counter
	closedConnections   *prometheus.CounterVec
	acceptedConnections prometheus.Counter
	streamsOpened       *prometheus.CounterVec
	controlFrames       *prometheus.CounterVec
	datagramsRead       prometheus.Counter
	packetsPerBatch     prometheus.Histogram
	packetsDropped      *prometheus.CounterVec
	timerRearms         prometheus.Counter
}{
	startedConnections: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connection",
		Name:      "started_total",
		Help:      "Number of connections constructed",
	}),
	closedConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connection",
		Name:      "closed_total",
		Help:      "Number of connections disposed, by reason",
	}, []string{reasonLabel}),
	acceptedConnections: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connection",
		Name:      "accepted_total",
		Help:      "Number of connections registered under an accept hash",
	}),
	streamsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "opened_total",
		Help:      "Number of streams opened, by type",
	}, []string{streamTypeLabel}),
	controlFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "control",
		Name:      "frames_total",
		Help:      "Number of control-stream frames handled, by frame type",
	}, []string{frameTypeLabel}),
	datagramsRead: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pump",
		Name:      "datagrams_read_total",
		Help:      "Number of UDP datagrams read off the socket",
	}),
	packetsPerBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pump",
		Name:      "packets_per_batch",
		Help:      "Number of coalesced packets delivered to processPackets per call",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
	}),
	packetsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pump",
		Name:      "packets_dropped_total",
		Help:      "Number of packets dropped before delivery, by reason",
	}, []string{reasonLabel}),
	timerRearms: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "timer",
		Name:      "rearms_total",
		Help:      "Number of times scheduleTimer actually rearmed the connection timer",
	}),
}

var registerMetrics sync.Once

// metrics is a thin handle onto connMetrics; a nil *metrics is valid and
// every method on it is a no-op, so callers that build connections without
// a metrics-bearing Context don't need to stub one out.
type metrics struct{}

// newMetrics registers connMetrics with the default prometheus registry
// exactly once per process and returns the handle every Context shares.
func newMetrics() *metrics {
	registerMetrics.Do(func() {
		prometheus.MustRegister(
			connMetrics.startedConnections,
			connMetrics.closedConnections,
			connMetrics.acceptedConnections,
			connMetrics.streamsOpened,
			connMetrics.controlFrames,
			connMetrics.datagramsRead,
			connMetrics.packetsPerBatch,
			connMetrics.packetsDropped,
			connMetrics.timerRearms,
		)
	})
	return &metrics{}
}

func (m *metrics) startedConnection() {
	if m == nil {
		return
	}
	connMetrics.startedConnections.Inc()
}

func (m *metrics) closedConnection(reason string) {
	if m == nil {
		return
	}
	connMetrics.closedConnections.WithLabelValues(reason).Inc()
}

func (m *metrics) acceptedConnection() {
	if m == nil {
		return
	}
	connMetrics.acceptedConnections.Inc()
}

func (m *metrics) openedStream(streamType string) {
	if m == nil {
		return
	}
	connMetrics.streamsOpened.WithLabelValues(streamType).Inc()
}

func (m *metrics) controlFrame(frameType string) {
	if m == nil {
		return
	}
	connMetrics.controlFrames.WithLabelValues(frameType).Inc()
}

func (m *metrics) readDatagrams(n int) {
	if m == nil || n == 0 {
		return
	}
	connMetrics.datagramsRead.Add(float64(n))
}

func (m *metrics) batch(size int) {
	if m == nil {
		return
	}
	connMetrics.packetsPerBatch.Observe(float64(size))
}

func (m *metrics) droppedPacket(reason string) {
	if m == nil {
		return
	}
	connMetrics.packetsDropped.WithLabelValues(reason).Inc()
}

func (m *metrics) rearmedTimer() {
	if m == nil {
		return
	}
	connMetrics.timerRearms.Inc()
}
