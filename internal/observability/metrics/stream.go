package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics contains Prometheus metrics for the streaming engine
type StreamMetrics struct {
	registry *prometheus.Registry

	chunksTransmitted *prometheus.CounterVec
	chunksReceived    prometheus.Counter
	chunksDropped     *prometheus.CounterVec
	backpressure      *prometheus.CounterVec
	rxResumes         prometheus.Counter
	interrupts        *prometheus.CounterVec
	modeTransitions   *prometheus.CounterVec
	running           prometheus.Gauge
	queueDepth        *prometheus.GaugeVec
	putDuration       prometheus.Histogram
}

// NewStreamMetrics creates and registers stream engine metrics
func NewStreamMetrics(registry *prometheus.Registry) (*StreamMetrics, error) {
	m := &StreamMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *StreamMetrics) initMetrics() {
	m.chunksTransmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fifostream_stream_chunks_transmitted_total",
			Help: "Chunks written to the transmit FIFO",
		},
		[]string{"path"}, // path: sync, interrupt
	)

	m.chunksReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fifostream_stream_chunks_received_total",
			Help: "Chunks filled from the receive FIFO and queued for the consumer",
		},
	)

	m.chunksDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fifostream_stream_chunks_dropped_total",
			Help: "Chunks dropped by direction and reason",
		},
		[]string{"direction", "reason"},
	)

	m.backpressure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fifostream_stream_backpressure_total",
			Help: "Backpressure events by direction and reason",
		},
		[]string{"direction", "reason"},
	)

	m.rxResumes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fifostream_stream_rx_resumes_total",
			Help: "Times the receive interrupt was re-enabled after backpressure",
		},
	)

	m.interrupts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fifostream_stream_interrupts_total",
			Help: "Interrupt handler invocations by kind",
		},
		[]string{"kind"}, // kind: tx, rx, unknown, spurious, soft
	)

	m.modeTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fifostream_stream_mode_transitions_total",
			Help: "Transitions between polling and interrupt-driven transmit",
		},
		[]string{"to"}, // to: running, idle
	)

	m.running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fifostream_stream_running",
			Help: "1 while the interrupt handler owns transmit draining",
		},
	)

	m.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fifostream_stream_queue_depth",
			Help: "Chunks waiting in the handoff queues",
		},
		[]string{"direction"},
	)

	m.putDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fifostream_stream_put_duration_seconds",
			Help:    "Time spent in Put, including synchronous drains and queue waits",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
		},
	)
}

// StreamSnapshot is the engine statistics view exported to Prometheus
type StreamSnapshot struct {
	TxSync             uint64
	TxInterrupt        uint64
	Received           uint64
	TxDropFifoSpace    uint64
	TxDropQueueFull    uint64
	RxBackpressureFull uint64
	RxBackpressurePool uint64
	RxResumes          uint64
	IntTx              uint64
	IntRx              uint64
	IntUnknown         uint64
	IntSpurious        uint64
	IntSoft            uint64
	ToRunning          uint64
	ToIdle             uint64
	Running            bool
	TxQueued           int
	RxQueued           int
}

// RecordSnapshot publishes a stream statistics snapshot, advancing counters
// by the delta from prev.
func (m *StreamMetrics) RecordSnapshot(prev, cur StreamSnapshot) {
	if m == nil {
		return
	}

	addDelta(m.chunksTransmitted.WithLabelValues(PathSync), prev.TxSync, cur.TxSync)
	addDelta(m.chunksTransmitted.WithLabelValues(PathInterrupt), prev.TxInterrupt, cur.TxInterrupt)
	addDelta(m.chunksReceived, prev.Received, cur.Received)
	addDelta(m.chunksDropped.WithLabelValues(DirectionTx, "fifo_space"), prev.TxDropFifoSpace, cur.TxDropFifoSpace)
	addDelta(m.chunksDropped.WithLabelValues(DirectionTx, "queue_full"), prev.TxDropQueueFull, cur.TxDropQueueFull)
	addDelta(m.backpressure.WithLabelValues(DirectionRx, "queue_full"), prev.RxBackpressureFull, cur.RxBackpressureFull)
	addDelta(m.backpressure.WithLabelValues(DirectionRx, "pool_exhausted"), prev.RxBackpressurePool, cur.RxBackpressurePool)
	addDelta(m.rxResumes, prev.RxResumes, cur.RxResumes)
	addDelta(m.interrupts.WithLabelValues("tx"), prev.IntTx, cur.IntTx)
	addDelta(m.interrupts.WithLabelValues("rx"), prev.IntRx, cur.IntRx)
	addDelta(m.interrupts.WithLabelValues("unknown"), prev.IntUnknown, cur.IntUnknown)
	addDelta(m.interrupts.WithLabelValues("spurious"), prev.IntSpurious, cur.IntSpurious)
	addDelta(m.interrupts.WithLabelValues("soft"), prev.IntSoft, cur.IntSoft)
	addDelta(m.modeTransitions.WithLabelValues("running"), prev.ToRunning, cur.ToRunning)
	addDelta(m.modeTransitions.WithLabelValues("idle"), prev.ToIdle, cur.ToIdle)

	if cur.Running {
		m.running.Set(1)
	} else {
		m.running.Set(0)
	}
	m.queueDepth.WithLabelValues(DirectionTx).Set(float64(cur.TxQueued))
	m.queueDepth.WithLabelValues(DirectionRx).Set(float64(cur.RxQueued))
}

// ObservePut records the duration of one Put call. Safe from task context only.
func (m *StreamMetrics) ObservePut(d time.Duration) {
	if m == nil {
		return
	}
	m.putDuration.Observe(d.Seconds())
}

// Describe implements the prometheus.Collector interface
func (m *StreamMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.chunksTransmitted.Describe(ch)
	m.chunksReceived.Describe(ch)
	m.chunksDropped.Describe(ch)
	m.backpressure.Describe(ch)
	m.rxResumes.Describe(ch)
	m.interrupts.Describe(ch)
	m.modeTransitions.Describe(ch)
	m.running.Describe(ch)
	m.queueDepth.Describe(ch)
	m.putDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface
func (m *StreamMetrics) Collect(ch chan<- prometheus.Metric) {
	m.chunksTransmitted.Collect(ch)
	m.chunksReceived.Collect(ch)
	m.chunksDropped.Collect(ch)
	m.backpressure.Collect(ch)
	m.rxResumes.Collect(ch)
	m.interrupts.Collect(ch)
	m.modeTransitions.Collect(ch)
	m.running.Collect(ch)
	m.queueDepth.Collect(ch)
	m.putDuration.Collect(ch)
}
