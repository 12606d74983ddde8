package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics contains Prometheus metrics for chunk pools
type PoolMetrics struct {
	registry *prometheus.Registry

	chunksFree    *prometheus.GaugeVec
	chunksTotal   *prometheus.GaugeVec
	acquiresTotal *prometheus.CounterVec
	releasesTotal *prometheus.CounterVec
	faultsTotal   *prometheus.CounterVec
	lowWatermark  *prometheus.GaugeVec
}

// NewPoolMetrics creates and registers pool metrics
func NewPoolMetrics(registry *prometheus.Registry) (*PoolMetrics, error) {
	m := &PoolMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PoolMetrics) initMetrics() {
	m.chunksFree = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fifostream_pool_chunks_free",
			Help: "Chunks currently on the pool free list",
		},
		[]string{"pool"},
	)

	m.chunksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fifostream_pool_chunks",
			Help: "Total chunks owned by the pool",
		},
		[]string{"pool"},
	)

	m.acquiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fifostream_pool_acquires_total",
			Help: "Chunk acquire attempts by calling context and result",
		},
		[]string{"pool", "context", "result"}, // context: task, interrupt; result: success, exhausted
	)

	m.releasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fifostream_pool_releases_total",
			Help: "Chunks returned to the pool by calling context",
		},
		[]string{"pool", "context"},
	)

	m.faultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fifostream_pool_faults_total",
			Help: "Pool accounting faults (release into a full free list, double release, foreign chunk)",
		},
		[]string{"pool"},
	)

	m.lowWatermark = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fifostream_pool_free_low_watermark",
			Help: "Lowest free-list length observed since start",
		},
		[]string{"pool"},
	)
}

// PoolSnapshot is the subset of pool statistics exported as gauges and counters
type PoolSnapshot struct {
	Chunks        int
	Free          int
	LowWatermark  int
	TaskAcquires  uint64
	IRQAcquires   uint64
	TaskExhausted uint64
	IRQExhausted  uint64
	TaskReleases  uint64
	IRQReleases   uint64
	Faults        uint64
}

// RecordSnapshot publishes a pool statistics snapshot. Counters are advanced
// by the delta since the previous snapshot for the same pool.
func (m *PoolMetrics) RecordSnapshot(pool string, prev, cur PoolSnapshot) {
	if m == nil {
		return
	}

	m.chunksTotal.WithLabelValues(pool).Set(float64(cur.Chunks))
	m.chunksFree.WithLabelValues(pool).Set(float64(cur.Free))
	m.lowWatermark.WithLabelValues(pool).Set(float64(cur.LowWatermark))

	addDelta(m.acquiresTotal.WithLabelValues(pool, ContextTask, ResultSuccess), prev.TaskAcquires, cur.TaskAcquires)
	addDelta(m.acquiresTotal.WithLabelValues(pool, ContextInterrupt, ResultSuccess), prev.IRQAcquires, cur.IRQAcquires)
	addDelta(m.acquiresTotal.WithLabelValues(pool, ContextTask, ResultExhausted), prev.TaskExhausted, cur.TaskExhausted)
	addDelta(m.acquiresTotal.WithLabelValues(pool, ContextInterrupt, ResultExhausted), prev.IRQExhausted, cur.IRQExhausted)
	addDelta(m.releasesTotal.WithLabelValues(pool, ContextTask), prev.TaskReleases, cur.TaskReleases)
	addDelta(m.releasesTotal.WithLabelValues(pool, ContextInterrupt), prev.IRQReleases, cur.IRQReleases)
	addDelta(m.faultsTotal.WithLabelValues(pool), prev.Faults, cur.Faults)
}

func addDelta(c prometheus.Counter, prev, cur uint64) {
	if cur > prev {
		c.Add(float64(cur - prev))
	}
}

// Describe implements the prometheus.Collector interface
func (m *PoolMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.chunksFree.Describe(ch)
	m.chunksTotal.Describe(ch)
	m.acquiresTotal.Describe(ch)
	m.releasesTotal.Describe(ch)
	m.faultsTotal.Describe(ch)
	m.lowWatermark.Describe(ch)
}

// Collect implements the prometheus.Collector interface
func (m *PoolMetrics) Collect(ch chan<- prometheus.Metric) {
	m.chunksFree.Collect(ch)
	m.chunksTotal.Collect(ch)
	m.acquiresTotal.Collect(ch)
	m.releasesTotal.Collect(ch)
	m.faultsTotal.Collect(ch)
	m.lowWatermark.Collect(ch)
}
