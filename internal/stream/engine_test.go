package stream

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fifostream/internal/bufferpool"
	"github.com/tphakala/fifostream/internal/chunk"
	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/fifo"
	"github.com/tphakala/fifostream/internal/fifo/fifotest"
	"github.com/tphakala/fifostream/internal/logger"
	"github.com/tphakala/fifostream/internal/observability/metrics"
)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, time.UTC)
}

func newTestPool(t *testing.T, chunks int) *bufferpool.Pool {
	t.Helper()
	p, err := bufferpool.New(bufferpool.Config{Chunks: chunks, ChunkSize: 512},
		bufferpool.WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// newTestEngine returns a started engine on a recorder with the start-up
// writes already cleared
func newTestEngine(t *testing.T, vacancy uint32, cfg Config) (*Engine, *fifotest.Recorder, *bufferpool.Pool) {
	t.Helper()
	rec := fifotest.NewRecorder(vacancy)
	pool := newTestPool(t, 4)

	e, err := New(rec, nil, pool, cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	e.Start()
	rec.Clear()
	return e, rec, pool
}

// filled acquires a chunk holding samples slots of base, base+1, ...
func filled(t *testing.T, pool *bufferpool.Pool, samples int, base uint32) *chunk.Chunk {
	t.Helper()
	c, err := pool.TryAcquire()
	require.NoError(t, err)
	slots := c.Uint32()
	for i := range samples {
		slots[i] = base + uint32(i)
	}
	require.NoError(t, c.SetUsed(samples*chunk.SampleWidth))
	return c
}

func expectedWords(samples int, base uint32) []uint32 {
	out := make([]uint32, samples)
	for i := range out {
		out[i] = (base + uint32(i)) << DefaultDataShift
	}
	return out
}

func TestNewRequiresRegistersAndPool(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 1)
	_, err := New(nil, nil, pool, DefaultConfig())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryStreamInit))

	_, err = New(fifotest.NewRecorder(0), nil, nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrInit)

	_, err = New(fifotest.NewRecorder(0), nil, pool, Config{TxFullPolicy: "block"})
	assert.ErrorIs(t, err, ErrInit)
}

func TestStartProgramsFifo(t *testing.T) {
	t.Parallel()

	rec := fifotest.NewRecorder(512)
	pool := newTestPool(t, 2)
	cfg := DefaultConfig()
	cfg.Receive = true
	e, err := New(rec, nil, pool, cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID())

	e.Start()

	assert.Equal(t, []fifotest.Write{
		{Off: fifo.TxReset, Value: fifo.ResetKey},
		{Off: fifo.RxReset, Value: fifo.ResetKey},
		{Off: fifo.IntStatus, Value: 0xFFFFFFFF},
		{Off: fifo.IntEnable, Value: fifo.IntTFPE | fifo.IntRFPF},
	}, rec.Writes())
	assert.False(t, e.Running())
}

func TestPutIdleWritesSynchronously(t *testing.T) {
	t.Parallel()

	e, rec, pool := newTestEngine(t, 512, DefaultConfig())
	c := filled(t, pool, 16, 1)

	require.NoError(t, e.Put(t.Context(), c))

	assert.Equal(t, expectedWords(16, 1), rec.Values(fifo.TxData))
	lengths := rec.Values(fifo.TxLength)
	require.Len(t, lengths, 16)
	for _, v := range lengths {
		assert.Equal(t, uint32(1), v)
	}

	// every data word is followed by its commit strobe
	writes := rec.Writes(fifo.TxData, fifo.TxLength)
	for i, w := range writes {
		want := fifo.TxData
		if i%2 == 1 {
			want = fifo.TxLength
		}
		assert.Equal(t, want, w.Off, "write %d", i)
	}

	assert.True(t, e.Running())
	assert.Equal(t, pool.Len(), pool.Available())
	assert.Equal(t, chunk.StateFree, c.State())

	s := e.Stats()
	assert.Equal(t, uint64(1), s.TxSync)
	assert.Equal(t, uint64(1), s.ModeToRunning)
}

func TestPutMasksAndShiftsSlots(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.DataShift = 8
	e, rec, pool := newTestEngine(t, 512, cfg)

	c, err := pool.TryAcquire()
	require.NoError(t, err)
	c.Uint32()[0] = 0xFFABCDEF
	require.NoError(t, c.SetUsed(chunk.SampleWidth))

	require.NoError(t, e.Put(t.Context(), c))
	assert.Equal(t, []uint32{0xABCDEF00}, rec.Values(fifo.TxData))
}

func TestInterruptDrainsQueueInOrder(t *testing.T) {
	t.Parallel()

	e, rec, pool := newTestEngine(t, 512, DefaultConfig())
	ctx := t.Context()

	require.NoError(t, e.Put(ctx, filled(t, pool, 16, 1)))
	require.True(t, e.Running())

	require.NoError(t, e.Put(ctx, filled(t, pool, 16, 100)))
	require.NoError(t, e.Put(ctx, filled(t, pool, 16, 200)))
	assert.Equal(t, 2, e.Stats().TxQueued)
	rec.Clear()

	rec.Raise(fifo.IntTFPE)
	e.HandleInterrupt()
	assert.Equal(t, expectedWords(16, 100), rec.Values(fifo.TxData))
	assert.Zero(t, rec.Status()&fifo.IntTFPE, "TFPE should be acknowledged")
	assert.Equal(t, 3, pool.Available())
	assert.True(t, e.Running())
	rec.Clear()

	rec.Raise(fifo.IntTFPE)
	e.HandleInterrupt()
	assert.Equal(t, expectedWords(16, 200), rec.Values(fifo.TxData))
	assert.Equal(t, 4, pool.Available())
	rec.Clear()

	// queue empty: back to polling mode without touching TX_DATA
	rec.Raise(fifo.IntTFPE)
	e.HandleInterrupt()
	assert.Empty(t, rec.Values(fifo.TxData))
	assert.False(t, e.Running())

	s := e.Stats()
	assert.Equal(t, uint64(1), s.TxSync)
	assert.Equal(t, uint64(2), s.TxInterrupt)
	assert.Equal(t, uint64(3), s.InterruptsTx)
	assert.Equal(t, uint64(1), s.ModeToIdle)

	// the next Put starts a fresh synchronous drain
	require.NoError(t, e.Put(ctx, filled(t, pool, 4, 300)))
	assert.Equal(t, expectedWords(4, 300), rec.Values(fifo.TxData))
	assert.True(t, e.Running())
	assert.Equal(t, uint64(2), e.Stats().TxSync)
}

func TestTransmitInterruptWhileIdle(t *testing.T) {
	t.Parallel()

	e, rec, _ := newTestEngine(t, 512, DefaultConfig())

	rec.Raise(fifo.IntTFPE)
	e.HandleInterrupt()

	assert.Empty(t, rec.Values(fifo.TxData))
	assert.Zero(t, rec.Status())
	assert.False(t, e.Running())
	assert.Equal(t, uint64(1), e.Stats().InterruptsTx)
}

func TestEmptyChunks(t *testing.T) {
	t.Parallel()

	e, rec, pool := newTestEngine(t, 512, DefaultConfig())
	ctx := t.Context()

	// nothing written synchronously leaves polling mode in place
	require.NoError(t, e.Put(ctx, filled(t, pool, 0, 0)))
	assert.False(t, e.Running())
	assert.Equal(t, 4, pool.Available())

	require.NoError(t, e.Put(ctx, filled(t, pool, 8, 1)))
	require.True(t, e.Running())
	require.NoError(t, e.Put(ctx, filled(t, pool, 0, 0)))
	require.NoError(t, e.Put(ctx, filled(t, pool, 8, 50)))
	rec.Clear()

	// the empty chunk is released and the handler moves on
	rec.Raise(fifo.IntTFPE)
	e.HandleInterrupt()
	assert.Equal(t, expectedWords(8, 50), rec.Values(fifo.TxData))
	assert.Equal(t, 4, pool.Available())
}

func TestUnknownInterruptIsCleared(t *testing.T) {
	t.Parallel()

	e, rec, _ := newTestEngine(t, 512, DefaultConfig())

	rec.Raise(fifo.IntRPORE | fifo.IntTPOE)
	e.HandleInterrupt()

	assert.Equal(t, []uint32{fifo.IntRPORE | fifo.IntTPOE}, rec.Values(fifo.IntStatus))
	assert.Zero(t, rec.Status())
	assert.Empty(t, rec.Values(fifo.TxData))
	assert.Equal(t, uint64(1), e.Stats().InterruptsUnknown)
}

func TestSpuriousInterrupt(t *testing.T) {
	t.Parallel()

	e, rec, _ := newTestEngine(t, 512, DefaultConfig())

	e.HandleInterrupt()

	assert.Empty(t, rec.Writes())
	s := e.Stats()
	assert.Equal(t, uint64(1), s.Interrupts)
	assert.Equal(t, uint64(1), s.InterruptsSpurious)
	assert.Zero(t, s.InterruptsUnknown)
}

func TestPutRejectsForeignChunk(t *testing.T) {
	t.Parallel()

	e, rec, _ := newTestEngine(t, 512, DefaultConfig())
	other := newTestPool(t, 1)
	c, err := other.TryAcquire()
	require.NoError(t, err)

	err = e.Put(t.Context(), c)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Empty(t, rec.Writes())
}

func TestPutDropPolicy(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.TxQueueDepth = 1
	cfg.TxFullPolicy = TxFullDrop
	cfg.TxEnqueueTimeout = 5 * time.Millisecond
	e, _, pool := newTestEngine(t, 512, cfg)
	ctx := t.Context()

	require.NoError(t, e.Put(ctx, filled(t, pool, 4, 1)))
	require.NoError(t, e.Put(ctx, filled(t, pool, 4, 2)))

	dropped := filled(t, pool, 4, 3)
	err := e.Put(ctx, dropped)
	require.ErrorIs(t, err, ErrTxQueueFull)

	assert.Equal(t, chunk.StateFree, dropped.State())
	assert.Equal(t, 3, pool.Available())
	assert.Equal(t, uint64(1), e.Stats().TxDroppedQueueFull)
}

func TestPutRetryPolicyHonorsContext(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.TxQueueDepth = 1
	cfg.TxEnqueueTimeout = 5 * time.Millisecond
	e, _, pool := newTestEngine(t, 512, cfg)

	require.NoError(t, e.Put(t.Context(), filled(t, pool, 4, 1)))
	require.NoError(t, e.Put(t.Context(), filled(t, pool, 4, 2)))

	ctx, cancel := context.WithTimeout(t.Context(), 40*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := e.Put(ctx, filled(t, pool, 4, 3))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond, "retry should outlast one enqueue timeout")
	assert.Equal(t, 3, pool.Available())
	assert.Zero(t, e.Stats().TxDroppedQueueFull)
}

func TestSyncVacancyShortfall(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.VacancyTimeout = 5 * time.Millisecond
	e, rec, pool := newTestEngine(t, 8, cfg)

	err := e.Put(t.Context(), filled(t, pool, 16, 1))
	require.ErrorIs(t, err, ErrInsufficientFifoSpace)

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "0x0C", ee.GetContext()["register_offset"])

	assert.Empty(t, rec.Values(fifo.TxData))
	assert.False(t, e.Running())
	assert.Equal(t, 4, pool.Available())
	assert.Equal(t, uint64(1), e.Stats().TxDroppedFifoSpace)
}

func TestInterruptVacancyShortfall(t *testing.T) {
	t.Parallel()

	e, rec, pool := newTestEngine(t, 512, DefaultConfig())
	ctx := t.Context()

	require.NoError(t, e.Put(ctx, filled(t, pool, 16, 1)))
	require.NoError(t, e.Put(ctx, filled(t, pool, 16, 20)))
	require.NoError(t, e.Put(ctx, filled(t, pool, 16, 40)))
	rec.Clear()
	rec.SetVacancy(8)

	rec.Raise(fifo.IntTFPE)
	e.HandleInterrupt()

	assert.Empty(t, rec.Values(fifo.TxData))
	assert.True(t, e.Running(), "a dropped chunk does not end interrupt mode")
	assert.Equal(t, 3, pool.Available())
	assert.Equal(t, uint64(1), e.Stats().TxDroppedFifoSpace)

	rec.SetVacancy(512)
	rec.Raise(fifo.IntTFPE)
	e.HandleInterrupt()
	assert.Equal(t, expectedWords(16, 40), rec.Values(fifo.TxData))
}

// hookRegs runs onWrite after each register store
type hookRegs struct {
	*fifotest.Recorder
	onWrite func(off fifo.Offset)
}

func (h *hookRegs) WriteReg(off fifo.Offset, v uint32) {
	h.Recorder.WriteReg(off, v)
	if h.onWrite != nil {
		h.onWrite(off)
	}
}

func TestStaleMissedInterruptIsIgnored(t *testing.T) {
	t.Parallel()

	e, rec, pool := newTestEngine(t, 512, DefaultConfig())

	// a TFPE that lands while the task owns the FIFO is only noted
	e.state.Store(stateDraining)
	rec.Raise(fifo.IntTFPE)
	e.HandleInterrupt()
	assert.True(t, e.txMissed.Load())
	assert.Empty(t, rec.Values(fifo.TxData))
	e.state.Store(stateIdle)

	// a drain that starts afterwards writes anyway and needs no kick
	require.NoError(t, e.Put(t.Context(), filled(t, pool, 4, 7)))
	assert.False(t, e.txKick.Load())
	assert.True(t, e.Running())
}

func TestMissedInterruptDuringDrainKicks(t *testing.T) {
	t.Parallel()

	hook := &hookRegs{Recorder: fifotest.NewRecorder(512)}
	pool := newTestPool(t, 4)
	e, err := New(hook, nil, pool, DefaultConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)
	e.Start()

	fired := false
	hook.onWrite = func(off fifo.Offset) {
		if off == fifo.TxLength && !fired {
			fired = true
			hook.Raise(fifo.IntTFPE)
			e.HandleInterrupt()
		}
	}

	require.NoError(t, e.Put(t.Context(), filled(t, pool, 4, 1)))
	require.True(t, fired)
	assert.True(t, e.Running())
	assert.True(t, e.txKick.Load(), "the interrupt lost during the drain must be replayed")

	// the replay services transmit with no status bit latched
	require.NoError(t, e.Put(t.Context(), filled(t, pool, 4, 9)))
	hook.Clear()
	e.HandleInterrupt()
	assert.Equal(t, expectedWords(4, 9), hook.Values(fifo.TxData))
	assert.False(t, e.txKick.Load())
	assert.Zero(t, e.Stats().InterruptsSpurious)
}

func TestStopReturnsQueuedChunks(t *testing.T) {
	t.Parallel()

	e, rec, pool := newTestEngine(t, 512, DefaultConfig())
	ctx := t.Context()

	require.NoError(t, e.Put(ctx, filled(t, pool, 4, 1)))
	require.NoError(t, e.Put(ctx, filled(t, pool, 4, 2)))
	require.NoError(t, e.Put(ctx, filled(t, pool, 4, 3)))
	require.Equal(t, 2, pool.Available())

	require.NoError(t, e.Stop())

	assert.Equal(t, pool.Len(), pool.Available())
	assert.Equal(t, []uint32{0}, rec.Values(fifo.IntEnable))
	assert.False(t, e.Running())
}

func TestRecordMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewStreamMetrics(registry)
	require.NoError(t, err)

	rec := fifotest.NewRecorder(512)
	pool := newTestPool(t, 4)
	e, err := New(rec, nil, pool, DefaultConfig(), WithLogger(quietLogger()), WithMetrics(m))
	require.NoError(t, err)
	e.Start()

	require.NoError(t, e.Put(t.Context(), filled(t, pool, 4, 1)))
	e.RecordMetrics()
	e.RecordMetrics() // no new events, counters must not double

	assert.InDelta(t, 1, gathered(t, registry, "fifostream_stream_chunks_transmitted_total", "path", metrics.PathSync), 0)
	assert.InDelta(t, 1, gathered(t, registry, "fifostream_stream_running", "", ""), 0)
	assert.InDelta(t, 1, gathered(t, registry, "fifostream_stream_mode_transitions_total", "to", "running"), 0)
}

// gathered returns the value of the series of family name carrying label=value
func gathered(t *testing.T, registry *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if label != "" && !hasLabel(metric.GetLabel(), label, value) {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	t.Fatalf("series %s{%s=%q} not found", name, label, value)
	return 0
}

func hasLabel(pairs []*dto.LabelPair, name, value string) bool {
	for _, p := range pairs {
		if p.GetName() == name && p.GetValue() == value {
			return true
		}
	}
	return false
}
