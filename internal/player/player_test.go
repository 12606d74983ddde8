package player

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/fifostream/internal/bufferpool"
	"github.com/tphakala/fifostream/internal/chunk"
	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/fifo"
	"github.com/tphakala/fifostream/internal/logger"
	"github.com/tphakala/fifostream/internal/observability/metrics"
	"github.com/tphakala/fifostream/internal/sample"
	"github.com/tphakala/fifostream/internal/stream"
	"github.com/tphakala/fifostream/internal/testutil"
)

const simRate = 96000

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, time.UTC)
}

type rig struct {
	sim    *fifo.Sim
	pool   *bufferpool.Pool
	engine *stream.Engine

	mu     sync.Mutex
	output []uint32
}

func newRig(t *testing.T, loopback, receive bool) *rig {
	t.Helper()
	r := &rig{}

	sim, err := fifo.NewSim(fifo.SimConfig{
		Depth:            512,
		TxEmptyThreshold: 64,
		RxFullThreshold:  96,
		Loopback:         loopback,
	}, fifo.WithOutput(func(w uint32) {
		r.mu.Lock()
		r.output = append(r.output, w)
		r.mu.Unlock()
	}))
	require.NoError(t, err)
	r.sim = sim

	r.pool, err = bufferpool.New(bufferpool.Config{Chunks: 8, ChunkSize: 512}, bufferpool.WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.pool.Close() })

	cfg := stream.DefaultConfig()
	cfg.Receive = receive
	r.engine, err = stream.New(sim, sim, r.pool, cfg, stream.WithLogger(quietLogger()))
	require.NoError(t, err)
	return r
}

// clock runs the simulator until the returned stop function is called
func (r *rig) clock(t *testing.T) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var g errgroup.Group
	g.Go(func() error { return r.sim.Run(ctx, simRate) })
	return func() {
		cancel()
		require.NoError(t, g.Wait())
	}
}

func (r *rig) played() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint32(nil), r.output...)
}

// memorySink collects received slots
type memorySink struct {
	mu     sync.Mutex
	slots  []uint32
	closed bool
}

func (s *memorySink) Write(c *chunk.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = append(s.slots, c.Uint32()[:c.Samples()]...)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

type failingCodec struct{}

func (failingCodec) Initialize() error { return errors.NewStd("i2c nack") }

func counting(n int) []uint32 {
	slots := make([]uint32, n)
	for i := range slots {
		slots[i] = uint32(i + 1)
	}
	return slots
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	r := newRig(t, false, false)

	tests := []struct {
		name string
		cfg  Config
		opts []Option
	}{
		{"playback without source", Config{Mode: ModePlayback}, nil},
		{"record without sink", Config{Mode: ModeRecord}, nil},
		{"unknown mode", Config{Mode: "karaoke"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := New(r.engine, r.pool, tt.cfg, tt.opts...)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
		})
	}

	_, err := New(nil, r.pool, Config{Mode: ModeLoopback})
	require.Error(t, err)

	p, err := New(r.engine, r.pool, Config{Mode: ModeLoopback})
	require.NoError(t, err)
	assert.Equal(t, DefaultStatsInterval, p.cfg.StatsInterval)
	assert.Equal(t, DefaultPoolName, p.cfg.PoolName)
}

func TestCodecFailureAbortsRun(t *testing.T) {
	t.Parallel()

	r := newRig(t, false, false)
	p, err := New(r.engine, r.pool, Config{Mode: ModeLoopback},
		WithCodec(failingCodec{}), WithLogger(quietLogger()))
	require.NoError(t, err)

	err = p.Run(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryHardware))
	assert.Contains(t, err.Error(), "i2c nack")
}

func TestPlaybackDrainsSource(t *testing.T) {
	t.Parallel()

	r := newRig(t, false, false)
	const total = 128 * 20
	table := sample.NewTable(counting(total), false)

	registry := prometheus.NewRegistry()
	pm, err := metrics.NewPoolMetrics(registry)
	require.NoError(t, err)

	p, err := New(r.engine, r.pool, Config{Mode: ModePlayback, StatsInterval: 20 * time.Millisecond},
		WithSource(table), WithPoolMetrics(pm), WithLogger(quietLogger()))
	require.NoError(t, err)

	stop := r.clock(t)
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	s := r.engine.Stats()
	if s.TxDroppedFifoSpace == 0 {
		// the FIFO tail plays out after the engine goes idle
		require.Eventually(t, func() bool { return len(r.played()) == total }, 2*time.Second, time.Millisecond)
	}
	stop()

	assert.Equal(t, uint64(20), s.TxSync+s.TxInterrupt+s.TxDroppedFifoSpace)
	assert.False(t, s.Running)
	assert.Equal(t, r.pool.Len(), r.pool.Available())

	// whatever was played came out in order
	out := r.played()
	require.NotEmpty(t, out)
	for i := 1; i < len(out); i++ {
		require.Greater(t, out[i], out[i-1], "word %d out of order", i)
	}
	if s.TxDroppedFifoSpace == 0 {
		assert.Equal(t, uint32(total)<<stream.DefaultDataShift, out[len(out)-1])
	}
}

func TestRecordCapturesInOrder(t *testing.T) {
	t.Parallel()

	r := newRig(t, false, true)
	r.sim.SetCapture(true)
	sink := &memorySink{}

	p, err := New(r.engine, r.pool, Config{Mode: ModeRecord}, WithSink(sink), WithLogger(quietLogger()))
	require.NoError(t, err)

	stop := r.clock(t)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.len() >= 1000 }, testutil.DefaultTestTimeout, testutil.PollInterval)
	cancel()
	require.NoError(t, <-done)
	stop()

	assert.Positive(t, p.Chunks())
	assert.Equal(t, r.pool.Len(), r.pool.Available())
	assert.False(t, sink.closed, "the caller owns the sink")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i := 1; i < len(sink.slots); i++ {
		require.Greater(t, sink.slots[i], sink.slots[i-1], "slot %d out of order", i)
	}
}

func TestLoopbackReplaysCapture(t *testing.T) {
	t.Parallel()

	r := newRig(t, false, true)
	r.sim.SetCapture(true)

	p, err := New(r.engine, r.pool, Config{Mode: ModeLoopback}, WithLogger(quietLogger()))
	require.NoError(t, err)

	stop := r.clock(t)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(r.played()) >= 1000 }, testutil.DefaultTestTimeout, testutil.PollInterval)
	cancel()
	require.NoError(t, <-done)
	stop()

	assert.Positive(t, p.Chunks())
	assert.Equal(t, r.pool.Len(), r.pool.Available())

	out := r.played()
	for i := 1; i < len(out); i++ {
		require.Greater(t, out[i], out[i-1], "word %d out of order", i)
	}
}
