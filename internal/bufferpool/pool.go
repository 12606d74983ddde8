// Package bufferpool implements the fixed set of pre-allocated chunks that
// circulate through the streaming pipeline. The pool is created once; no
// chunk is ever allocated or freed after New returns.
package bufferpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/fifostream/internal/chunk"
	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/logger"
	"github.com/tphakala/fifostream/internal/observability/metrics"
)

// DefaultReleaseTimeout bounds the task-context release wait
const DefaultReleaseTimeout = 10 * time.Millisecond

// Config describes the pool geometry
type Config struct {
	Chunks         int           // number of chunks, fixed for the pool lifetime
	ChunkSize      int           // bytes per chunk, a multiple of chunk.SampleWidth
	Backing        Backing       // heap or mmap
	ReleaseTimeout time.Duration // task-context release wait; 0 means DefaultReleaseTimeout
}

// Option configures a Pool
type Option func(*Pool)

// WithLogger overrides the module logger
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// Pool owns N equally sized chunks carved from one arena. The free list is a
// buffered channel of capacity N, so free + outstanding == N at all times.
type Pool struct {
	cfg    Config
	arena  []byte
	unmap  func() error
	chunks []*chunk.Chunk
	free   chan *chunk.Chunk
	log    logger.Logger
	closed atomic.Bool

	taskAcquires  atomic.Uint64
	irqAcquires   atomic.Uint64
	taskExhausted atomic.Uint64
	irqExhausted  atomic.Uint64
	taskReleases  atomic.Uint64
	irqReleases   atomic.Uint64
	faults        atomic.Uint64
	lowWatermark  atomic.Int64

	metricsMu   sync.Mutex
	lastMetrics metrics.PoolSnapshot
}

// Stats is a point-in-time view of pool counters
type Stats struct {
	Chunks        int
	ChunkSize     int
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

// New allocates the arena and fills the free list with every chunk.
// It never returns a partially built pool.
func New(cfg Config, opts ...Option) (*Pool, error) {
	if cfg.Chunks <= 0 || cfg.ChunkSize <= 0 || cfg.ChunkSize%chunk.SampleWidth != 0 {
		return nil, errors.Newf("invalid pool geometry: %d chunks of %d bytes", cfg.Chunks, cfg.ChunkSize).
			Component("bufferpool").
			Category(errors.CategoryStreamInit).
			Context("operation", "create_pool").
			Context("chunks", cfg.Chunks).
			Context("chunk_size", cfg.ChunkSize).
			Build()
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = DefaultReleaseTimeout
	}
	if cfg.Backing == "" {
		cfg.Backing = BackingHeap
	}

	p := &Pool{
		cfg: cfg,
		log: GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	arena, unmap, err := allocArena(cfg.Backing, cfg.Chunks*cfg.ChunkSize)
	if err != nil {
		return nil, errors.New(err).
			Component("bufferpool").
			Category(errors.CategoryStreamInit).
			Context("operation", "alloc_arena").
			Context("backing", string(cfg.Backing)).
			Context("arena_bytes", cfg.Chunks*cfg.ChunkSize).
			Build()
	}

	p.arena = arena
	p.unmap = unmap
	p.chunks = make([]*chunk.Chunk, cfg.Chunks)
	p.free = make(chan *chunk.Chunk, cfg.Chunks)

	for i := range cfg.Chunks {
		off := i * cfg.ChunkSize
		c, err := chunk.New(i, arena[off:off+cfg.ChunkSize:off+cfg.ChunkSize])
		if err != nil {
			_ = unmap()
			return nil, errors.New(err).
				Component("bufferpool").
				Category(errors.CategoryStreamInit).
				Context("operation", "carve_chunk").
				Context("chunk_id", i).
				Build()
		}
		p.chunks[i] = c
		p.free <- c
	}
	p.lowWatermark.Store(int64(cfg.Chunks))

	p.log.Debug("buffer pool created",
		logger.Int("chunks", cfg.Chunks),
		logger.Int("chunk_size", cfg.ChunkSize),
		logger.String("backing", string(cfg.Backing)))

	return p, nil
}

// Acquire takes a free chunk, blocking until one is released or ctx ends.
// Task context only.
func (p *Pool) Acquire(ctx context.Context) (*chunk.Chunk, error) {
	select {
	case c := <-p.free:
		p.taskAcquires.Add(1)
		return p.prepare(c), nil
	default:
	}

	p.taskExhausted.Add(1)
	select {
	case c := <-p.free:
		p.taskAcquires.Add(1)
		return p.prepare(c), nil
	case <-ctx.Done():
		return nil, errors.New(ctx.Err()).
			Component("bufferpool").
			Category(errors.CategoryCancellation).
			Context("operation", "acquire").
			Build()
	}
}

// TryAcquire takes a free chunk without blocking
func (p *Pool) TryAcquire() (*chunk.Chunk, error) {
	select {
	case c := <-p.free:
		p.taskAcquires.Add(1)
		return p.prepare(c), nil
	default:
		p.taskExhausted.Add(1)
		return nil, ErrPoolExhausted
	}
}

// AcquireFromInterrupt takes a free chunk without blocking. The boolean is
// false when the pool is exhausted. Safe from the interrupt dispatcher.
func (p *Pool) AcquireFromInterrupt() (*chunk.Chunk, bool) {
	select {
	case c := <-p.free:
		p.irqAcquires.Add(1)
		return p.prepare(c), true
	default:
		p.irqExhausted.Add(1)
		return nil, false
	}
}

func (p *Pool) prepare(c *chunk.Chunk) *chunk.Chunk {
	c.Reset()
	c.SetState(chunk.StateFilling)
	p.trackLowWatermark()
	return c
}

func (p *Pool) trackLowWatermark() {
	n := int64(len(p.free))
	for {
		low := p.lowWatermark.Load()
		if n >= low || p.lowWatermark.CompareAndSwap(low, n) {
			return
		}
	}
}

// Release returns c to the free list, waiting at most ReleaseTimeout.
// Task context only.
func (p *Pool) Release(c *chunk.Chunk) error {
	prev, err := p.reclaim(c, "release")
	if err != nil {
		return err
	}

	select {
	case p.free <- c:
		p.taskReleases.Add(1)
		return nil
	default:
	}

	timer := time.NewTimer(p.cfg.ReleaseTimeout)
	defer timer.Stop()
	select {
	case p.free <- c:
		p.taskReleases.Add(1)
		return nil
	case <-timer.C:
		c.SetState(prev)
		return p.fault(c, "release", "free list full")
	}
}

// ReleaseFromInterrupt returns c to the free list without blocking
func (p *Pool) ReleaseFromInterrupt(c *chunk.Chunk) error {
	prev, err := p.reclaim(c, "release_from_interrupt")
	if err != nil {
		return err
	}

	select {
	case p.free <- c:
		p.irqReleases.Add(1)
		return nil
	default:
		c.SetState(prev)
		return p.fault(c, "release_from_interrupt", "free list full")
	}
}

// reclaim marks an owned, non-free chunk Free and returns its previous state
func (p *Pool) reclaim(c *chunk.Chunk, op string) (chunk.State, error) {
	if !p.Owns(c) {
		return 0, p.fault(c, op, "chunk does not belong to this pool")
	}
	for {
		prev := c.State()
		if prev == chunk.StateFree {
			return 0, p.fault(c, op, "chunk released twice")
		}
		if c.Transition(prev, chunk.StateFree) {
			return prev, nil
		}
	}
}

func (p *Pool) fault(c *chunk.Chunk, op, reason string) error {
	p.faults.Add(1)

	id := -1
	if c != nil {
		id = c.ID()
	}

	err := errors.New(ErrPoolFull).
		Component("bufferpool").
		Category(errors.CategoryPoolFull).
		Priority(errors.PriorityHigh).
		Context("operation", op).
		Context("reason", reason).
		Context("chunk_id", id).
		Context("free", len(p.free)).
		Build()

	p.log.Error("buffer pool accounting fault",
		logger.String("operation", op),
		logger.String("reason", reason),
		logger.Int("chunk_id", id),
		logger.Int("free", len(p.free)),
		logger.Int("chunks", p.cfg.Chunks))

	return err
}

// Owns reports whether c was carved from this pool
func (p *Pool) Owns(c *chunk.Chunk) bool {
	if c == nil {
		return false
	}
	id := c.ID()
	return id >= 0 && id < len(p.chunks) && p.chunks[id] == c
}

// IsEmpty reports whether the free list is empty. Diagnostic snapshot only.
func (p *Pool) IsEmpty() bool { return len(p.free) == 0 }

// Available returns the free-list length. Diagnostic snapshot only.
func (p *Pool) Available() int { return len(p.free) }

// Len returns the total number of chunks
func (p *Pool) Len() int { return p.cfg.Chunks }

// ChunkSize returns the capacity of every chunk in bytes
func (p *Pool) ChunkSize() int { return p.cfg.ChunkSize }

// GetStats returns the current pool statistics
func (p *Pool) GetStats() Stats {
	return Stats{
		Chunks:        p.cfg.Chunks,
		ChunkSize:     p.cfg.ChunkSize,
		Free:          len(p.free),
		LowWatermark:  int(p.lowWatermark.Load()),
		TaskAcquires:  p.taskAcquires.Load(),
		IRQAcquires:   p.irqAcquires.Load(),
		TaskExhausted: p.taskExhausted.Load(),
		IRQExhausted:  p.irqExhausted.Load(),
		TaskReleases:  p.taskReleases.Load(),
		IRQReleases:   p.irqReleases.Load(),
		Faults:        p.faults.Load(),
	}
}

// RecordMetrics publishes pool statistics. Call periodically from one goroutine.
func (p *Pool) RecordMetrics(m *metrics.PoolMetrics, poolName string) {
	if m == nil {
		return
	}

	s := p.GetStats()
	cur := metrics.PoolSnapshot{
		Chunks:        s.Chunks,
		Free:          s.Free,
		LowWatermark:  s.LowWatermark,
		TaskAcquires:  s.TaskAcquires,
		IRQAcquires:   s.IRQAcquires,
		TaskExhausted: s.TaskExhausted,
		IRQExhausted:  s.IRQExhausted,
		TaskReleases:  s.TaskReleases,
		IRQReleases:   s.IRQReleases,
		Faults:        s.Faults,
	}

	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()
	m.RecordSnapshot(poolName, p.lastMetrics, cur)
	p.lastMetrics = cur
}

// Close releases the arena. Chunks must not be touched afterwards, so call
// it only once streaming has stopped.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := p.unmap(); err != nil {
		return errors.New(err).
			Component("bufferpool").
			Category(errors.CategorySystem).
			Context("operation", "unmap_arena").
			Build()
	}
	return nil
}
