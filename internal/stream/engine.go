// Package stream implements the duplex streaming engine that moves chunks
// between the handoff queues and the hardware FIFO.
//
// Transmit starts in polling mode: the first Put writes its chunk to the
// FIFO synchronously and hands draining over to the interrupt handler. From
// then on Put only enqueues, and each transmit-programmable-empty interrupt
// writes one queued chunk. When the handler finds the queue empty it returns
// the engine to polling mode.
//
// The mode flag has three states. idle means the task may claim the FIFO;
// draining means the task owns it for a synchronous drain; running means the
// interrupt handler owns it. Both sides claim ownership with compare-and-swap,
// so the task and the handler never write TX_DATA at the same time.
package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tphakala/fifostream/internal/bufferpool"
	"github.com/tphakala/fifostream/internal/chunk"
	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/fifo"
	"github.com/tphakala/fifostream/internal/irq"
	"github.com/tphakala/fifostream/internal/logger"
	"github.com/tphakala/fifostream/internal/observability/metrics"
	"github.com/tphakala/fifostream/internal/queue"
)

const (
	stateIdle uint32 = iota
	stateDraining
	stateRunning
)

// Option configures an Engine
type Option func(*Engine)

// WithLogger overrides the module logger
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics enables Prometheus recording
func WithMetrics(m *metrics.StreamMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine streams chunks to and from one FIFO. One task goroutine calls Put
// and Get; the interrupt dispatcher started by Serve calls HandleInterrupt.
type Engine struct {
	id   string
	regs fifo.Registers
	pool *bufferpool.Pool
	cfg  Config
	mask uint32 // valid sample bits before shifting

	tx   *queue.Queue[*chunk.Chunk]
	rx   *queue.Queue[*chunk.Chunk]
	disp *irq.Dispatcher

	state    atomic.Uint32
	enable   atomic.Uint32 // shadow of INT_ENABLE; written by interrupt context after Start
	txMissed atomic.Bool   // TFPE arrived while the task owned the FIFO
	txKick   atomic.Bool   // task asks the handler to service transmit
	rxPaused atomic.Bool
	rxResume atomic.Bool

	log        logger.Logger
	metrics    *metrics.StreamMetrics
	txLimiter  *rate.Limiter
	rxLimiter  *rate.Limiter
	intLimiter *rate.Limiter

	counters counters

	metricsMu   sync.Mutex
	lastMetrics metrics.StreamSnapshot
}

type counters struct {
	txSync             atomic.Uint64
	txInterrupt        atomic.Uint64
	received           atomic.Uint64
	txDropFifoSpace    atomic.Uint64
	txDropQueueFull    atomic.Uint64
	rxBackpressureFull atomic.Uint64
	rxBackpressurePool atomic.Uint64
	rxResumes          atomic.Uint64
	interrupts         atomic.Uint64
	intTx              atomic.Uint64
	intRx              atomic.Uint64
	intUnknown         atomic.Uint64
	intSpurious        atomic.Uint64
	toRunning          atomic.Uint64
	toIdle             atomic.Uint64
}

// Stats is a snapshot of engine counters
type Stats struct {
	TxSync                  uint64 // chunks written by the task in polling mode
	TxInterrupt             uint64 // chunks written by the interrupt handler
	Received                uint64 // chunks captured and queued for Get
	TxDroppedFifoSpace      uint64
	TxDroppedQueueFull      uint64
	RxBackpressureQueueFull uint64
	RxBackpressurePool      uint64
	RxResumes               uint64
	Interrupts              uint64
	InterruptsTx            uint64
	InterruptsRx            uint64
	InterruptsUnknown       uint64
	InterruptsSpurious      uint64
	InterruptsSoft          uint64
	ModeToRunning           uint64
	ModeToIdle              uint64
	Running                 bool
	RxPaused                bool
	TxQueued                int
	RxQueued                int
}

// New creates an engine. line may be nil when interrupts are driven by
// calling HandleInterrupt directly.
func New(regs fifo.Registers, line irq.Line, pool *bufferpool.Pool, cfg Config, opts ...Option) (*Engine, error) {
	if regs == nil || pool == nil {
		return nil, errors.Newf("stream engine requires registers and a buffer pool").
			Component("stream").
			Category(errors.CategoryStreamInit).
			Context("operation", "create_engine").
			Build()
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tx, err := queue.New[*chunk.Chunk](cfg.TxQueueDepth)
	if err != nil {
		return nil, errors.New(err).
			Component("stream").
			Category(errors.CategoryStreamInit).
			Context("operation", "create_tx_queue").
			Build()
	}
	rx, err := queue.New[*chunk.Chunk](cfg.RxQueueDepth)
	if err != nil {
		return nil, errors.New(err).
			Component("stream").
			Category(errors.CategoryStreamInit).
			Context("operation", "create_rx_queue").
			Build()
	}

	every := rate.Every(cfg.LogInterval)
	e := &Engine{
		id:         uuid.NewString(),
		regs:       regs,
		pool:       pool,
		cfg:        cfg,
		mask:       ^uint32(0) >> cfg.DataShift,
		tx:         tx,
		rx:         rx,
		txLimiter:  rate.NewLimiter(every, 1),
		rxLimiter:  rate.NewLimiter(every, 1),
		intLimiter: rate.NewLimiter(every, 1),
	}
	e.disp = irq.NewDispatcher(line, e)

	e.log = GetLogger()
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(logger.String("engine_id", e.id))

	e.log.Debug("stream engine created",
		logger.Int("tx_queue_depth", cfg.TxQueueDepth),
		logger.Int("rx_queue_depth", cfg.RxQueueDepth),
		logger.String("tx_full_policy", string(cfg.TxFullPolicy)),
		logger.Bool("receive", cfg.Receive))

	return e, nil
}

// ID returns the engine identifier used in logs
func (e *Engine) ID() string { return e.id }

// Running reports whether the interrupt handler owns transmit draining
func (e *Engine) Running() bool { return e.state.Load() == stateRunning }

// Reset writes the reset key to both FIFO directions
func (e *Engine) Reset() {
	e.regs.WriteReg(fifo.TxReset, fifo.ResetKey)
	e.regs.WriteReg(fifo.RxReset, fifo.ResetKey)
}

// Start resets the FIFO, clears latched status and enables the transmit
// interrupt, plus the receive interrupt when configured. Call before Serve.
func (e *Engine) Start() {
	e.Reset()
	e.regs.WriteReg(fifo.IntStatus, ^uint32(0))

	en := fifo.IntTFPE
	if e.cfg.Receive {
		en |= fifo.IntRFPF
	}
	e.state.Store(stateIdle)
	e.rxPaused.Store(false)
	e.enable.Store(en)
	e.regs.WriteReg(fifo.IntEnable, en)

	e.log.Info("stream engine started",
		logger.Hex("int_enable", en),
		logger.Int("pool_chunks", e.pool.Len()),
		logger.Int("chunk_size", e.pool.ChunkSize()))
}

// Serve runs interrupt dispatch until ctx ends
func (e *Engine) Serve(ctx context.Context) error {
	return e.disp.Serve(ctx)
}

// Stop masks every interrupt and returns all queued chunks to the pool.
// Call after Serve has returned.
func (e *Engine) Stop() error {
	e.enable.Store(0)
	e.regs.WriteReg(fifo.IntEnable, 0)
	e.state.Store(stateIdle)

	var errs []error
	for _, q := range []*queue.Queue[*chunk.Chunk]{e.tx, e.rx} {
		for {
			c, ok := q.TryReceive()
			if !ok {
				break
			}
			if err := e.pool.Release(c); err != nil {
				errs = append(errs, err)
			}
		}
	}

	s := e.Stats()
	e.log.Info("stream engine stopped",
		logger.Uint64("tx_sync", s.TxSync),
		logger.Uint64("tx_interrupt", s.TxInterrupt),
		logger.Uint64("received", s.Received),
		logger.Uint64("tx_dropped", s.TxDroppedFifoSpace+s.TxDroppedQueueFull))

	return errors.Join(errs...)
}

// Stats returns the current counters
func (e *Engine) Stats() Stats {
	c := &e.counters
	return Stats{
		TxSync:                  c.txSync.Load(),
		TxInterrupt:             c.txInterrupt.Load(),
		Received:                c.received.Load(),
		TxDroppedFifoSpace:      c.txDropFifoSpace.Load(),
		TxDroppedQueueFull:      c.txDropQueueFull.Load(),
		RxBackpressureQueueFull: c.rxBackpressureFull.Load(),
		RxBackpressurePool:      c.rxBackpressurePool.Load(),
		RxResumes:               c.rxResumes.Load(),
		Interrupts:              c.interrupts.Load(),
		InterruptsTx:            c.intTx.Load(),
		InterruptsRx:            c.intRx.Load(),
		InterruptsUnknown:       c.intUnknown.Load(),
		InterruptsSpurious:      c.intSpurious.Load(),
		InterruptsSoft:          e.disp.SoftServed(),
		ModeToRunning:           c.toRunning.Load(),
		ModeToIdle:              c.toIdle.Load(),
		Running:                 e.Running(),
		RxPaused:                e.rxPaused.Load(),
		TxQueued:                e.tx.Len(),
		RxQueued:                e.rx.Len(),
	}
}

// RecordMetrics publishes engine statistics. Call periodically from one goroutine.
func (e *Engine) RecordMetrics() {
	if e.metrics == nil {
		return
	}

	s := e.Stats()
	cur := metrics.StreamSnapshot{
		TxSync:             s.TxSync,
		TxInterrupt:        s.TxInterrupt,
		Received:           s.Received,
		TxDropFifoSpace:    s.TxDroppedFifoSpace,
		TxDropQueueFull:    s.TxDroppedQueueFull,
		RxBackpressureFull: s.RxBackpressureQueueFull,
		RxBackpressurePool: s.RxBackpressurePool,
		RxResumes:          s.RxResumes,
		IntTx:              s.InterruptsTx,
		IntRx:              s.InterruptsRx,
		IntUnknown:         s.InterruptsUnknown,
		IntSpurious:        s.InterruptsSpurious,
		IntSoft:            s.InterruptsSoft,
		ToRunning:          s.ModeToRunning,
		ToIdle:             s.ModeToIdle,
		Running:            s.Running,
		TxQueued:           s.TxQueued,
		RxQueued:           s.RxQueued,
	}

	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	e.metrics.RecordSnapshot(e.lastMetrics, cur)
	e.lastMetrics = cur
}
