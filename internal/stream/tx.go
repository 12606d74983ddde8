package stream

import (
	"context"
	"runtime"
	"time"

	"github.com/tphakala/fifostream/internal/chunk"
	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/fifo"
	"github.com/tphakala/fifostream/internal/logger"
	"github.com/tphakala/fifostream/internal/queue"
)

// Put hands a filled chunk to the transmit path. Ownership passes to the
// engine whatever the result; the chunk is back in the pool once written or
// dropped. Task context only.
func (e *Engine) Put(ctx context.Context, c *chunk.Chunk) error {
	if !e.pool.Owns(c) {
		return errors.Newf("put: chunk does not belong to the engine pool").
			Component("stream").
			Category(errors.CategoryValidation).
			Context("operation", "put").
			Build()
	}

	start := time.Now()
	defer func() { e.metrics.ObservePut(time.Since(start)) }()

	if e.state.CompareAndSwap(stateIdle, stateDraining) {
		return e.drainSync(ctx, c)
	}

	c.SetState(chunk.StateQueued)
	if err := e.enqueue(ctx, c); err != nil {
		return err
	}

	// The handler may have gone idle between our check and the enqueue.
	if e.state.CompareAndSwap(stateIdle, stateDraining) {
		return e.drainSync(ctx, nil)
	}
	return nil
}

// enqueue waits for room on the transmit queue, applying the full policy
func (e *Engine) enqueue(ctx context.Context, c *chunk.Chunk) error {
	for {
		err := e.tx.Send(ctx, c, e.cfg.TxEnqueueTimeout)
		if err == nil {
			return nil
		}

		if !errors.Is(err, queue.ErrTimeout) {
			_ = e.pool.Release(c)
			return errors.New(err).
				Component("stream").
				Category(errors.CategoryCancellation).
				Context("operation", "put").
				Build()
		}

		if e.cfg.TxFullPolicy == TxFullDrop {
			e.counters.txDropQueueFull.Add(1)
			if relErr := e.pool.Release(c); relErr != nil {
				return errors.Join(ErrTxQueueFull, relErr)
			}
			if e.txLimiter.Allow() {
				e.log.Warn("tx queue full, chunk dropped",
					logger.Int("queue_depth", e.tx.Cap()),
					logger.Uint64("dropped_total", e.counters.txDropQueueFull.Load()))
			}
			return ErrTxQueueFull
		}

		if e.txLimiter.Allow() {
			e.log.Warn("tx queue full",
				logger.Int("queue_depth", e.tx.Cap()),
				logger.Duration("timeout", e.cfg.TxEnqueueTimeout),
				logger.Bool("running", e.Running()))
		}
	}
}

// drainSync writes queued chunks and then c (if any) from task context.
// The caller must have moved the state to draining.
func (e *Engine) drainSync(ctx context.Context, c *chunk.Chunk) error {
	e.txMissed.Store(false)

	var firstErr error
	wrote := false
	write := func(c *chunk.Chunk) {
		n, err := e.writeSync(ctx, c)
		if n > 0 {
			wrote = true
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for {
		queued, ok := e.tx.TryReceive()
		if !ok {
			break
		}
		write(queued)
	}
	if c != nil {
		write(c)
	}

	if !wrote {
		e.state.Store(stateIdle)
		return firstErr
	}

	e.state.Store(stateRunning)
	e.counters.toRunning.Add(1)

	// A TFPE edge seen while we owned the FIFO was ignored by the handler.
	if e.txMissed.Swap(false) {
		e.txKick.Store(true)
		e.disp.Raise()
	}
	return firstErr
}

// writeSync spins for vacancy, writes c and releases it. It returns the
// number of samples written.
func (e *Engine) writeSync(ctx context.Context, c *chunk.Chunk) (int, error) {
	c.SetState(chunk.StateInFlight)
	samples := c.Samples()

	deadline := time.Now().Add(e.cfg.VacancyTimeout)
	for vac := e.regs.ReadReg(fifo.TxVacancy); int(vac) < samples; vac = e.regs.ReadReg(fifo.TxVacancy) {
		if err := ctx.Err(); err != nil {
			_ = e.pool.Release(c)
			return 0, errors.New(err).
				Component("stream").
				Category(errors.CategoryCancellation).
				Context("operation", "transmit_sync").
				Build()
		}
		if time.Now().After(deadline) {
			e.counters.txDropFifoSpace.Add(1)
			e.log.Warn("insufficient fifo space, chunk dropped",
				logger.Int("chunk_id", c.ID()),
				logger.Int("samples", samples),
				logger.Int("vacancy", int(vac)),
				logger.Duration("waited", e.cfg.VacancyTimeout))
			err := errors.New(ErrInsufficientFifoSpace).
				Component("stream").
				Category(errors.CategoryFifoSpace).
				Context("operation", "transmit_sync").
				Context("samples", samples).
				RegisterContext(uint32(fifo.TxVacancy), vac).
				Build()
			if relErr := e.pool.Release(c); relErr != nil {
				return 0, errors.Join(err, relErr)
			}
			return 0, err
		}
		runtime.Gosched()
	}

	e.writeSamples(c, samples)
	if samples > 0 {
		e.counters.txSync.Add(1)
	}
	return samples, e.pool.Release(c)
}

// writeSamples pushes each slot followed by a one-word commit strobe
func (e *Engine) writeSamples(c *chunk.Chunk, samples int) {
	shift := e.cfg.DataShift
	for _, slot := range c.Uint32()[:samples] {
		e.regs.WriteReg(fifo.TxData, (slot&e.mask)<<shift)
		e.regs.WriteReg(fifo.TxLength, 1)
	}
}

// serviceTx handles one TFPE in interrupt context: at most one chunk is
// written per invocation.
func (e *Engine) serviceTx() {
	if e.state.Load() != stateRunning {
		e.txMissed.Store(true)
		// The task may have taken running before it could see the flag.
		if e.state.Load() != stateRunning || !e.txMissed.CompareAndSwap(true, false) {
			return
		}
	}

	for {
		c, ok := e.nextTx()
		if !ok {
			return
		}

		samples := c.Samples()
		if samples == 0 {
			_ = e.pool.ReleaseFromInterrupt(c)
			continue
		}

		if vac := e.regs.ReadReg(fifo.TxVacancy); int(vac) < samples {
			_ = e.pool.ReleaseFromInterrupt(c)
			e.counters.txDropFifoSpace.Add(1)
			if e.txLimiter.Allow() {
				e.log.Warn("insufficient fifo space in interrupt, chunk dropped",
					logger.Int("chunk_id", c.ID()),
					logger.Int("samples", samples),
					logger.Int("vacancy", int(vac)),
					logger.Uint64("dropped_total", e.counters.txDropFifoSpace.Load()))
			}
			return
		}

		e.writeSamples(c, samples)
		_ = e.pool.ReleaseFromInterrupt(c)
		e.counters.txInterrupt.Add(1)
		return
	}
}

// nextTx dequeues the next chunk while running. On an empty queue it drops
// to idle, then reclaims running if the task enqueued in the meantime.
func (e *Engine) nextTx() (*chunk.Chunk, bool) {
	if c, ok := e.tx.TryReceive(); ok {
		c.SetState(chunk.StateInFlight)
		return c, true
	}

	e.state.Store(stateIdle)
	if e.tx.IsEmpty() || !e.state.CompareAndSwap(stateIdle, stateRunning) {
		e.counters.toIdle.Add(1)
		return nil, false
	}

	c, ok := e.tx.TryReceive()
	if !ok {
		e.state.Store(stateIdle)
		e.counters.toIdle.Add(1)
		return nil, false
	}
	c.SetState(chunk.StateInFlight)
	return c, true
}
