package stream

import (
	"context"

	"github.com/tphakala/fifostream/internal/chunk"
	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/fifo"
	"github.com/tphakala/fifostream/internal/logger"
)

// Get blocks until a captured chunk is available or ctx ends. The caller
// owns the chunk and must Put or release it. Task context only.
func (e *Engine) Get(ctx context.Context) (*chunk.Chunk, error) {
	e.requestRxResume()

	c, err := e.rx.Receive(ctx, 0)
	if err != nil {
		return nil, errors.New(err).
			Component("stream").
			Category(errors.CategoryCancellation).
			Context("operation", "get").
			Build()
	}
	c.SetState(chunk.StateInFlight)

	e.requestRxResume()
	return c, nil
}

// requestRxResume asks interrupt context to re-enable receive if paused
func (e *Engine) requestRxResume() {
	if e.rxPaused.Load() && e.rxResume.CompareAndSwap(false, true) {
		e.disp.Raise()
	}
}

// serviceRx handles one RFPF in interrupt context
func (e *Engine) serviceRx() {
	if e.rx.IsFull() {
		e.counters.rxBackpressureFull.Add(1)
		e.pauseRx("rx queue full")
		return
	}

	c, ok := e.pool.AcquireFromInterrupt()
	if !ok {
		e.counters.rxBackpressurePool.Add(1)
		e.pauseRx("pool exhausted")
		return
	}

	occ := int(e.regs.ReadReg(fifo.RxOccupancy))
	samples := min(occ, c.Capacity()/chunk.SampleWidth)
	if samples == 0 {
		_ = e.pool.ReleaseFromInterrupt(c)
		return
	}

	slots := c.Uint32()[:samples]
	shift := e.cfg.DataShift
	for i := range slots {
		slots[i] = e.regs.ReadReg(fifo.RxData) >> shift
	}
	_ = c.SetUsed(samples * chunk.SampleWidth)

	c.SetState(chunk.StateQueued)
	if !e.rx.TrySend(c) {
		_ = e.pool.ReleaseFromInterrupt(c)
		e.counters.rxBackpressureFull.Add(1)
		e.pauseRx("rx queue full")
		return
	}
	e.counters.received.Add(1)
}

// pauseRx masks RFPF until Get makes room
func (e *Engine) pauseRx(reason string) {
	en := e.enable.Load() &^ fifo.IntRFPF
	e.enable.Store(en)
	e.regs.WriteReg(fifo.IntEnable, en)
	e.rxPaused.Store(true)

	if e.rxLimiter.Allow() {
		e.log.Warn("receive paused",
			logger.String("reason", reason),
			logger.Int("rx_queued", e.rx.Len()),
			logger.Int("pool_free", e.pool.Available()))
	}
}

// resumeRx re-enables RFPF after backpressure and services data already
// waiting in the FIFO. Interrupt context only.
func (e *Engine) resumeRx() {
	if !e.rxPaused.Load() {
		return
	}

	e.regs.WriteReg(fifo.IntStatus, fifo.IntRFPF)
	en := e.enable.Load() | fifo.IntRFPF
	e.enable.Store(en)
	e.regs.WriteReg(fifo.IntEnable, en)
	e.rxPaused.Store(false)
	e.counters.rxResumes.Add(1)

	e.log.Debug("receive resumed", logger.Int("rx_queued", e.rx.Len()))

	if e.regs.ReadReg(fifo.RxOccupancy) > 0 {
		e.serviceRx()
	}
}

// canResumeRx reports whether paused receive has somewhere to put data
func (e *Engine) canResumeRx() bool {
	return e.rxPaused.Load() && !e.rx.IsFull() && !e.pool.IsEmpty()
}
