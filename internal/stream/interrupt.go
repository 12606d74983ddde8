package stream

import (
	"github.com/tphakala/fifostream/internal/fifo"
	"github.com/tphakala/fifostream/internal/logger"
)

// HandleInterrupt services one hardware or software interrupt. It runs only
// on the dispatcher goroutine and never blocks.
//
// Transmit and receive causes are serviced independently in one invocation.
// A status with neither enabled cause is written back to clear it.
func (e *Engine) HandleInterrupt() {
	e.counters.interrupts.Add(1)

	resume := e.rxResume.Swap(false)
	kick := e.txKick.Swap(false)
	if resume {
		e.resumeRx()
	}

	status := e.regs.ReadReg(fifo.IntStatus)
	pending := status & e.enable.Load()

	if pending&fifo.IntTFPE != 0 {
		e.regs.WriteReg(fifo.IntStatus, fifo.IntTFPE)
		e.counters.intTx.Add(1)
		e.serviceTx()
	} else if kick {
		e.serviceTx()
	}

	if pending&fifo.IntRFPF != 0 {
		e.regs.WriteReg(fifo.IntStatus, fifo.IntRFPF)
		e.counters.intRx.Add(1)
		e.serviceRx()
	}

	// transmit may have freed the chunks receive was waiting for
	if e.canResumeRx() {
		e.resumeRx()
		resume = true
	}

	if pending&(fifo.IntTFPE|fifo.IntRFPF) != 0 || resume || kick {
		return
	}

	if status == 0 {
		e.counters.intSpurious.Add(1)
		return
	}

	e.regs.WriteReg(fifo.IntStatus, status)
	e.counters.intUnknown.Add(1)
	if e.intLimiter.Allow() {
		e.log.Debug("unknown interrupt cleared",
			logger.Hex("status", status),
			logger.Hex("enable", e.enable.Load()),
			logger.Error(ErrUnknownInterrupt))
	}
}
