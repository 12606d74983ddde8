package irq

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/logger"
)

// Dispatcher delivers hardware and software interrupts to one handler from
// a single goroutine
type Dispatcher struct {
	line    Line
	handler Handler
	soft    chan struct{}
	running atomic.Bool

	hwServed   atomic.Uint64
	softServed atomic.Uint64
}

// NewDispatcher creates a dispatcher for line. line may be nil when only
// software interrupts are used.
func NewDispatcher(line Line, h Handler) *Dispatcher {
	return &Dispatcher{
		line:    line,
		handler: h,
		soft:    make(chan struct{}, 1),
	}
}

// Raise requests a software interrupt. It never blocks; requests raised
// before the handler runs coalesce into one invocation.
func (d *Dispatcher) Raise() {
	select {
	case d.soft <- struct{}{}:
	default:
	}
}

// Served returns the number of handler invocations
func (d *Dispatcher) Served() uint64 {
	return d.hwServed.Load() + d.softServed.Load()
}

// SoftServed returns the number of invocations caused by Raise
func (d *Dispatcher) SoftServed() uint64 {
	return d.softServed.Load()
}

// Serve runs the dispatcher until ctx ends. It returns nil on cancellation
// and the first line error otherwise.
func (d *Dispatcher) Serve(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.Newf("interrupt dispatcher already serving").
			Component("irq").
			Category(errors.CategoryState).
			Build()
	}
	defer d.running.Store(false)

	log := GetLogger()
	g, ctx := errgroup.WithContext(ctx)
	hw := make(chan struct{})

	if d.line != nil {
		g.Go(func() error {
			for {
				if err := d.line.Wait(ctx); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return errors.New(err).
						Component("irq").
						Category(errors.CategoryHardware).
						Context("operation", "wait").
						Build()
				}
				select {
				case hw <- struct{}{}:
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hw:
				d.handler.HandleInterrupt()
				d.hwServed.Add(1)
				if err := d.line.Rearm(); err != nil {
					return errors.New(err).
						Component("irq").
						Category(errors.CategoryHardware).
						Context("operation", "rearm").
						Build()
				}
			case <-d.soft:
				d.handler.HandleInterrupt()
				d.softServed.Add(1)
			}
		}
	})

	err := g.Wait()
	log.Debug("interrupt dispatcher stopped",
		logger.Uint64("hw_served", d.hwServed.Load()),
		logger.Uint64("soft_served", d.softServed.Load()))
	return err
}
