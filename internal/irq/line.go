// Package irq models interrupt delivery for the streaming engine. A single
// Dispatcher goroutine stands in for interrupt context: handlers it invokes
// run serially and must never block.
package irq

import (
	"context"

	"github.com/tphakala/fifostream/internal/logger"
)

// Line is an interrupt source. Wait blocks until the line asserts; after the
// handler ran, Rearm re-enables delivery.
type Line interface {
	Wait(ctx context.Context) error
	Rearm() error
}

// Handler services one interrupt
type Handler interface {
	HandleInterrupt()
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func()

func (f HandlerFunc) HandleInterrupt() { f() }

// GetLogger returns the irq module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("irq")
}
