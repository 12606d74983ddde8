package stream

import "github.com/tphakala/fifostream/internal/errors"

var (
	// ErrInit reports an engine that could not be created
	ErrInit = errors.New(errors.NewStd("stream engine initialization failed")).
		Component("stream").
		Category(errors.CategoryStreamInit).
		Build()

	// ErrInsufficientFifoSpace reports a chunk dropped because the transmit
	// FIFO never had room for it
	ErrInsufficientFifoSpace = errors.New(errors.NewStd("insufficient transmit fifo space")).
		Component("stream").
		Category(errors.CategoryFifoSpace).
		Build()

	// ErrUnknownInterrupt describes an interrupt with no recognized cause.
	// It is logged, never returned.
	ErrUnknownInterrupt = errors.New(errors.NewStd("unknown interrupt cause")).
		Component("stream").
		Category(errors.CategoryUnknownInterrupt).
		Build()

	// ErrTxQueueFull is returned by Put under the drop policy
	ErrTxQueueFull = errors.New(errors.NewStd("transmit queue full")).
		Component("stream").
		Category(errors.CategoryQueueFull).
		Build()
)
