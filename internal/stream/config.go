package stream

import (
	"time"

	"github.com/tphakala/fifostream/internal/errors"
)

// TxFullPolicy decides what Put does when the transmit queue stays full
type TxFullPolicy string

const (
	// TxFullRetry logs and keeps retrying until the context ends
	TxFullRetry TxFullPolicy = "retry"
	// TxFullDrop releases the chunk and returns ErrTxQueueFull
	TxFullDrop TxFullPolicy = "drop"
)

// Defaults
const (
	DefaultQueueDepth       = 30
	DefaultTxEnqueueTimeout = 100 * time.Millisecond
	DefaultVacancyTimeout   = 50 * time.Millisecond
	DefaultDataShift        = 16
	DefaultLogInterval      = time.Second

	maxDataShift = 31
)

// Config tunes an Engine
type Config struct {
	TxQueueDepth     int           // transmit handoff queue capacity
	RxQueueDepth     int           // receive handoff queue capacity
	TxEnqueueTimeout time.Duration // bounded wait per enqueue attempt
	TxFullPolicy     TxFullPolicy  // behavior after an enqueue timeout
	VacancyTimeout   time.Duration // bound on the synchronous vacancy spin
	DataShift        uint          // sample slot position inside a FIFO word
	Receive          bool          // enable the receive interrupt path
	LogInterval      time.Duration // minimum spacing of interrupt-context warnings
}

// DefaultConfig returns the reference configuration
func DefaultConfig() Config {
	return Config{
		TxQueueDepth:     DefaultQueueDepth,
		RxQueueDepth:     DefaultQueueDepth,
		TxEnqueueTimeout: DefaultTxEnqueueTimeout,
		TxFullPolicy:     TxFullRetry,
		VacancyTimeout:   DefaultVacancyTimeout,
		DataShift:        DefaultDataShift,
		LogInterval:      DefaultLogInterval,
	}
}

// withDefaults fills zero durations, depths and policy. DataShift is taken
// as given since zero is valid.
func (c Config) withDefaults() Config {
	if c.TxQueueDepth == 0 {
		c.TxQueueDepth = DefaultQueueDepth
	}
	if c.RxQueueDepth == 0 {
		c.RxQueueDepth = DefaultQueueDepth
	}
	if c.TxEnqueueTimeout == 0 {
		c.TxEnqueueTimeout = DefaultTxEnqueueTimeout
	}
	if c.TxFullPolicy == "" {
		c.TxFullPolicy = TxFullRetry
	}
	if c.VacancyTimeout == 0 {
		c.VacancyTimeout = DefaultVacancyTimeout
	}
	if c.LogInterval == 0 {
		c.LogInterval = DefaultLogInterval
	}
	return c
}

// Validate checks the configuration
func (c Config) Validate() error {
	var problems []string
	if c.TxQueueDepth < 0 || c.RxQueueDepth < 0 {
		problems = append(problems, "queue depths must be positive")
	}
	if c.TxEnqueueTimeout < 0 || c.VacancyTimeout < 0 || c.LogInterval < 0 {
		problems = append(problems, "timeouts must not be negative")
	}
	if c.TxFullPolicy != TxFullRetry && c.TxFullPolicy != TxFullDrop {
		problems = append(problems, "tx full policy must be retry or drop, got "+string(c.TxFullPolicy))
	}
	if c.DataShift > maxDataShift {
		problems = append(problems, "data shift must be at most 31")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.Newf("invalid stream config: %v", problems).
		Component("stream").
		Category(errors.CategoryStreamInit).
		Context("problems", len(problems)).
		Build()
}
