// Package metrics provides Prometheus collectors for the buffer pool and the
// stream engine.
package metrics

import "time"

// ShutdownTimeout bounds graceful shutdown of the metrics HTTP server
const ShutdownTimeout = 5 * time.Second

// Label values shared by the collectors
const (
	DirectionTx = "tx"
	DirectionRx = "rx"

	PathSync      = "sync"
	PathInterrupt = "interrupt"

	ContextTask      = "task"
	ContextInterrupt = "interrupt"

	ResultSuccess   = "success"
	ResultExhausted = "exhausted"
)
