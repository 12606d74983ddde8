package stream

import "github.com/tphakala/fifostream/internal/logger"

// GetLogger returns the stream module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("stream")
}
