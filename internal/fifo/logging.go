package fifo

import "github.com/tphakala/fifostream/internal/logger"

// GetLogger returns the fifo module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("fifo")
}
