package bufferpool

import "github.com/tphakala/fifostream/internal/logger"

// GetLogger returns the bufferpool module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("bufferpool")
}
