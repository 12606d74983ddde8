package sample

import "github.com/tphakala/fifostream/internal/logger"

// GetLogger returns the sample module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("sample")
}
