package player

import "github.com/tphakala/fifostream/internal/logger"

// GetLogger returns the player module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("player")
}
