package observability

import (
	"fmt"

	"github.com/tphakala/fifostream/internal/logger"
)

// GetLogger returns the observability module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("observability")
}

// handlerLog adapts the module logger to promhttp's error log
type handlerLog struct {
	log logger.Logger
}

func (h handlerLog) Println(v ...any) {
	h.log.Error("metrics handler error", logger.String("detail", fmt.Sprint(v...)))
}
