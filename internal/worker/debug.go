package worker

import (
	"os"
	"strings"

	"zonewatch/internal/logger"
)

var (
	workerDebugEnabled = strings.EqualFold(os.Getenv("ZONEWATCH_WORKER_DEBUG"), "1")
	debugLogger        logger.Logger = logger.NewNop()
)

// SetLogger routes dispatcher traces, emitted only with ZONEWATCH_WORKER_DEBUG=1.
func SetLogger(l logger.Logger) {
	if l != nil {
		debugLogger = l
	}
}

func debugLog(message string, details map[string]any) {
	if workerDebugEnabled {
		debugLogger.Debug("worker", message, details)
	}
}
