package logging

import "sync"

var (
	globalMu     sync.RWMutex
	globalLogger = DefaultLogger()
)

// SetGlobal replaces the process-wide default logger.
func SetGlobal(l *Logger) {
	if l == nil {
		return
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// L returns the process-wide default logger.
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}
