package nav

import (
	"io"
	"log"
	"sync"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

var (
	mu          sync.RWMutex
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	defer mu.Unlock()
	opsLogger = newLogger(w.Ops)
	diagLogger = newLogger(w.Diag)
	traceLogger = newLogger(w.Trace)
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[nav] ", log.LstdFlags|log.Lmicroseconds)
}

func logTo(l **log.Logger, format string, args []interface{}) {
	mu.RLock()
	lg := *l
	mu.RUnlock()
	if lg != nil {
		lg.Printf(format, args...)
	}
}

// Opsf logs to the ops stream (lifecycle events, state transitions, safe stops).
func Opsf(format string, args ...interface{}) { logTo(&opsLogger, format, args) }

// Diagf logs to the diag stream (dropped ticks, odometry fallbacks, tuning context).
func Diagf(format string, args ...interface{}) { logTo(&diagLogger, format, args) }

// Tracef logs to the trace stream (per-tick telemetry).
func Tracef(format string, args ...interface{}) { logTo(&traceLogger, format, args) }
