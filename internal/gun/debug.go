package gun

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
// A nil writer disables that stream.
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
	return log.New(w, "[pigun] ", log.LstdFlags|log.Lmicroseconds)
}

func logTo(l **log.Logger, format string, args []interface{}) {
	mu.RLock()
	logger := *l
	mu.RUnlock()
	if logger != nil {
		logger.Printf(format, args...)
	}
}

// Opsf logs lifecycle events, warnings and errors an operator acts on.
func Opsf(format string, args ...interface{}) { logTo(&opsLogger, format, args) }

// Diagf logs calibration, state transitions and other tuning context.
func Diagf(format string, args ...interface{}) { logTo(&diagLogger, format, args) }

// Tracef logs per-frame telemetry. Keep it disabled on the device unless
// chasing a tracking problem: at 120 FPS it dominates the frame budget.
func Tracef(format string, args ...interface{}) { logTo(&traceLogger, format, args) }
