package instpatch

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// globalLogger (guarded by logMu, read through Logger) is the package-wide
// logger used for the "warning channel" described
// in spec.md §7: per-zone and per-sample validation errors that the
// readers/writers recover from rather than abort on. It defaults to
// charmbracelet/log writing to stderr at Warn level; callers embedding
// this library in an application with its own logging story can swap it
// out with SetLogger.
var logMu sync.RWMutex
var globalLogger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: false,
	Prefix:          "instpatch",
	Level:           log.WarnLevel,
})

// warnCount is incremented on every Warnf call; tests and callers that want
// to assert "the read succeeded with N recoverable warnings" can read it
// via WarnCount without wiring up a custom logger.
var warnCount int64

// SetLogger replaces the package-wide logger.
func SetLogger(l *log.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	globalLogger = l
}

// Logger returns the current package-wide logger.
func Logger() *log.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return globalLogger
}

// Warnf logs a recoverable per-entity error (a skipped zone, a blanked
// sample, a truncated INFO field) without aborting the caller's read or
// write.
func Warnf(format string, args ...any) {
	atomic.AddInt64(&warnCount, 1)
	Logger().Warnf(format, args...)
}

// Debugf logs low-level chunk tracing, mirroring the teacher's
// fmt.Println-based chunk tracing (chunk.go/hydra.go) but routed through
// the structured logger instead of stdout.
func Debugf(format string, args ...any) {
	Logger().Debugf(format, args...)
}

// WarnCount returns the number of Warnf calls made since process start (or
// since the last ResetWarnCount), letting tests assert on recoverable-error
// counts from Scenario-style round trips without a custom logger.
func WarnCount() int64 {
	return atomic.LoadInt64(&warnCount)
}

// ResetWarnCount zeroes the warning counter.
func ResetWarnCount() {
	atomic.StoreInt64(&warnCount, 0)
}
