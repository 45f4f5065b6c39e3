// Package llcplog is a thin, level-tagged wrapper over the standard
// library logger, matching the ambient logging style of this codebase's
// teacher (plain log.Printf call sites, no structured-logging dependency).
package llcplog

import (
	"log"
	"os"
)

// Logger tags standard-library log output with a severity prefix.
type Logger struct {
	*log.Logger
}

// Default returns a Logger writing to stderr with the package's standard
// prefix and flags.
func Default() *Logger {
	return &Logger{log.New(os.Stderr, "llcp: ", log.LstdFlags)}
}

// Debugf logs a low-severity diagnostic, e.g. a procedure parking on pool
// exhaustion.
func (l *Logger) Debugf(format string, args ...any) {
	l.Printf("DEBUG "+format, args...)
}

// Warnf logs a condition worth an operator's attention, e.g. a protocol
// violation surfaced from RX.
func (l *Logger) Warnf(format string, args ...any) {
	l.Printf("WARN "+format, args...)
}
