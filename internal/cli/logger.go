package cli

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Logger provides leveled logging for the tools. Info is gated by Verbose
// and Debug by DebugMode; warnings and errors are always written.
type Logger struct {
	Verbose   bool
	DebugMode bool

	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewLogger creates a logger writing to out.
func NewLogger(out io.Writer, verbose, debug bool) *Logger {
	return &Logger{
		Verbose:   verbose,
		DebugMode: debug,
		out:       out,
		now:       time.Now,
	}
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return NewLogger(io.Discard, false, false)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...any) {
	if l != nil && l.Verbose {
		l.log("INFO", format, args...)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...any) {
	if l != nil && l.DebugMode {
		l.log("DEBUG", format, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...any) {
	l.log("WARN", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...any) {
	l.log("ERROR", format, args...)
}

func (l *Logger) log(level, format string, args ...any) {
	if l == nil || l.out == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[%s] %s: %s\n", level, l.now().Format("15:04:05"), fmt.Sprintf(format, args...))
}
