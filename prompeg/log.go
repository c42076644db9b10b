package prompeg

import (
	"fmt"
	"log"

	"github.com/fatih/color"
)

// Logger is the decoder's leveled sink: successful restorations at
// INFO, failed restorations at ERROR, and a restored-ratio summary at
// VERBOSE after each event. It wraps the standard log.Logger and reaches
// for github.com/fatih/color to highlight each level on top of plain
// log output, rather than pulling in a full leveled-logging package.
type Logger struct {
	std     *log.Logger
	verbose bool
}

// NewLogger builds a Logger writing through the standard library's
// default logger. When verbose is false, Verbose-level messages are
// discarded.
func NewLogger(verbose bool) *Logger {
	return &Logger{std: log.Default(), verbose: verbose}
}

// nopLogger is used when a Decoder is built without an explicit Logger.
var nopLogger = &Logger{std: log.New(discard{}, "", 0)}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Info logs a successful restoration or other routine event.
func (l *Logger) Info(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.std.Print(color.GreenString("INFO: ") + fmt.Sprintf(format, args...))
}

// Error logs a failed restoration or other fault.
func (l *Logger) Error(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.std.Print(color.RedString("ERROR: ") + fmt.Sprintf(format, args...))
}

// Verbose logs the restored-ratio summary; suppressed unless the
// Logger was built with verbose=true.
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l == nil || !l.verbose {
		return
	}
	l.std.Print(color.CyanString("VERBOSE: ") + fmt.Sprintf(format, args...))
}
