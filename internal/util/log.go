package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// EnableDebug lowers the log level so Debug lines are shown.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// Logger is a leveled logger backed by pterm's DefaultLogger that appends a
// fixed set of key/value pairs to every line. Sessions use it to tag output
// with their role and trace id. Output goes to stderr.
type Logger struct {
	fields []any
}

// std has no fields; the package-level helpers write through it.
var std = &Logger{}

// NewLogger returns a Logger carrying the given alternating key/value pairs.
func NewLogger(kv ...any) *Logger {
	return &Logger{fields: kv}
}

// With returns a copy of l with additional key/value pairs.
func (l *Logger) With(kv ...any) *Logger {
	fields := make([]any, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)
	return &Logger{fields: fields}
}

func (l *Logger) args() []pterm.LoggerArgument {
	if len(l.fields) == 0 {
		return nil
	}
	return pterm.DefaultLogger.Args(l.fields...)
}

func (l *Logger) Debug(format string, args ...any) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...), l.args())
}

func (l *Logger) Info(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...), l.args())
}

func (l *Logger) Warn(format string, args ...any) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...), l.args())
}

func (l *Logger) Error(format string, args ...any) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...), l.args())
}

func LogInfo(format string, args ...any)    { std.Info(format, args...) }
func LogWarning(format string, args ...any) { std.Warn(format, args...) }
func LogError(format string, args ...any)   { std.Error(format, args...) }
