// Package util carries the process-wide logging setup: one
// *log.Logger, injected into every component that logs, gated by
// IsDebug. Terminal-UI styling (colored prefixes, color-profile
// detection) is dropped along with the rest of the terminal-UI
// dependencies.
package util

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
)

// IsDebug toggles debug-level logging, set from the -debug flag of
// cmd/grobber-server and cmd/grobber-index.
var IsDebug bool

// Logger is the process-wide structured logger InitLogger builds.
// Not every component logs through it: internal/streams' Default
// registry and indexscraper.NewScraper use charmbracelet/log's
// log.Default().
var Logger *log.Logger

// InitLogger builds Logger per IsDebug: debug mode reports caller and
// timestamp, info mode keeps the output terse.
func InitLogger() *log.Logger {
	Logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    IsDebug,
		ReportTimestamp: IsDebug,
		TimeFormat:      "15:04:05",
		Prefix:          "grobber",
	})
	if IsDebug {
		Logger.SetLevel(log.DebugLevel)
		Logger.Debug("debug logging enabled")
	} else {
		Logger.SetLevel(log.InfoLevel)
	}
	return Logger
}

// Debug logs a debug message (only when debug mode is enabled).
func Debug(msg interface{}, keyvals ...interface{}) {
	if IsDebug && Logger != nil {
		Logger.Debug(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Info logs an info message.
func Info(msg interface{}, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Warn logs a warning message.
func Warn(msg interface{}, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Error logs an error message.
func Error(msg interface{}, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Fatal logs a fatal message and exits.
func Fatal(msg interface{}, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Fatal(fmt.Sprintf("%v", msg), keyvals...)
	}
}
