// Package logger wraps charmbracelet/log with the prefix/timestamp
// conventions every package in this module logs through.
package logger

import (
	"os"

	"github.com/charmbracelet/log"
)

func baseOptions(prefix string) log.Options {
	return log.Options{
		Prefix:          prefix,
		ReportCaller:    false,
		ReportTimestamp: true,
		Formatter:       log.TextFormatter,
		Level:           log.GetLevel(),
	}
}

// New returns a prefixed logger at the process's current global level,
// the form every package under pkg/ constructs in its constructor.
func New(prefix string) *log.Logger {
	return log.NewWithOptions(os.Stdout, baseOptions(prefix))
}

// NewWithConfig returns a prefixed logger overriding level, caller
// reporting, timestamp reporting, and formatter individually, for callers
// that need something other than New's defaults.
func NewWithConfig(prefix string, level log.Level, caller bool, showTimestamp bool, formatter log.Formatter) *log.Logger {
	opts := baseOptions(prefix)
	opts.Level = level
	opts.ReportCaller = caller
	opts.ReportTimestamp = showTimestamp
	opts.Formatter = formatter
	return log.NewWithOptions(os.Stdout, opts)
}
