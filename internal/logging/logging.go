// Package logging builds the structured logger shared by every component.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/jmgilman/go/errors"
)

// DefaultPrefix labels console output.
const DefaultPrefix = "unnest"

// Options configures the logger.
type Options struct {
	// Verbose enables debug output.
	Verbose bool

	// LogFile, when set, receives a copy of every record. Records carry
	// timestamps whenever a log file is in use.
	LogFile string

	Prefix string

	// Output is the console sink. Defaults to stderr.
	Output io.Writer
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) *log.Logger {
	level := log.InfoLevel
	if opts.Verbose {
		level = log.DebugLevel
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		Level:           level,
		ReportTimestamp: opts.LogFile != "",
		TimeFormat:      "2006-01-02 15:04:05",
	})
}

// Setup returns the process logger and a function that releases the log
// file, if any.
func Setup(opts Options) (*log.Logger, func() error, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.LogFile == "" {
		return New(out, opts), func() error { return nil }, nil
	}

	if dir := filepath.Dir(opts.LogFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, errors.Wrapf(err, errors.CodeInvalidConfig, "cannot create log directory %s", dir)
		}
	}
	f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.CodeInvalidConfig, "cannot open log file %s", opts.LogFile)
	}
	return New(io.MultiWriter(out, f), opts), f.Close, nil
}
