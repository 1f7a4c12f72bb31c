// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options selects the logger level and output format.
type Options struct {
	Level  string
	Format string
	Prefix string
}

// New creates a logger writing to w.
func New(w io.Writer, opts Options) (*log.Logger, error) {
	level := log.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = log.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	formatter, err := parseFormatter(opts.Format)
	if err != nil {
		return nil, err
	}

	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		Prefix:          opts.Prefix,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	}), nil
}

// Setup creates a logger and installs it as the package default.
func Setup(w io.Writer, opts Options) (*log.Logger, error) {
	logger, err := New(w, opts)
	if err != nil {
		return nil, err
	}
	log.SetDefault(logger)
	return logger, nil
}

func parseFormatter(s string) (log.Formatter, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	default:
		return log.TextFormatter, fmt.Errorf("log format: unknown format %q", s)
	}
}
