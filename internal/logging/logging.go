// Package logging builds the prefixed, leveled loggers used across the module.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/labstack/gommon/log"
)

const header = `${time_rfc3339} ${level} [${prefix}]`

// ParseLevel maps a config value to a log level. Unknown values mean INFO.
func ParseLevel(s string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off", "none":
		return log.OFF
	default:
		return log.INFO
	}
}

// New returns a logger writing to stderr with the given prefix and level.
func New(prefix, level string) *log.Logger {
	return NewWithOutput(prefix, level, os.Stderr)
}

// NewWithOutput returns a logger writing to w.
func NewWithOutput(prefix, level string, w io.Writer) *log.Logger {
	l := log.New(prefix)
	l.SetHeader(header)
	l.SetOutput(w)
	l.SetLevel(ParseLevel(level))
	return l
}

// Discard returns a logger that drops everything. Used by tests and as the
// fallback when a component is built without a logger.
func Discard(prefix string) *log.Logger {
	l := log.New(prefix)
	l.SetOutput(io.Discard)
	l.SetLevel(log.OFF)
	return l
}
