// Package utils holds small helpers shared by the binary and its packages.
package utils

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log formats understood by NewLogger.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLogLevel parses a string log level. "warning" and "warn" are both accepted.
func ParseLogLevel(level string) (logrus.Level, error) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
	return lvl, nil
}

// NewLogger creates a logrus logger writing to out, or stderr when out is nil.
// An empty format means text.
func NewLogger(level, format string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stderr
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return logger, nil
}
