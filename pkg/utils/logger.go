// Package utils carries the ambient pieces every component shares: the
// process-wide logger and the coded application error type.
package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logrus instance. Components obtain it through
// GetLogger rather than reading the variable directly.
var Logger *logrus.Logger

const logTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// InitLogger configures the global logger from the logging config section.
// Call once at startup, before any component asks for the logger.
func InitLogger(level, format, output, file string) error {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return NewAppError(ErrCodeConfiguration, "Unknown log level", level)
	}
	logger.SetLevel(logLevel)
	logger.SetFormatter(newFormatter(format))

	out, err := openLogOutput(output, file)
	if err != nil {
		return err
	}
	logger.SetOutput(out)

	Logger = logger
	return nil
}

// newFormatter maps the configured format name to a logrus formatter.
// Anything other than "text" gets JSON, the production default.
func newFormatter(format string) logrus.Formatter {
	if format == "text" {
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: logTimestampFormat,
		}
	}
	return &logrus.JSONFormatter{TimestampFormat: logTimestampFormat}
}

// openLogOutput resolves the configured output destination
func openLogOutput(output, file string) (io.Writer, error) {
	switch output {
	case "file":
		if file == "" {
			return nil, NewAppError(ErrCodeConfiguration, "Log output is file but no log file path is set")
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, NewAppError(ErrCodeConfiguration, "Failed to open log file", err.Error())
		}
		return f, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.Stdout, nil
	}
}

// GetLogger returns the global logger, initializing it with defaults when
// InitLogger has not been called
func GetLogger() *logrus.Logger {
	if Logger == nil {
		InitLogger("info", "json", "stdout", "")
	}
	return Logger
}
