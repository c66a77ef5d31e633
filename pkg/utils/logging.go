package utils

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/routefs/routefs/pkg/errors"
)

// Log output formats accepted by SetupLogging
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLogLevel parses a log level name, case insensitive. "warning" is
// accepted as an alias for "warn".
func ParseLogLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logrus.TraceLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, errors.Newf(errors.ErrCodeInvalidConfig, "invalid log level: %s", level).
			WithComponent("logging")
	}
}

// SetupLogging builds a logger writing to logFile, or stderr when logFile is
// empty. format is "text" or "json".
func SetupLogging(levelStr, logFile, format string) (*logrus.Logger, error) {
	level, err := ParseLogLevel(levelStr)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)

	switch strings.ToLower(format) {
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	case FormatText, "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "invalid log format: %s", format).
			WithComponent("logging")
	}

	var output io.Writer = os.Stderr
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to open log file").
				WithComponent("logging").
				WithContext("file", logFile)
		}
		output = file
	}
	logger.SetOutput(output)

	return logger, nil
}

// ComponentLogger returns an entry tagged with the component name
func ComponentLogger(logger *logrus.Logger, component string) *logrus.Entry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithField("component", component)
}
