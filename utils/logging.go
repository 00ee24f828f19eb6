package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var (
	log *logrus.Logger
	// logFile is the file opened by the last InitLogging, if any.
	logFile *os.File
)

// InitLogging initializes the logger with the given configuration. A log
// file opened by an earlier call is closed. On error the current logger is
// left in place.
func InitLogging(level, path string, console bool) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var writers []io.Writer
	if console {
		writers = append(writers, os.Stderr)
	}
	var file *os.File
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		file, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		writers = append(writers, file)
	}

	l := logrus.New()
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if len(writers) > 0 {
		l.SetOutput(io.MultiWriter(writers...))
	} else {
		l.SetOutput(io.Discard)
	}

	if logFile != nil {
		_ = logFile.Close()
	}
	log, logFile = l, file
	return nil
}

// Logger returns the logger instance
func Logger() *logrus.Logger {
	if log == nil {
		log = logrus.New()
	}
	return log
}

// WithField starts an entry carrying one field.
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger().WithField(key, value)
}

// WithFields starts an entry carrying several fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger().WithFields(fields)
}
