// Package logging wires structured logrus logging for the orchestrator and
// provides the size-bounded rotating writer used by the scheduler log.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Init configures the process-wide logger: JSON output with stable field
// names, suitable for collection.
func Init(level logrus.Level) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(level)
}

// NewFileLogger returns a logger that writes JSON lines to the given rotating
// writer in addition to stderr for operator visibility.
func NewFileLogger(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(io.MultiWriter(os.Stderr, w))
	return log
}
