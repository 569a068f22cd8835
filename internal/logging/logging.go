// Package logging configures the process-wide logrus logger, the same way
// the teacher wires logrus ambiently throughout internal/server and
// pkg/adaptor — a single configured instance, never per-package setup.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Level mirrors the log_level config values from SPEC_FULL §6.
type Level string

const (
	LevelOff     Level = "off"
	LevelBasic   Level = "basic"
	LevelVerbose Level = "verbose"
	LevelTrace   Level = "trace"
)

// New builds a logrus.Logger configured for the given level. Text format
// when stderr is a terminal, JSON otherwise — matching the teacher's
// default logrus formatter selection for production deployments.
func New(level Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	switch level {
	case LevelOff:
		l.SetLevel(logrus.PanicLevel)
	case LevelVerbose:
		l.SetLevel(logrus.DebugLevel)
	case LevelTrace:
		l.SetLevel(logrus.TraceLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	if fi, err := os.Stderr.Stat(); err == nil && (fi.Mode()&os.ModeCharDevice) != 0 {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	return l
}
